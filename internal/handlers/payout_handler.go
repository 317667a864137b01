package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"umrah-backend/internal/middleware"
	"umrah-backend/internal/pdf"
	"umrah-backend/internal/services"
	"umrah-backend/pkg/utils"
)

type PayoutHandler struct {
	Service *services.PayoutService
}

func NewPayoutHandler(service *services.PayoutService) *PayoutHandler {
	return &PayoutHandler{Service: service}
}

type createPayoutRequest struct {
	AsOfDate string `json:"as_of_date"` // YYYY-MM-DD, defaults to today
}

func (h *PayoutHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	actorID, _ := middleware.GetActorIDFromContext(r.Context())

	var req createPayoutRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	asOf := time.Now()
	if req.AsOfDate != "" {
		parsed, err := time.Parse("2006-01-02", req.AsOfDate)
		if err != nil {
			utils.Error(w, http.StatusBadRequest, "as_of_date must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	payout, err := h.Service.CreatePayoutBatch(r.Context(), tenantID, asOf, actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, payout)
}

func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	payoutID, err := pathID(r, "id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.Service.GetPayout(r.Context(), tenantID, payoutID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, payout)
}

func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}

	payouts, err := h.Service.ListPayouts(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, payouts)
}

func (h *PayoutHandler) GetPayoutSummary(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	payoutID, err := pathID(r, "id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.Service.GetPayout(r.Context(), tenantID, payoutID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	doc, err := pdf.GeneratePayoutSummary(payout)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=payout-%s.pdf", payout.BatchNumber))
	w.Write(doc)
}
