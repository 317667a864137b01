package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"umrah-backend/internal/middleware"
	"umrah-backend/internal/models"
	"umrah-backend/internal/pdf"
	"umrah-backend/internal/services"
	"umrah-backend/pkg/utils"

	"github.com/gorilla/mux"
)

type PaymentHandler struct {
	Service *services.PaymentService
}

func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{Service: service}
}

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	actorID, _ := middleware.GetActorIDFromContext(r.Context())

	result, err := h.Service.RecordPayment(r.Context(), tenantID, actorID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.JSON(w, http.StatusCreated, result)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	paymentID, err := pathID(r, "id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	payment, err := h.Service.GetPayment(r.Context(), tenantID, paymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	h.reverse(w, r, h.Service.Cancel)
}

func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	h.reverse(w, r, h.Service.Refund)
}

func (h *PaymentHandler) reverse(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tenantID, paymentID, actorID int64) error) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	actorID, _ := middleware.GetActorIDFromContext(r.Context())
	paymentID, err := pathID(r, "id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	if err := op(r.Context(), tenantID, paymentID, actorID); err != nil {
		writeServiceError(w, err)
		return
	}

	payment, err := h.Service.GetPayment(r.Context(), tenantID, paymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) ListPaymentsByJamaah(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	jamaahID, err := pathID(r, "jamaah_id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid jamaah ID")
		return
	}

	payments, err := h.Service.ListPaymentsByJamaah(r.Context(), tenantID, jamaahID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, payments)
}

func (h *PaymentHandler) ListSchedulesByJamaah(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	jamaahID, err := pathID(r, "jamaah_id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid jamaah ID")
		return
	}

	schedules, err := h.Service.ListSchedulesByJamaah(r.Context(), tenantID, jamaahID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, schedules)
}

func (h *PaymentHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	paymentID, err := pathID(r, "id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	data, err := h.Service.ReceiptData(r.Context(), tenantID, paymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	doc, err := pdf.GenerateReceipt(data)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", data.Payment.ReceiptNumber))
	w.Write(doc)
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[key], 10, 64)
}
