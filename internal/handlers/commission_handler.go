package handlers

import (
	"encoding/json"
	"net/http"

	"umrah-backend/internal/middleware"
	"umrah-backend/internal/models"
	"umrah-backend/internal/services"
	"umrah-backend/pkg/utils"

	"github.com/shopspring/decimal"
)

type CommissionHandler struct {
	Service *services.CommissionService
}

func NewCommissionHandler(service *services.CommissionService) *CommissionHandler {
	return &CommissionHandler{Service: service}
}

func (h *CommissionHandler) ApproveCommission(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	actorID, _ := middleware.GetActorIDFromContext(r.Context())
	commissionID, err := pathID(r, "id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid commission ID")
		return
	}

	commission, err := h.Service.Approve(r.Context(), tenantID, commissionID, actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, commission)
}

func (h *CommissionHandler) ListByAgent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	agentID, err := pathID(r, "agent_id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	commissions, err := h.Service.ListByAgent(r.Context(), tenantID, agentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, commissions)
}

// Redistribute re-runs commission distribution for a payment whose original
// pass was deferred by a missing rule.
func (h *CommissionHandler) Redistribute(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	paymentID, err := pathID(r, "payment_id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	commissions, err := h.Service.Redistribute(r.Context(), tenantID, paymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, commissions)
}

func (h *CommissionHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}

	rule, err := h.Service.ActiveRule(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, rule)
}

type setRuleRequest struct {
	TotalPct       decimal.Decimal `json:"total_pct"`
	DirectPct      decimal.Decimal `json:"direct_pct"`
	ParentPct      decimal.Decimal `json:"parent_pct"`
	GrandparentPct decimal.Decimal `json:"grandparent_pct"`
}

func (h *CommissionHandler) SetRule(w http.ResponseWriter, r *http.Request) {
	var req setRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}

	rule := &models.CommissionRule{
		TenantID:       tenantID,
		TotalPct:       req.TotalPct,
		DirectPct:      req.DirectPct,
		ParentPct:      req.ParentPct,
		GrandparentPct: req.GrandparentPct,
		IsActive:       true,
	}
	if err := h.Service.SetRule(r.Context(), rule); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, rule)
}
