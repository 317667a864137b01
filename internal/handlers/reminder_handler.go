package handlers

import (
	"net/http"
	"time"

	"umrah-backend/internal/middleware"
	"umrah-backend/internal/models"
	"umrah-backend/internal/services"
	"umrah-backend/pkg/utils"
)

type ReminderHandler struct {
	Service *services.ReminderService
}

func NewReminderHandler(service *services.ReminderService) *ReminderHandler {
	return &ReminderHandler{Service: service}
}

// RunScan triggers a reminder scan outside the periodic schedule, typically
// after bulk schedule imports.
func (h *ReminderHandler) RunScan(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}

	created, err := h.Service.ScheduleReminders(r.Context(), tenantID, time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{
		"created":   len(created),
		"reminders": created,
	})
}

// ListPending is polled by the external sender.
func (h *ReminderHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}

	reminders, err := h.Service.ListPending(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, reminders)
}

func (h *ReminderHandler) AckSent(w http.ResponseWriter, r *http.Request) {
	h.ack(w, r, models.ReminderSent)
}

func (h *ReminderHandler) AckFailed(w http.ResponseWriter, r *http.Request) {
	h.ack(w, r, models.ReminderFailed)
}

func (h *ReminderHandler) ack(w http.ResponseWriter, r *http.Request, status models.ReminderStatus) {
	tenantID, ok := middleware.GetTenantIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Tenant not found in context")
		return
	}
	reminderID, err := pathID(r, "id")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid reminder ID")
		return
	}

	if err := h.Service.Acknowledge(r.Context(), tenantID, reminderID, status); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
