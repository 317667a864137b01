package workers

import (
	"context"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/services"
	"umrah-backend/internal/telemetry"

	"go.uber.org/zap"
)

// ReminderScanner runs the periodic reminder scan for every tenant with open
// installments. Tenants can also trigger an ad-hoc scan through the API; the
// per-tenant run lock and the dedup index keep the two from colliding.
type ReminderScanner struct {
	store    interfaces.ReminderStore
	service  *services.ReminderService
	interval time.Duration
}

func NewReminderScanner(store interfaces.ReminderStore, service *services.ReminderService, interval time.Duration) *ReminderScanner {
	return &ReminderScanner{store: store, service: service, interval: interval}
}

func (s *ReminderScanner) Run(ctx context.Context) {
	telemetry.Logger.Info("reminder scanner started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			telemetry.Logger.Info("reminder scanner stopped")
			return
		case <-ticker.C:
			s.scanAll(ctx, time.Now())
		}
	}
}

func (s *ReminderScanner) scanAll(ctx context.Context, now time.Time) {
	tenants, err := s.store.TenantsWithOpenSchedules(ctx, s.service.Horizon(now))
	if err != nil {
		telemetry.Logger.Error("reminder scan could not list tenants", zap.Error(err))
		return
	}

	for _, tenantID := range tenants {
		if _, err := s.service.ScheduleReminders(ctx, tenantID, now); err != nil {
			if apperrors.IsKind(err, apperrors.KindConflict) {
				continue // another scan holds the tenant lock
			}
			telemetry.Logger.Error("reminder scan failed",
				zap.Int64("tenant_id", tenantID), zap.Error(err))
		}
	}
}
