package services

import (
	"context"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/cache"
	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/metrics"
	"umrah-backend/internal/models"
	"umrah-backend/internal/telemetry"

	"go.uber.org/zap"
)

const reminderLockTTL = 5 * time.Minute

// ReminderService decides when an installment reminder should fire. It never
// sends anything: an external sender polls the pending intents and reports
// back sent/failed.
type ReminderService struct {
	store       interfaces.ReminderStore
	offsetsDays []int
	channels    []string
}

func NewReminderService(store interfaces.ReminderStore, offsetsDays []int, channels []string) *ReminderService {
	if len(offsetsDays) == 0 {
		offsetsDays = []int{7, 3, 1}
	}
	if len(channels) == 0 {
		channels = []string{"whatsapp"}
	}
	return &ReminderService{store: store, offsetsDays: offsetsDays, channels: channels}
}

// ScheduleReminders scans open installments and writes reminder intents for
// those hitting a look-ahead offset today, plus a daily nag for overdue ones.
// The non-skipped (schedule, channel, day) uniqueness makes re-running the
// scan with the same clock a no-op.
func (s *ReminderService) ScheduleReminders(ctx context.Context, tenantID int64, now time.Time) ([]*models.PaymentReminder, error) {
	release, ok := cache.AcquireRunLock(ctx, "reminder_scan", tenantID, reminderLockTTL)
	if !ok {
		return nil, apperrors.Conflict("a reminder scan is already in progress for tenant %d", tenantID)
	}
	defer release()

	horizon := s.Horizon(now)

	schedules, err := s.store.ListOpenSchedules(ctx, tenantID, horizon)
	if err != nil {
		return nil, err
	}

	today := truncateToDay(now)
	var intents []*models.PaymentReminder
	for _, sched := range schedules {
		if err := guardTenant(tenantID, sched.TenantID, "payment schedule"); err != nil {
			return nil, err
		}

		due := truncateToDay(sched.DueDate)
		fire := false
		if due.Before(today) {
			// Already overdue: one nag per day until settled or waived.
			fire = true
		} else {
			for _, offset := range s.offsetsDays {
				if due.AddDate(0, 0, -offset).Equal(today) {
					fire = true
					break
				}
			}
		}
		if !fire {
			continue
		}

		for _, channel := range s.channels {
			intents = append(intents, &models.PaymentReminder{
				TenantID:          tenantID,
				PaymentScheduleID: sched.ID,
				Channel:           channel,
				Status:            models.ReminderPending,
				ScheduledFor:      today,
			})
		}
	}

	if len(intents) == 0 {
		return nil, nil
	}

	inserted, err := s.store.InsertReminders(ctx, intents)
	if err != nil {
		return nil, err
	}

	// Keep only the rows that actually landed; the rest were dedup hits.
	created := make([]*models.PaymentReminder, 0, inserted)
	for _, intent := range intents {
		if intent.ID != 0 {
			created = append(created, intent)
			metrics.RemindersScheduled.WithLabelValues(intent.Channel).Inc()
		}
	}
	telemetry.Logger.Info("reminder scan complete",
		zap.Int64("tenant_id", tenantID),
		zap.Int("candidates", len(intents)),
		zap.Int("created", len(created)),
	)
	return created, nil
}

// Horizon is the furthest due date a scan at the given time cares about.
func (s *ReminderService) Horizon(now time.Time) time.Time {
	maxOffset := 0
	for _, d := range s.offsetsDays {
		if d > maxOffset {
			maxOffset = d
		}
	}
	return now.AddDate(0, 0, maxOffset)
}

// CancelPending marks still-pending reminders skipped once their installment
// is settled or waived. The recorder calls this on a schedule match; the
// external sender also checks before sending.
func (s *ReminderService) CancelPending(ctx context.Context, tenantID, scheduleID int64) (int, error) {
	return s.store.SkipPendingForSchedule(ctx, tenantID, scheduleID)
}

// ListPending is the hand-off surface the external sender polls.
func (s *ReminderService) ListPending(ctx context.Context, tenantID int64) ([]*models.PaymentReminder, error) {
	return s.store.ListPendingReminders(ctx, tenantID)
}

// Acknowledge records the sender's outcome for a reminder.
func (s *ReminderService) Acknowledge(ctx context.Context, tenantID, reminderID int64, status models.ReminderStatus) error {
	switch status {
	case models.ReminderSent, models.ReminderFailed:
	default:
		return apperrors.InvalidArgument("sender may only acknowledge sent or failed, got %q", status)
	}
	return s.store.MarkReminderStatus(ctx, tenantID, reminderID, status)
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
