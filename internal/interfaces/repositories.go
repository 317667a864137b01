// Package interfaces declares the storage and collaborator contracts the
// settlement services depend on. The pgx repositories implement them for
// production; tests supply in-memory fakes.
package interfaces

import (
	"context"
	"time"

	"umrah-backend/internal/models"
)

// PaymentLedger owns the transactional payment-side writes. Every multi-step
// write (payment + schedule + outbox) commits atomically so a crash between
// steps never leaves a confirmed payment with no downstream effect.
type PaymentLedger interface {
	GetJamaah(ctx context.Context, tenantID, jamaahID int64) (*models.Jamaah, error)

	// InsertConfirmedPayment inserts the payment as confirmed, marks the
	// oldest pending/overdue schedule with an exactly matching amount as
	// paid, and writes the outbox event, all in one transaction. The
	// generated payment id is stamped into the event payload before the
	// outbox row commits. The returned schedule is nil when no installment
	// matched.
	InsertConfirmedPayment(ctx context.Context, p *models.Payment, evt *models.OutboxEvent) (*models.PaymentSchedule, error)

	// CancelPayment transitions confirmed → cancelled and writes evt.
	// Returns a conflict error if the payment is not currently confirmed.
	CancelPayment(ctx context.Context, tenantID, paymentID int64, evt *models.OutboxEvent) error

	// RefundPayment transitions confirmed → refunded, reopens the matched
	// schedule installment, cancels every commission derived from the
	// payment (compensating updates, never deletes) and writes evt.
	// Returns the number of commissions cancelled.
	RefundPayment(ctx context.Context, tenantID, paymentID int64, evt *models.OutboxEvent) (int, error)

	GetPayment(ctx context.Context, tenantID, paymentID int64) (*models.Payment, error)
	ListPaymentsByJamaah(ctx context.Context, tenantID, jamaahID int64) ([]*models.Payment, error)
	ListSchedulesByJamaah(ctx context.Context, tenantID, jamaahID int64) ([]*models.PaymentSchedule, error)
}

// CommissionStore persists commission rows and the tenant rule.
type CommissionStore interface {
	GetActiveRule(ctx context.Context, tenantID int64) (*models.CommissionRule, error)
	UpsertRule(ctx context.Context, rule *models.CommissionRule) error

	// ExistingLevels returns the levels already written for a payment, so
	// re-delivered events are a no-op per (payment_id, level).
	ExistingLevels(ctx context.Context, tenantID, paymentID int64) (map[int]bool, error)

	// InsertCommissions writes rows with ON CONFLICT DO NOTHING on
	// (payment_id, level) and reports how many actually landed.
	InsertCommissions(ctx context.Context, rows []*models.Commission) (int, error)

	ApproveCommission(ctx context.Context, tenantID, commissionID, actorID int64) error
	GetCommission(ctx context.Context, tenantID, commissionID int64) (*models.Commission, error)
	ListCommissionsByAgent(ctx context.Context, tenantID, agentID int64) ([]*models.Commission, error)
}

// PayoutStore owns the batching transaction.
type PayoutStore interface {
	// ListApprovedUnpaid returns approved commissions not attached to any
	// payout item, ever.
	ListApprovedUnpaid(ctx context.Context, tenantID int64) ([]*models.Commission, error)

	GetAgentBankDetails(ctx context.Context, tenantID int64, agentIDs []int64) (map[int64]*models.AgentBankDetails, error)

	// CreateBatch inserts the payout and its items and marks every included
	// commission paid, linking it to its item, in one transaction. A
	// commission already claimed by another batch makes the whole
	// transaction fail with a conflict.
	CreateBatch(ctx context.Context, payout *models.CommissionPayout) error

	GetPayout(ctx context.Context, tenantID, payoutID int64) (*models.CommissionPayout, error)
	ListPayouts(ctx context.Context, tenantID int64) ([]*models.CommissionPayout, error)
}

// ReminderStore persists reminder intents with the non-skipped
// (schedule, channel, day) uniqueness the scheduler relies on for dedup.
type ReminderStore interface {
	// ListOpenSchedules returns pending schedules due on or before horizon,
	// including already-overdue ones.
	ListOpenSchedules(ctx context.Context, tenantID int64, horizon time.Time) ([]*models.PaymentSchedule, error)

	// InsertReminders writes rows with ON CONFLICT DO NOTHING and reports
	// how many actually landed.
	InsertReminders(ctx context.Context, rows []*models.PaymentReminder) (int, error)

	// TenantsWithOpenSchedules lists tenants with a pending installment due
	// on or before horizon, for the periodic scan loop.
	TenantsWithOpenSchedules(ctx context.Context, horizon time.Time) ([]int64, error)

	// SkipPendingForSchedule marks still-pending reminders skipped once the
	// schedule settles. Returns the number of reminders skipped.
	SkipPendingForSchedule(ctx context.Context, tenantID, scheduleID int64) (int, error)

	ListPendingReminders(ctx context.Context, tenantID int64) ([]*models.PaymentReminder, error)
	MarkReminderStatus(ctx context.Context, tenantID, reminderID int64, status models.ReminderStatus) error
}

// WebhookStore persists subscriptions and per-delivery retry state.
type WebhookStore interface {
	CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error
	ListSubscriptions(ctx context.Context, tenantID int64) ([]*models.WebhookSubscription, error)
	ListActiveSubscriptions(ctx context.Context, tenantID int64, eventType string) ([]*models.WebhookSubscription, error)
	GetSubscription(ctx context.Context, tenantID, subID int64) (*models.WebhookSubscription, error)

	InsertDeliveries(ctx context.Context, rows []*models.WebhookDelivery) error
	// DueDeliveries returns deliveries ready for an attempt: pending ones
	// and failed ones whose next_retry_at has passed.
	DueDeliveries(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error)
	// MarkDelivered records the success and the attempt that achieved it.
	MarkDelivered(ctx context.Context, deliveryID int64, attemptCount int, at time.Time) error
	MarkFailed(ctx context.Context, deliveryID int64, attemptCount int, lastError string, nextRetryAt *time.Time, terminal bool) error
	ListDeliveries(ctx context.Context, tenantID, subID int64) ([]*models.WebhookDelivery, error)
}

// OutboxStore is drained by the poller in insertion order.
type OutboxStore interface {
	UnprocessedEvents(ctx context.Context, limit int) ([]*models.OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, eventID int64) error
	Backlog(ctx context.Context) (int64, error)
}

// ReferrerDirectory resolves the fixed-depth agent referral hierarchy. The
// directory itself is an external collaborator; how the parent/grandparent
// links are established is not this service's concern.
type ReferrerDirectory interface {
	ResolveReferrerChain(ctx context.Context, tenantID, agentID int64) (models.ReferrerChain, error)
}
