package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/models"
)

// In-memory fakes for the storage contracts. They reproduce the constraint
// behavior the services rely on: unique (payment, level), the non-skipped
// reminder dedup, per-subscription event dedup, and the payout claim guard.

type fakeLedger struct {
	mu        sync.Mutex
	jamaah    map[int64]*models.Jamaah
	payments  map[int64]*models.Payment
	schedules []*models.PaymentSchedule
	outbox    []*models.OutboxEvent
	nextID    int64
	nextSeq   int

	failInsert error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		jamaah:   make(map[int64]*models.Jamaah),
		payments: make(map[int64]*models.Payment),
	}
}

func (f *fakeLedger) GetJamaah(_ context.Context, tenantID, jamaahID int64) (*models.Jamaah, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jamaah[jamaahID]
	if !ok || j.TenantID != tenantID {
		return nil, apperrors.NotFound("jamaah %d not found in tenant %d", jamaahID, tenantID)
	}
	return j, nil
}

func (f *fakeLedger) InsertConfirmedPayment(_ context.Context, p *models.Payment, evt *models.OutboxEvent) (*models.PaymentSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert != nil {
		return nil, f.failInsert
	}

	f.nextID++
	f.nextSeq++
	p.ID = f.nextID
	p.ReceiptNumber = fmt.Sprintf("RCP-%06d", f.nextSeq)
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.payments[p.ID] = p

	var matched *models.PaymentSchedule
	for _, s := range f.schedules {
		if s.TenantID == p.TenantID && s.JamaahID == p.JamaahID &&
			(s.Status == models.SchedulePending || s.Status == models.ScheduleOverdue) &&
			s.Amount.Equal(p.Amount) {
			if matched == nil || s.InstallmentNumber < matched.InstallmentNumber {
				matched = s
			}
		}
	}
	if matched != nil {
		now := time.Now()
		matched.Status = models.SchedulePaid
		matched.PaidAt = &now
		matched.PaymentID = &p.ID
	}

	if evt != nil {
		var m map[string]any
		if err := json.Unmarshal(evt.Payload, &m); err != nil {
			return nil, err
		}
		m["payment_id"] = p.ID
		payload, _ := json.Marshal(m)
		evt.Payload = payload
		f.nextID++
		evt.ID = f.nextID
		evt.CreatedAt = time.Now()
		f.outbox = append(f.outbox, evt)
	}
	return matched, nil
}

func (f *fakeLedger) CancelPayment(_ context.Context, tenantID, paymentID int64, evt *models.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.TenantID != tenantID || p.Status != models.PaymentConfirmed {
		return apperrors.Conflict("payment %d is not in confirmed state", paymentID)
	}
	p.Status = models.PaymentCancelled
	f.outbox = append(f.outbox, evt)
	return nil
}

func (f *fakeLedger) RefundPayment(_ context.Context, tenantID, paymentID int64, evt *models.OutboxEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.TenantID != tenantID || p.Status != models.PaymentConfirmed {
		return 0, apperrors.Conflict("payment %d is not in confirmed state", paymentID)
	}
	p.Status = models.PaymentRefunded
	for _, s := range f.schedules {
		if s.PaymentID != nil && *s.PaymentID == paymentID {
			s.Status = models.SchedulePending
			s.PaidAt = nil
			s.PaymentID = nil
		}
	}
	f.outbox = append(f.outbox, evt)
	return 0, nil
}

func (f *fakeLedger) GetPayment(_ context.Context, tenantID, paymentID int64) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.TenantID != tenantID {
		return nil, apperrors.NotFound("payment %d not found in tenant %d", paymentID, tenantID)
	}
	return p, nil
}

func (f *fakeLedger) ListPaymentsByJamaah(_ context.Context, tenantID, jamaahID int64) ([]*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Payment
	for _, p := range f.payments {
		if p.TenantID == tenantID && p.JamaahID == jamaahID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLedger) ListSchedulesByJamaah(_ context.Context, tenantID, jamaahID int64) ([]*models.PaymentSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PaymentSchedule
	for _, s := range f.schedules {
		if s.TenantID == tenantID && s.JamaahID == jamaahID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeCommissionStore struct {
	mu          sync.Mutex
	rules       map[int64]*models.CommissionRule
	commissions map[string]*models.Commission // key payment:level
	nextID      int64
}

func newFakeCommissionStore() *fakeCommissionStore {
	return &fakeCommissionStore{
		rules:       make(map[int64]*models.CommissionRule),
		commissions: make(map[string]*models.Commission),
	}
}

func commissionKey(paymentID int64, level int) string {
	return fmt.Sprintf("%d:%d", paymentID, level)
}

func (f *fakeCommissionStore) GetActiveRule(_ context.Context, tenantID int64) (*models.CommissionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[tenantID]
	if !ok {
		return nil, apperrors.Configuration("no active commission rule for tenant %d", tenantID)
	}
	return rule, nil
}

func (f *fakeCommissionStore) UpsertRule(_ context.Context, rule *models.CommissionRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rule.ID = f.nextID
	f.rules[rule.TenantID] = rule
	return nil
}

func (f *fakeCommissionStore) ExistingLevels(_ context.Context, tenantID, paymentID int64) (map[int]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	levels := make(map[int]bool)
	for _, c := range f.commissions {
		if c.TenantID == tenantID && c.PaymentID == paymentID {
			levels[c.Level] = true
		}
	}
	return levels, nil
}

func (f *fakeCommissionStore) InsertCommissions(_ context.Context, rows []*models.Commission) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inserted := 0
	for _, c := range rows {
		key := commissionKey(c.PaymentID, c.Level)
		if _, exists := f.commissions[key]; exists {
			continue
		}
		f.nextID++
		c.ID = f.nextID
		f.commissions[key] = c
		inserted++
	}
	return inserted, nil
}

func (f *fakeCommissionStore) ApproveCommission(_ context.Context, tenantID, commissionID, actorID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commissions {
		if c.ID == commissionID && c.TenantID == tenantID {
			if c.Status != models.CommissionPending {
				return apperrors.Conflict("commission %d is %s, not pending", commissionID, c.Status)
			}
			c.Status = models.CommissionApproved
			return nil
		}
	}
	return apperrors.NotFound("commission %d not found in tenant %d", commissionID, tenantID)
}

func (f *fakeCommissionStore) GetCommission(_ context.Context, tenantID, commissionID int64) (*models.Commission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commissions {
		if c.ID == commissionID && c.TenantID == tenantID {
			return c, nil
		}
	}
	return nil, apperrors.NotFound("commission %d not found in tenant %d", commissionID, tenantID)
}

func (f *fakeCommissionStore) ListCommissionsByAgent(_ context.Context, tenantID, agentID int64) ([]*models.Commission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Commission
	for _, c := range f.commissions {
		if c.TenantID == tenantID && c.AgentID == agentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCommissionStore) byLevel(paymentID int64, level int) *models.Commission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commissions[commissionKey(paymentID, level)]
}

// fakeDirectory resolves chains from a fixed parent map, like the static
// production implementation.
type fakeDirectory struct {
	parents map[int64]int64
	err     error
}

func (f *fakeDirectory) ResolveReferrerChain(_ context.Context, _ int64, agentID int64) (models.ReferrerChain, error) {
	var chain models.ReferrerChain
	if f.err != nil {
		return chain, f.err
	}
	direct := agentID
	chain[0] = &direct
	if parent, ok := f.parents[agentID]; ok {
		p := parent
		chain[1] = &p
		if grand, ok := f.parents[parent]; ok {
			g := grand
			chain[2] = &g
		}
	}
	return chain, nil
}

type fakePayoutStore struct {
	mu          sync.Mutex
	commissions []*models.Commission
	bankDetails map[int64]*models.AgentBankDetails
	payouts     []*models.CommissionPayout
	nextID      int64
	nextSeq     int
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{bankDetails: make(map[int64]*models.AgentBankDetails)}
}

func (f *fakePayoutStore) ListApprovedUnpaid(_ context.Context, tenantID int64) ([]*models.Commission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Commission
	for _, c := range f.commissions {
		if c.TenantID == tenantID && c.Status == models.CommissionApproved {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakePayoutStore) GetAgentBankDetails(_ context.Context, tenantID int64, agentIDs []int64) (map[int64]*models.AgentBankDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]*models.AgentBankDetails)
	for _, id := range agentIDs {
		if d, ok := f.bankDetails[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (f *fakePayoutStore) CreateBatch(_ context.Context, payout *models.CommissionPayout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	payout.BatchNumber = fmt.Sprintf("PB-%06d", f.nextSeq)
	f.nextID++
	payout.ID = f.nextID
	payout.CreatedAt = time.Now()

	byID := make(map[int64]*models.Commission)
	for _, c := range f.commissions {
		byID[c.ID] = c
	}
	for _, item := range payout.Items {
		f.nextID++
		item.ID = f.nextID
		item.PayoutID = payout.ID
		item.TenantID = payout.TenantID
		for _, cid := range item.CommissionIDs {
			c := byID[cid]
			if c == nil || c.Status != models.CommissionApproved {
				return apperrors.Conflict("commission %d already claimed", cid)
			}
			c.Status = models.CommissionPaid
		}
	}
	f.payouts = append(f.payouts, payout)
	return nil
}

func (f *fakePayoutStore) GetPayout(_ context.Context, tenantID, payoutID int64) (*models.CommissionPayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payouts {
		if p.ID == payoutID && p.TenantID == tenantID {
			return p, nil
		}
	}
	return nil, apperrors.NotFound("payout %d not found in tenant %d", payoutID, tenantID)
}

func (f *fakePayoutStore) ListPayouts(_ context.Context, tenantID int64) ([]*models.CommissionPayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CommissionPayout
	for _, p := range f.payouts {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeReminderStore struct {
	mu        sync.Mutex
	schedules []*models.PaymentSchedule
	reminders []*models.PaymentReminder
	nextID    int64
}

func (f *fakeReminderStore) ListOpenSchedules(_ context.Context, tenantID int64, horizon time.Time) ([]*models.PaymentSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PaymentSchedule
	for _, s := range f.schedules {
		if s.TenantID == tenantID &&
			(s.Status == models.SchedulePending || s.Status == models.ScheduleOverdue) &&
			!s.DueDate.After(horizon) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeReminderStore) InsertReminders(_ context.Context, rows []*models.PaymentReminder) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inserted := 0
	for _, rem := range rows {
		// scheduled_for is a DATE column: uniqueness is plain equality on the
		// UTC-midnight value the scheduler writes.
		dup := false
		for _, existing := range f.reminders {
			if existing.Status != models.ReminderSkipped &&
				existing.PaymentScheduleID == rem.PaymentScheduleID &&
				existing.Channel == rem.Channel &&
				existing.ScheduledFor.Equal(rem.ScheduledFor) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		f.nextID++
		rem.ID = f.nextID
		f.reminders = append(f.reminders, rem)
		inserted++
	}
	return inserted, nil
}

func (f *fakeReminderStore) TenantsWithOpenSchedules(_ context.Context, horizon time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[int64]bool)
	var out []int64
	for _, s := range f.schedules {
		if (s.Status == models.SchedulePending || s.Status == models.ScheduleOverdue) &&
			!s.DueDate.After(horizon) && !seen[s.TenantID] {
			seen[s.TenantID] = true
			out = append(out, s.TenantID)
		}
	}
	return out, nil
}

func (f *fakeReminderStore) SkipPendingForSchedule(_ context.Context, tenantID, scheduleID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	skipped := 0
	for _, rem := range f.reminders {
		if rem.TenantID == tenantID && rem.PaymentScheduleID == scheduleID && rem.Status == models.ReminderPending {
			rem.Status = models.ReminderSkipped
			skipped++
		}
	}
	return skipped, nil
}

func (f *fakeReminderStore) ListPendingReminders(_ context.Context, tenantID int64) ([]*models.PaymentReminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PaymentReminder
	for _, rem := range f.reminders {
		if rem.TenantID == tenantID && rem.Status == models.ReminderPending {
			out = append(out, rem)
		}
	}
	return out, nil
}

func (f *fakeReminderStore) MarkReminderStatus(_ context.Context, tenantID, reminderID int64, status models.ReminderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rem := range f.reminders {
		if rem.ID == reminderID && rem.TenantID == tenantID {
			rem.Status = status
			return nil
		}
	}
	return apperrors.NotFound("reminder %d not found in tenant %d", reminderID, tenantID)
}

type fakeWebhookStore struct {
	mu         sync.Mutex
	subs       []*models.WebhookSubscription
	deliveries []*models.WebhookDelivery
	nextID     int64
}

func (f *fakeWebhookStore) CreateSubscription(_ context.Context, sub *models.WebhookSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sub.ID = f.nextID
	sub.CreatedAt = time.Now()
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeWebhookStore) ListSubscriptions(_ context.Context, tenantID int64) ([]*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, s := range f.subs {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeWebhookStore) ListActiveSubscriptions(_ context.Context, tenantID int64, eventType string) ([]*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, s := range f.subs {
		if s.TenantID == tenantID && s.IsActive && s.Wants(eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeWebhookStore) GetSubscription(_ context.Context, tenantID, subID int64) (*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ID == subID && s.TenantID == tenantID {
			return s, nil
		}
	}
	return nil, apperrors.NotFound("subscription %d not found in tenant %d", subID, tenantID)
}

func (f *fakeWebhookStore) InsertDeliveries(_ context.Context, rows []*models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range rows {
		dup := false
		for _, existing := range f.deliveries {
			if existing.SubscriptionID == d.SubscriptionID && existing.EventID == d.EventID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		f.nextID++
		d.ID = f.nextID
		d.CreatedAt = time.Now()
		f.deliveries = append(f.deliveries, d)
	}
	return nil
}

func (f *fakeWebhookStore) DueDeliveries(_ context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, d := range f.deliveries {
		if len(out) >= limit {
			break
		}
		if d.Status == models.DeliveryPending ||
			(d.Status == models.DeliveryFailed && d.NextRetryAt != nil && !d.NextRetryAt.After(now)) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeWebhookStore) MarkDelivered(_ context.Context, deliveryID int64, attemptCount int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deliveries {
		if d.ID == deliveryID {
			d.Status = models.DeliveryDelivered
			d.AttemptCount = attemptCount
			d.DeliveredAt = &at
			d.NextRetryAt = nil
			return nil
		}
	}
	return apperrors.NotFound("delivery %d not found", deliveryID)
}

func (f *fakeWebhookStore) MarkFailed(_ context.Context, deliveryID int64, attemptCount int, lastError string, nextRetryAt *time.Time, terminal bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deliveries {
		if d.ID == deliveryID {
			d.AttemptCount = attemptCount
			d.LastError = lastError
			if terminal {
				d.Status = models.DeliveryMaxRetriesExceeded
				d.NextRetryAt = nil
			} else {
				d.Status = models.DeliveryFailed
				d.NextRetryAt = nextRetryAt
			}
			return nil
		}
	}
	return apperrors.NotFound("delivery %d not found", deliveryID)
}

func (f *fakeWebhookStore) ListDeliveries(_ context.Context, tenantID, subID int64) ([]*models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, d := range f.deliveries {
		if d.TenantID == tenantID && d.SubscriptionID == subID {
			out = append(out, d)
		}
	}
	return out, nil
}
