package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/models"
	"umrah-backend/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The stubs share a call log so tests can assert ordering between commission
// distribution and webhook fan-out.

type stubOutboxStore struct {
	events    []*models.OutboxEvent
	processed []int64
}

func (s *stubOutboxStore) UnprocessedEvents(_ context.Context, limit int) ([]*models.OutboxEvent, error) {
	var out []*models.OutboxEvent
	for _, e := range s.events {
		if len(out) >= limit {
			break
		}
		if e.ProcessedAt == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubOutboxStore) MarkEventProcessed(_ context.Context, eventID int64) error {
	for _, e := range s.events {
		if e.ID == eventID {
			now := time.Now()
			e.ProcessedAt = &now
		}
	}
	s.processed = append(s.processed, eventID)
	return nil
}

func (s *stubOutboxStore) Backlog(_ context.Context) (int64, error) {
	var n int64
	for _, e := range s.events {
		if e.ProcessedAt == nil {
			n++
		}
	}
	return n, nil
}

type stubCommissionStore struct {
	log   *[]string
	rules map[int64]*models.CommissionRule
	rows  []*models.Commission
}

func (s *stubCommissionStore) GetActiveRule(_ context.Context, tenantID int64) (*models.CommissionRule, error) {
	rule, ok := s.rules[tenantID]
	if !ok {
		return nil, apperrors.Configuration("no active commission rule for tenant %d", tenantID)
	}
	return rule, nil
}

func (s *stubCommissionStore) UpsertRule(_ context.Context, rule *models.CommissionRule) error {
	s.rules[rule.TenantID] = rule
	return nil
}

func (s *stubCommissionStore) ExistingLevels(_ context.Context, _, _ int64) (map[int]bool, error) {
	return map[int]bool{}, nil
}

func (s *stubCommissionStore) InsertCommissions(_ context.Context, rows []*models.Commission) (int, error) {
	*s.log = append(*s.log, "distribute")
	s.rows = append(s.rows, rows...)
	return len(rows), nil
}

func (s *stubCommissionStore) ApproveCommission(_ context.Context, _, _, _ int64) error { return nil }

func (s *stubCommissionStore) GetCommission(_ context.Context, _, _ int64) (*models.Commission, error) {
	return nil, apperrors.NotFound("not found")
}

func (s *stubCommissionStore) ListCommissionsByAgent(_ context.Context, _, _ int64) ([]*models.Commission, error) {
	return nil, nil
}

type soloDirectory struct{}

func (soloDirectory) ResolveReferrerChain(_ context.Context, _ int64, agentID int64) (models.ReferrerChain, error) {
	var chain models.ReferrerChain
	chain[0] = &agentID
	return chain, nil
}

type stubWebhookStore struct {
	log        *[]string
	subs       []*models.WebhookSubscription
	deliveries []*models.WebhookDelivery
	fanOutErr  error
}

func (s *stubWebhookStore) CreateSubscription(_ context.Context, sub *models.WebhookSubscription) error {
	s.subs = append(s.subs, sub)
	return nil
}

func (s *stubWebhookStore) ListSubscriptions(_ context.Context, _ int64) ([]*models.WebhookSubscription, error) {
	return nil, nil
}

func (s *stubWebhookStore) ListActiveSubscriptions(_ context.Context, tenantID int64, eventType string) ([]*models.WebhookSubscription, error) {
	if s.fanOutErr != nil {
		return nil, s.fanOutErr
	}
	var out []*models.WebhookSubscription
	for _, sub := range s.subs {
		if sub.TenantID == tenantID && sub.IsActive && sub.Wants(eventType) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *stubWebhookStore) GetSubscription(_ context.Context, _, _ int64) (*models.WebhookSubscription, error) {
	return nil, apperrors.NotFound("not found")
}

func (s *stubWebhookStore) InsertDeliveries(_ context.Context, rows []*models.WebhookDelivery) error {
	*s.log = append(*s.log, "fanout")
	s.deliveries = append(s.deliveries, rows...)
	return nil
}

func (s *stubWebhookStore) DueDeliveries(_ context.Context, _ time.Time, _ int) ([]*models.WebhookDelivery, error) {
	return nil, nil
}

func (s *stubWebhookStore) MarkDelivered(_ context.Context, _ int64, _ int, _ time.Time) error {
	return nil
}

func (s *stubWebhookStore) MarkFailed(_ context.Context, _ int64, _ int, _ string, _ *time.Time, _ bool) error {
	return nil
}

func (s *stubWebhookStore) ListDeliveries(_ context.Context, _, _ int64) ([]*models.WebhookDelivery, error) {
	return nil, nil
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(_ context.Context, _ *models.DomainEvent) error {
	p.calls++
	return errors.New("broker unreachable")
}

func (p *failingPublisher) Close() error { return nil }

func confirmedOutboxEvent(t *testing.T, id, tenantID, paymentID int64) *models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(&models.PaymentConfirmedData{
		PaymentID: paymentID,
		TenantID:  tenantID,
		JamaahID:  10,
		AgentID:   100,
		Amount:    decimal.NewFromInt(10_000_000),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &models.OutboxEvent{
		ID:        id,
		TenantID:  tenantID,
		EventID:   uuid.NewString(),
		EventType: models.EventPaymentConfirmed,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

func testRule(tenantID int64) *models.CommissionRule {
	return &models.CommissionRule{
		TenantID:       tenantID,
		TotalPct:       decimal.NewFromInt(16),
		DirectPct:      decimal.NewFromInt(10),
		ParentPct:      decimal.NewFromInt(4),
		GrandparentPct: decimal.NewFromInt(2),
		IsActive:       true,
	}
}

func newTestPoller(outboxStore *stubOutboxStore, commissionStore *stubCommissionStore, webhookStore *stubWebhookStore) *Poller {
	distributor := services.NewCommissionService(commissionStore, soloDirectory{}, nil, 0)
	webhooks := services.NewWebhookService(webhookStore)
	return NewPoller(outboxStore, distributor, webhooks, nil, time.Second, 100)
}

func TestDrain_DistributesBeforeFanOut(t *testing.T) {
	var log []string
	outboxStore := &stubOutboxStore{events: []*models.OutboxEvent{confirmedOutboxEvent(t, 1, 1, 50)}}
	commissionStore := &stubCommissionStore{log: &log, rules: map[int64]*models.CommissionRule{1: testRule(1)}}
	webhookStore := &stubWebhookStore{log: &log, subs: []*models.WebhookSubscription{
		{ID: 1, TenantID: 1, URL: "https://example.com/hooks", Events: []string{models.EventPaymentConfirmed}, IsActive: true},
	}}

	p := newTestPoller(outboxStore, commissionStore, webhookStore)
	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if len(log) != 2 || log[0] != "distribute" || log[1] != "fanout" {
		t.Fatalf("commissions must be written before fan-out, got order %v", log)
	}
	if len(commissionStore.rows) != 1 {
		t.Errorf("expected 1 commission (no referrer chain), got %d", len(commissionStore.rows))
	}
	if len(webhookStore.deliveries) != 1 {
		t.Errorf("expected 1 delivery, got %d", len(webhookStore.deliveries))
	}
	if len(outboxStore.processed) != 1 {
		t.Errorf("event should be marked processed, got %v", outboxStore.processed)
	}
}

func TestDrain_MissingRuleStillDeliversAndProcesses(t *testing.T) {
	var log []string
	outboxStore := &stubOutboxStore{events: []*models.OutboxEvent{confirmedOutboxEvent(t, 1, 1, 50)}}
	commissionStore := &stubCommissionStore{log: &log, rules: map[int64]*models.CommissionRule{}}
	webhookStore := &stubWebhookStore{log: &log, subs: []*models.WebhookSubscription{
		{ID: 1, TenantID: 1, URL: "https://example.com/hooks", Events: []string{models.EventPaymentConfirmed}, IsActive: true},
	}}

	p := newTestPoller(outboxStore, commissionStore, webhookStore)
	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if len(commissionStore.rows) != 0 {
		t.Error("no commissions may exist without a rule")
	}
	if len(webhookStore.deliveries) != 1 {
		t.Error("the event must still reach webhook receivers")
	}
	if len(outboxStore.processed) != 1 {
		t.Error("a deferred distribution must not wedge the outbox")
	}
}

func TestDrain_TransientErrorStopsBatchInOrder(t *testing.T) {
	var log []string
	outboxStore := &stubOutboxStore{events: []*models.OutboxEvent{
		confirmedOutboxEvent(t, 1, 1, 50),
		confirmedOutboxEvent(t, 2, 1, 51),
	}}
	commissionStore := &stubCommissionStore{log: &log, rules: map[int64]*models.CommissionRule{1: testRule(1)}}
	webhookStore := &stubWebhookStore{log: &log, fanOutErr: errors.New("database unavailable")}

	p := newTestPoller(outboxStore, commissionStore, webhookStore)
	if err := p.Drain(context.Background()); err == nil {
		t.Fatal("expected the transient error to surface")
	}

	if len(outboxStore.processed) != 0 {
		t.Errorf("no event may be marked processed, got %v", outboxStore.processed)
	}
	// Only the first event was touched; the second waits for the next pass.
	if got := countIn(log, "distribute"); got != 1 {
		t.Errorf("expected distribution for the first event only, got %d", got)
	}
}

func TestDrain_PublisherFailureDoesNotStall(t *testing.T) {
	var log []string
	outboxStore := &stubOutboxStore{events: []*models.OutboxEvent{confirmedOutboxEvent(t, 1, 1, 50)}}
	commissionStore := &stubCommissionStore{log: &log, rules: map[int64]*models.CommissionRule{1: testRule(1)}}
	webhookStore := &stubWebhookStore{log: &log}
	publisher := &failingPublisher{}

	distributor := services.NewCommissionService(commissionStore, soloDirectory{}, nil, 0)
	webhooks := services.NewWebhookService(webhookStore)
	p := NewPoller(outboxStore, distributor, webhooks, publisher, time.Second, 100)

	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if publisher.calls != 1 {
		t.Errorf("publisher should be invoked once, got %d", publisher.calls)
	}
	if len(outboxStore.processed) != 1 {
		t.Error("a stream publish failure must not stall the pipeline")
	}
}

func TestDrain_NonPaymentEventSkipsDistribution(t *testing.T) {
	var log []string
	evt := confirmedOutboxEvent(t, 1, 1, 50)
	evt.EventType = models.EventJamaahUpdated
	outboxStore := &stubOutboxStore{events: []*models.OutboxEvent{evt}}
	commissionStore := &stubCommissionStore{log: &log, rules: map[int64]*models.CommissionRule{1: testRule(1)}}
	webhookStore := &stubWebhookStore{log: &log}

	p := newTestPoller(outboxStore, commissionStore, webhookStore)
	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if countIn(log, "distribute") != 0 {
		t.Error("only payment.confirmed events trigger distribution")
	}
	if len(outboxStore.processed) != 1 {
		t.Error("event should be marked processed")
	}
}

func countIn(log []string, step string) int {
	n := 0
	for _, s := range log {
		if s == step {
			n++
		}
	}
	return n
}
