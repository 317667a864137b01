package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types carried through the outbox and delivered to webhook receivers.
const (
	EventPaymentConfirmed = "payment.confirmed"
	EventPaymentFailed    = "payment.failed"
	EventJamaahUpdated    = "jamaah.updated"
)

// DomainEvent is the JSON envelope delivered to webhook receivers. The event
// id is included so consumers can deduplicate under at-least-once delivery.
type DomainEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	TenantID   int64           `json:"tenant_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// PaymentConfirmedData is the payload of a payment.confirmed event. AgentID is
// the jamaah's selling agent, resolved at record time so the distributor does
// not need another jamaah lookup.
type PaymentConfirmedData struct {
	PaymentID int64           `json:"payment_id"`
	TenantID  int64           `json:"tenant_id"`
	JamaahID  int64           `json:"jamaah_id"`
	AgentID   int64           `json:"agent_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// NewDomainEvent builds an envelope with a fresh event id around an
// already-marshaled data payload.
func NewDomainEvent(eventType string, tenantID int64, occurredAt time.Time, data json.RawMessage) *DomainEvent {
	return &DomainEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		TenantID:   tenantID,
		OccurredAt: occurredAt.UTC(),
		Data:       data,
	}
}

// OutboxEvent is a durable domain-event row written in the same transaction
// as the state change it describes, drained by the outbox poller.
type OutboxEvent struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Envelope reconstructs the delivery envelope from the stored row.
func (e *OutboxEvent) Envelope() *DomainEvent {
	return &DomainEvent{
		EventID:    e.EventID,
		EventType:  e.EventType,
		TenantID:   e.TenantID,
		OccurredAt: e.CreatedAt.UTC(),
		Data:       e.Payload,
	}
}
