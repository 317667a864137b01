package models

import (
	"slices"
	"time"
)

// WebhookSubscription is a tenant-registered endpoint. Payloads delivered to
// it are HMAC-SHA256 signed with the subscription secret.
type WebhookSubscription struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Wants reports whether the subscription listens for an event type.
func (s *WebhookSubscription) Wants(eventType string) bool {
	return slices.Contains(s.Events, eventType)
}

type DeliveryStatus string

const (
	DeliveryPending            DeliveryStatus = "pending"
	DeliveryDelivered          DeliveryStatus = "delivered"
	DeliveryFailed             DeliveryStatus = "failed"
	DeliveryMaxRetriesExceeded DeliveryStatus = "max_retries_exceeded"
)

// WebhookDelivery tracks one event's delivery to one subscription.
// pending → delivered on a 2xx, pending → failed → pending on scheduled
// retries, max_retries_exceeded after the attempt cap. Terminal failures are
// surfaced for operator inspection, never auto-resolved.
type WebhookDelivery struct {
	ID             int64          `json:"id"`
	TenantID       int64          `json:"tenant_id"`
	SubscriptionID int64          `json:"subscription_id"`
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	Payload        []byte         `json:"payload"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	LastError      string         `json:"last_error,omitempty"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
