package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"slices"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/models"
	"umrah-backend/internal/telemetry"

	"go.uber.org/zap"
)

var knownEventTypes = []string{
	models.EventPaymentConfirmed,
	models.EventPaymentFailed,
	models.EventJamaahUpdated,
}

// WebhookService manages tenant subscriptions and fans domain events out
// into per-subscription delivery rows. The dispatcher worker does the actual
// sending.
type WebhookService struct {
	store interfaces.WebhookStore
}

func NewWebhookService(store interfaces.WebhookStore) *WebhookService {
	return &WebhookService{store: store}
}

func (s *WebhookService) RegisterSubscription(ctx context.Context, tenantID int64, rawURL string, events []string, secret string) (*models.WebhookSubscription, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.InvalidArgument("webhook url must be an absolute http(s) url, got %q", rawURL)
	}
	if len(events) == 0 {
		return nil, apperrors.InvalidArgument("subscription must declare at least one event type")
	}
	for _, evt := range events {
		if !slices.Contains(knownEventTypes, evt) {
			return nil, apperrors.InvalidArgument("unknown event type %q", evt)
		}
	}
	if len(secret) < 16 {
		return nil, apperrors.InvalidArgument("webhook secret must be at least 16 characters")
	}

	sub := &models.WebhookSubscription{
		TenantID: tenantID,
		URL:      rawURL,
		Events:   events,
		Secret:   secret,
		IsActive: true,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	telemetry.Logger.Info("webhook subscription registered",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("subscription_id", sub.ID),
		zap.Strings("events", events),
	)
	return sub, nil
}

// FanOut creates one pending delivery per active subscription listening for
// the event type. Fan-out is idempotent per (subscription, event id), so an
// outbox redelivery adds nothing.
func (s *WebhookService) FanOut(ctx context.Context, env *models.DomainEvent) error {
	subs, err := s.store.ListActiveSubscriptions(ctx, env.TenantID, env.EventType)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	deliveries := make([]*models.WebhookDelivery, 0, len(subs))
	for _, sub := range subs {
		deliveries = append(deliveries, &models.WebhookDelivery{
			TenantID:       env.TenantID,
			SubscriptionID: sub.ID,
			EventID:        env.EventID,
			EventType:      env.EventType,
			Payload:        payload,
			Status:         models.DeliveryPending,
		})
	}
	return s.store.InsertDeliveries(ctx, deliveries)
}

func (s *WebhookService) ListSubscriptions(ctx context.Context, tenantID int64) ([]*models.WebhookSubscription, error) {
	return s.store.ListSubscriptions(ctx, tenantID)
}

func (s *WebhookService) ListDeliveries(ctx context.Context, tenantID, subID int64) ([]*models.WebhookDelivery, error) {
	if _, err := s.store.GetSubscription(ctx, tenantID, subID); err != nil {
		return nil, err
	}
	return s.store.ListDeliveries(ctx, tenantID, subID)
}

// SignPayload computes the hex HMAC-SHA256 of the raw body with the
// subscription secret, as sent in the X-Signature header.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
