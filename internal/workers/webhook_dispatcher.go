// Package workers holds the background loops that run alongside the API:
// the webhook dispatcher here, the outbox poller in internal/outbox.
package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/metrics"
	"umrah-backend/internal/models"
	"umrah-backend/internal/services"
	"umrah-backend/internal/telemetry"

	"go.uber.org/zap"
)

// WebhookDispatcher polls due deliveries and POSTs each signed payload to its
// subscription endpoint. Delivery is at-least-once; receivers dedup on the
// X-Event-Id header.
type WebhookDispatcher struct {
	store       interfaces.WebhookStore
	client      *http.Client
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	interval    time.Duration
	batchSize   int
}

func NewWebhookDispatcher(store interfaces.WebhookStore, maxAttempts int, baseBackoff, maxBackoff, attemptTimeout, interval time.Duration) *WebhookDispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	return &WebhookDispatcher{
		store:       store,
		client:      &http.Client{Timeout: attemptTimeout},
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		interval:    interval,
		batchSize:   50,
	}
}

func (d *WebhookDispatcher) Run(ctx context.Context) {
	telemetry.Logger.Info("webhook dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Int("max_attempts", d.maxAttempts))
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			telemetry.Logger.Info("webhook dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.DispatchDue(ctx, time.Now()); err != nil {
				telemetry.Logger.Error("webhook dispatch pass failed", zap.Error(err))
			}
		}
	}
}

// DispatchDue attempts every delivery whose retry clock has come due. A
// failed attempt schedules the next one at min(base*2^(k-1), cap) plus up to
// 20% jitter; the attempt after maxAttempts is never made.
func (d *WebhookDispatcher) DispatchDue(ctx context.Context, now time.Time) error {
	due, err := d.store.DueDeliveries(ctx, now, d.batchSize)
	if err != nil {
		return err
	}

	for _, delivery := range due {
		sub, err := d.store.GetSubscription(ctx, delivery.TenantID, delivery.SubscriptionID)
		if err != nil {
			telemetry.Logger.Error("delivery references unknown subscription",
				zap.Int64("delivery_id", delivery.ID),
				zap.Int64("subscription_id", delivery.SubscriptionID),
				zap.Error(err))
			continue
		}
		if !sub.IsActive {
			// Deactivated endpoints stop receiving but keep their history.
			continue
		}
		d.attempt(ctx, delivery, sub, now)
	}
	return nil
}

func (d *WebhookDispatcher) attempt(ctx context.Context, delivery *models.WebhookDelivery, sub *models.WebhookSubscription, now time.Time) {
	attemptNo := delivery.AttemptCount + 1

	err := d.post(ctx, delivery, sub, now)
	if err == nil {
		metrics.WebhookAttempts.WithLabelValues("delivered").Inc()
		if markErr := d.store.MarkDelivered(ctx, delivery.ID, attemptNo, time.Now()); markErr != nil {
			telemetry.Logger.Error("failed to record webhook delivery",
				zap.Int64("delivery_id", delivery.ID), zap.Error(markErr))
		}
		return
	}

	if attemptNo >= d.maxAttempts {
		metrics.WebhookAttempts.WithLabelValues("exhausted").Inc()
		telemetry.Logger.Warn("webhook delivery exhausted retries",
			zap.Int64("delivery_id", delivery.ID),
			zap.String("event_id", delivery.EventID),
			zap.Int("attempts", attemptNo),
			zap.Error(err))
		if markErr := d.store.MarkFailed(ctx, delivery.ID, attemptNo, err.Error(), nil, true); markErr != nil {
			telemetry.Logger.Error("failed to record terminal webhook failure",
				zap.Int64("delivery_id", delivery.ID), zap.Error(markErr))
		}
		return
	}

	metrics.WebhookAttempts.WithLabelValues("failed").Inc()
	next := now.Add(d.backoff(attemptNo))
	if markErr := d.store.MarkFailed(ctx, delivery.ID, attemptNo, err.Error(), &next, false); markErr != nil {
		telemetry.Logger.Error("failed to record webhook attempt failure",
			zap.Int64("delivery_id", delivery.ID), zap.Error(markErr))
	}
}

func (d *WebhookDispatcher) post(ctx context.Context, delivery *models.WebhookDelivery, sub *models.WebhookSubscription, now time.Time) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", "hmac-sha256="+services.SignPayload(sub.Secret, delivery.Payload))
	req.Header.Set("X-Event-Id", delivery.EventID)
	req.Header.Set("X-Event-Type", delivery.EventType)
	req.Header.Set("X-Delivery-Id", strconv.FormatInt(delivery.ID, 10))
	req.Header.Set("X-Timestamp", now.UTC().Format(time.RFC3339))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// backoff returns the delay before attempt k+1 after failed attempt k.
func (d *WebhookDispatcher) backoff(attempt int) time.Duration {
	delay := d.baseBackoff << (attempt - 1)
	if delay > d.maxBackoff || delay <= 0 {
		delay = d.maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}
