package repositories

import (
	"context"
	"errors"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WebhookRepository struct {
	DB *pgxpool.Pool
}

func NewWebhookRepository(db *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{DB: db}
}

func (r *WebhookRepository) CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO webhook_subscriptions (tenant_id, url, events, secret, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, sub.TenantID, sub.URL, sub.Events, sub.Secret, sub.IsActive).Scan(&sub.ID, &sub.CreatedAt)
	return translateConstraint(err)
}

func (r *WebhookRepository) ListSubscriptions(ctx context.Context, tenantID int64) ([]*models.WebhookSubscription, error) {
	return r.querySubscriptions(ctx, `
		SELECT id, tenant_id, url, events, secret, is_active, created_at
		FROM webhook_subscriptions
		WHERE tenant_id = $1
		ORDER BY id
	`, tenantID)
}

func (r *WebhookRepository) ListActiveSubscriptions(ctx context.Context, tenantID int64, eventType string) ([]*models.WebhookSubscription, error) {
	return r.querySubscriptions(ctx, `
		SELECT id, tenant_id, url, events, secret, is_active, created_at
		FROM webhook_subscriptions
		WHERE tenant_id = $1 AND is_active = TRUE AND $2 = ANY(events)
		ORDER BY id
	`, tenantID, eventType)
}

func (r *WebhookRepository) querySubscriptions(ctx context.Context, query string, args ...any) ([]*models.WebhookSubscription, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.WebhookSubscription
	for rows.Next() {
		s := &models.WebhookSubscription{}
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &s.Events, &s.Secret, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *WebhookRepository) GetSubscription(ctx context.Context, tenantID, subID int64) (*models.WebhookSubscription, error) {
	s := &models.WebhookSubscription{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, tenant_id, url, events, secret, is_active, created_at
		FROM webhook_subscriptions
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, subID).Scan(&s.ID, &s.TenantID, &s.URL, &s.Events, &s.Secret, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("webhook subscription %d not found in tenant %d", subID, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *WebhookRepository) InsertDeliveries(ctx context.Context, deliveries []*models.WebhookDelivery) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, d := range deliveries {
		err := tx.QueryRow(ctx, `
			INSERT INTO webhook_deliveries (
				tenant_id, subscription_id, event_id, event_type, payload, status, attempt_count
			) VALUES ($1, $2, $3, $4, $5, $6, 0)
			ON CONFLICT (subscription_id, event_id) DO NOTHING
			RETURNING id, created_at
		`, d.TenantID, d.SubscriptionID, d.EventID, d.EventType, d.Payload, d.Status).
			Scan(&d.ID, &d.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue // outbox redelivery; this fan-out already exists
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// DueDeliveries picks deliveries ready for an attempt. Delivery is
// at-least-once: overlapping dispatcher passes may attempt the same row, and
// receivers deduplicate on the embedded event id.
func (r *WebhookRepository) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, subscription_id, event_id, event_type, payload, status,
		       attempt_count, COALESCE(last_error, ''), next_retry_at, delivered_at, created_at
		FROM webhook_deliveries
		WHERE status = 'pending'
		   OR (status = 'failed' AND next_retry_at <= $1)
		ORDER BY id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d := &models.WebhookDelivery{}
		err := rows.Scan(
			&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventID, &d.EventType, &d.Payload,
			&d.Status, &d.AttemptCount, &d.LastError, &d.NextRetryAt, &d.DeliveredAt, &d.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (r *WebhookRepository) MarkDelivered(ctx context.Context, deliveryID int64, attemptCount int, at time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'delivered', attempt_count = $1, delivered_at = $2, next_retry_at = NULL, last_error = NULL
		WHERE id = $3
	`, attemptCount, at, deliveryID)
	return err
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, deliveryID int64, attemptCount int, lastError string, nextRetryAt *time.Time, terminal bool) error {
	status := models.DeliveryFailed
	if terminal {
		status = models.DeliveryMaxRetriesExceeded
		nextRetryAt = nil
	}
	_, err := r.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2, last_error = $3, next_retry_at = $4
		WHERE id = $5
	`, status, attemptCount, lastError, nextRetryAt, deliveryID)
	return err
}

func (r *WebhookRepository) ListDeliveries(ctx context.Context, tenantID, subID int64) ([]*models.WebhookDelivery, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, subscription_id, event_id, event_type, payload, status,
		       attempt_count, COALESCE(last_error, ''), next_retry_at, delivered_at, created_at
		FROM webhook_deliveries
		WHERE tenant_id = $1 AND subscription_id = $2
		ORDER BY id DESC
	`, tenantID, subID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d := &models.WebhookDelivery{}
		err := rows.Scan(
			&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventID, &d.EventType, &d.Payload,
			&d.Status, &d.AttemptCount, &d.LastError, &d.NextRetryAt, &d.DeliveredAt, &d.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
