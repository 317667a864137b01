package repositories

import (
	"context"

	"umrah-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRepository reads the durable event rows written inside ledger
// transactions. Rows are drained in insertion order so commissions for a
// payment always land before that payment's webhook fan-out.
type OutboxRepository struct {
	DB *pgxpool.Pool
}

func NewOutboxRepository(db *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{DB: db}
}

func (r *OutboxRepository) UnprocessedEvents(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, event_id, event_type, payload, created_at, processed_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.OutboxEvent
	for rows.Next() {
		e := &models.OutboxEvent{}
		err := rows.Scan(&e.ID, &e.TenantID, &e.EventID, &e.EventType, &e.Payload, &e.CreatedAt, &e.ProcessedAt)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *OutboxRepository) MarkEventProcessed(ctx context.Context, eventID int64) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE outbox_events SET processed_at = NOW()
		WHERE id = $1 AND processed_at IS NULL
	`, eventID)
	return err
}

func (r *OutboxRepository) Backlog(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE processed_at IS NULL`).Scan(&n)
	return n, err
}
