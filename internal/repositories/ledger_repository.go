package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository owns the payment-side transactions: recording a confirmed
// payment with its schedule match and outbox event, and the cancel/refund
// reversals. Everything is tenant-scoped; a row from another tenant is a
// contract violation, not a filter miss.
type LedgerRepository struct {
	DB *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{DB: db}
}

func (r *LedgerRepository) GetJamaah(ctx context.Context, tenantID, jamaahID int64) (*models.Jamaah, error) {
	j := &models.Jamaah{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, tenant_id, package_id, agent_id, full_name
		FROM jamaah
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, jamaahID).Scan(&j.ID, &j.TenantID, &j.PackageID, &j.AgentID, &j.FullName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("jamaah %d not found in tenant %d", jamaahID, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *LedgerRepository) generateReceiptNumber(ctx context.Context, tx pgx.Tx) (string, error) {
	var nextNum int
	if err := tx.QueryRow(ctx, "SELECT nextval('receipt_number_sequence')").Scan(&nextNum); err != nil {
		return "", fmt.Errorf("failed to get next receipt number: %w", err)
	}
	return fmt.Sprintf("RCP-%06d", nextNum), nil
}

// InsertConfirmedPayment records the payment, matches it against the oldest
// open installment with exactly the paid amount, and writes the outbox event,
// all in a single transaction.
func (r *LedgerRepository) InsertConfirmedPayment(ctx context.Context, p *models.Payment, evt *models.OutboxEvent) (*models.PaymentSchedule, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	receiptNumber, err := r.generateReceiptNumber(ctx, tx)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payments (
			tenant_id, jamaah_id, package_id, amount, method, type, status,
			receipt_number, reference_number, payment_date, recorded_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`,
		p.TenantID, p.JamaahID, p.PackageID, p.Amount, p.Method, p.Type, p.Status,
		receiptNumber, p.ReferenceNumber, p.PaymentDate, p.RecordedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, translateConstraint(err)
	}
	p.ReceiptNumber = receiptNumber

	// Match the oldest open installment whose amount equals the payment
	// exactly. FOR UPDATE keeps a concurrent confirmation from claiming the
	// same installment.
	matched := &models.PaymentSchedule{}
	err = tx.QueryRow(ctx, `
		SELECT id, tenant_id, jamaah_id, installment_number, due_date, amount, status, created_at
		FROM payment_schedules
		WHERE tenant_id = $1 AND jamaah_id = $2 AND status IN ('pending', 'overdue') AND amount = $3
		ORDER BY installment_number
		LIMIT 1
		FOR UPDATE
	`, p.TenantID, p.JamaahID, p.Amount).Scan(
		&matched.ID, &matched.TenantID, &matched.JamaahID, &matched.InstallmentNumber,
		&matched.DueDate, &matched.Amount, &matched.Status, &matched.CreatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		matched = nil
	case err != nil:
		return nil, err
	default:
		var paidAt time.Time
		err = tx.QueryRow(ctx, `
			UPDATE payment_schedules
			SET status = 'paid', paid_at = NOW(), payment_id = $1
			WHERE id = $2 AND tenant_id = $3
			RETURNING paid_at
		`, p.ID, matched.ID, p.TenantID).Scan(&paidAt)
		if err != nil {
			return nil, err
		}
		matched.Status = models.SchedulePaid
		matched.PaidAt = &paidAt
		matched.PaymentID = &p.ID
	}

	if err := stampPaymentID(evt, p.ID); err != nil {
		return nil, err
	}
	if err := insertOutboxEvent(ctx, tx, evt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return matched, nil
}

// stampPaymentID writes the freshly generated payment id into the event
// payload so the stored outbox row references the committed payment.
func stampPaymentID(evt *models.OutboxEvent, paymentID int64) error {
	if evt == nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(evt.Payload, &m); err != nil {
		return fmt.Errorf("outbox payload is not an object: %w", err)
	}
	m["payment_id"] = paymentID
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	evt.Payload = payload
	return nil
}

// CancelPayment moves a confirmed payment to cancelled. The conditional
// UPDATE doubles as the state-machine guard: zero rows means the payment was
// not confirmed.
func (r *LedgerRepository) CancelPayment(ctx context.Context, tenantID, paymentID int64, evt *models.OutboxEvent) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE payments SET status = 'cancelled', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'confirmed'
	`, tenantID, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict("payment %d is not in confirmed state", paymentID)
	}

	if err := insertOutboxEvent(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RefundPayment reverses a confirmed payment: the payment becomes refunded,
// the matched installment reopens, and every derived commission is cancelled.
// History is compensated, never deleted.
func (r *LedgerRepository) RefundPayment(ctx context.Context, tenantID, paymentID int64, evt *models.OutboxEvent) (int, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE payments SET status = 'refunded', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'confirmed'
	`, tenantID, paymentID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, apperrors.Conflict("payment %d is not in confirmed state", paymentID)
	}

	_, err = tx.Exec(ctx, `
		UPDATE payment_schedules
		SET status = 'pending', paid_at = NULL, payment_id = NULL
		WHERE tenant_id = $1 AND payment_id = $2 AND status = 'paid'
	`, tenantID, paymentID)
	if err != nil {
		return 0, err
	}

	cancelled, err := tx.Exec(ctx, `
		UPDATE commissions SET status = 'cancelled', updated_at = NOW()
		WHERE tenant_id = $1 AND payment_id = $2 AND status <> 'cancelled'
	`, tenantID, paymentID)
	if err != nil {
		return 0, err
	}

	if err := insertOutboxEvent(ctx, tx, evt); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(cancelled.RowsAffected()), nil
}

func (r *LedgerRepository) GetPayment(ctx context.Context, tenantID, paymentID int64) (*models.Payment, error) {
	p := &models.Payment{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, tenant_id, jamaah_id, package_id, amount, method, type, status,
		       receipt_number, COALESCE(reference_number, ''), payment_date, recorded_by,
		       created_at, updated_at
		FROM payments
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, paymentID).Scan(
		&p.ID, &p.TenantID, &p.JamaahID, &p.PackageID, &p.Amount, &p.Method, &p.Type, &p.Status,
		&p.ReceiptNumber, &p.ReferenceNumber, &p.PaymentDate, &p.RecordedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("payment %d not found in tenant %d", paymentID, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *LedgerRepository) ListPaymentsByJamaah(ctx context.Context, tenantID, jamaahID int64) ([]*models.Payment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, jamaah_id, package_id, amount, method, type, status,
		       receipt_number, COALESCE(reference_number, ''), payment_date, recorded_by,
		       created_at, updated_at
		FROM payments
		WHERE tenant_id = $1 AND jamaah_id = $2
		ORDER BY payment_date DESC
	`, tenantID, jamaahID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p := &models.Payment{}
		err := rows.Scan(
			&p.ID, &p.TenantID, &p.JamaahID, &p.PackageID, &p.Amount, &p.Method, &p.Type, &p.Status,
			&p.ReceiptNumber, &p.ReferenceNumber, &p.PaymentDate, &p.RecordedBy,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *LedgerRepository) ListSchedulesByJamaah(ctx context.Context, tenantID, jamaahID int64) ([]*models.PaymentSchedule, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, jamaah_id, installment_number, due_date, amount, status,
		       paid_at, payment_id, created_at
		FROM payment_schedules
		WHERE tenant_id = $1 AND jamaah_id = $2
		ORDER BY installment_number
	`, tenantID, jamaahID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.PaymentSchedule
	for rows.Next() {
		s := &models.PaymentSchedule{}
		err := rows.Scan(
			&s.ID, &s.TenantID, &s.JamaahID, &s.InstallmentNumber, &s.DueDate,
			&s.Amount, &s.Status, &s.PaidAt, &s.PaymentID, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// insertOutboxEvent writes a domain event inside the caller's transaction so
// the event commits atomically with the state change it describes.
func insertOutboxEvent(ctx context.Context, tx pgx.Tx, evt *models.OutboxEvent) error {
	if evt == nil {
		return nil
	}
	return tx.QueryRow(ctx, `
		INSERT INTO outbox_events (tenant_id, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, evt.TenantID, evt.EventID, evt.EventType, evt.Payload).Scan(&evt.ID, &evt.CreatedAt)
}

// translateConstraint maps unique-violation errors onto the conflict kind so
// concurrent retries read as no-ops instead of lost updates.
func translateConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperrors.Wrap(apperrors.KindConflict, err, "duplicate row (%s)", pgErr.ConstraintName)
	}
	return err
}
