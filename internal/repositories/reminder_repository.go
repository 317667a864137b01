package repositories

import (
	"context"
	"errors"
	"time"

	"umrah-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReminderRepository struct {
	DB *pgxpool.Pool
}

func NewReminderRepository(db *pgxpool.Pool) *ReminderRepository {
	return &ReminderRepository{DB: db}
}

// ListOpenSchedules returns pending installments due on or before the
// look-ahead horizon. Overdue rows are pending rows whose due date already
// passed, so the same predicate covers them.
func (r *ReminderRepository) ListOpenSchedules(ctx context.Context, tenantID int64, horizon time.Time) ([]*models.PaymentSchedule, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, jamaah_id, installment_number, due_date, amount, status,
		       paid_at, payment_id, created_at
		FROM payment_schedules
		WHERE tenant_id = $1 AND status IN ('pending', 'overdue') AND due_date <= $2
		ORDER BY due_date
	`, tenantID, horizon)
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

// InsertReminders relies on the partial unique index over non-skipped
// (schedule, channel, day) rows: re-running the scan inserts nothing new.
// scheduled_for is a DATE column; the scheduler always hands us UTC midnights.
func (r *ReminderRepository) InsertReminders(ctx context.Context, reminders []*models.PaymentReminder) (int, error) {
	inserted := 0
	for _, rem := range reminders {
		var id int64
		err := r.DB.QueryRow(ctx, `
			INSERT INTO payment_reminders (tenant_id, payment_schedule_id, channel, status, scheduled_for)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (payment_schedule_id, channel, scheduled_for) WHERE status <> 'skipped'
			DO NOTHING
			RETURNING id
		`, rem.TenantID, rem.PaymentScheduleID, rem.Channel, rem.Status, rem.ScheduledFor).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return inserted, err
		}
		rem.ID = id
		inserted++
	}
	return inserted, nil
}

// TenantsWithOpenSchedules lists the tenants the periodic scan loop must
// visit: anyone with a pending installment due on or before the horizon.
func (r *ReminderRepository) TenantsWithOpenSchedules(ctx context.Context, horizon time.Time) ([]int64, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT DISTINCT tenant_id
		FROM payment_schedules
		WHERE status IN ('pending', 'overdue') AND due_date <= $1
	`, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func (r *ReminderRepository) SkipPendingForSchedule(ctx context.Context, tenantID, scheduleID int64) (int, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE payment_reminders SET status = 'skipped'
		WHERE tenant_id = $1 AND payment_schedule_id = $2 AND status = 'pending'
	`, tenantID, scheduleID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *ReminderRepository) ListPendingReminders(ctx context.Context, tenantID int64) ([]*models.PaymentReminder, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, payment_schedule_id, channel, status, scheduled_for, created_at
		FROM payment_reminders
		WHERE tenant_id = $1 AND status = 'pending'
		ORDER BY scheduled_for
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*models.PaymentReminder
	for rows.Next() {
		rem := &models.PaymentReminder{}
		err := rows.Scan(
			&rem.ID, &rem.TenantID, &rem.PaymentScheduleID, &rem.Channel,
			&rem.Status, &rem.ScheduledFor, &rem.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func (r *ReminderRepository) MarkReminderStatus(ctx context.Context, tenantID, reminderID int64, status models.ReminderStatus) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE payment_reminders SET status = $1
		WHERE tenant_id = $2 AND id = $3
	`, status, tenantID, reminderID)
	return err
}
