package repositories

import (
	"context"
	"errors"
	"fmt"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PayoutRepository struct {
	DB *pgxpool.Pool
}

func NewPayoutRepository(db *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{DB: db}
}

// ListApprovedUnpaid returns approved commissions that have never been
// claimed by a payout item. payout_item_id IS NULL is the "never paid twice"
// guard the batcher relies on.
func (r *PayoutRepository) ListApprovedUnpaid(ctx context.Context, tenantID int64) ([]*models.Commission, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, agent_id, jamaah_id, payment_id, base_amount,
		       commission_pct, commission_amount, status, level, original_agent_id,
		       created_at, updated_at
		FROM commissions
		WHERE tenant_id = $1 AND status = 'approved' AND payout_item_id IS NULL
		ORDER BY agent_id, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commissions []*models.Commission
	for rows.Next() {
		c := &models.Commission{}
		err := rows.Scan(
			&c.ID, &c.TenantID, &c.AgentID, &c.JamaahID, &c.PaymentID, &c.BaseAmount,
			&c.CommissionPct, &c.CommissionAmount, &c.Status, &c.Level, &c.OriginalAgentID,
			&c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		commissions = append(commissions, c)
	}
	return commissions, rows.Err()
}

func (r *PayoutRepository) GetAgentBankDetails(ctx context.Context, tenantID int64, agentIDs []int64) (map[int64]*models.AgentBankDetails, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT agent_id, COALESCE(bank_name, ''), COALESCE(bank_account_number, ''), COALESCE(bank_account_name, '')
		FROM agent_bank_details
		WHERE tenant_id = $1 AND agent_id = ANY($2)
	`, tenantID, agentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make(map[int64]*models.AgentBankDetails)
	for rows.Next() {
		d := &models.AgentBankDetails{}
		if err := rows.Scan(&d.AgentID, &d.BankName, &d.BankAccountNo, &d.BankAccountName); err != nil {
			return nil, err
		}
		details[d.AgentID] = d
	}
	return details, rows.Err()
}

// CreateBatch persists the payout, its items and the commission linkage in one
// transaction. Every included commission must still be approved and unclaimed;
// a concurrent batch claiming the same commission fails the whole transaction
// with a conflict instead of paying it twice.
func (r *PayoutRepository) CreateBatch(ctx context.Context, payout *models.CommissionPayout) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var seq int
	if err := tx.QueryRow(ctx, "SELECT nextval('payout_batch_sequence')").Scan(&seq); err != nil {
		return fmt.Errorf("failed to get next batch number: %w", err)
	}
	payout.BatchNumber = fmt.Sprintf("PB-%06d", seq)

	err = tx.QueryRow(ctx, `
		INSERT INTO commission_payouts (tenant_id, batch_number, total_amount, status, as_of_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`,
		payout.TenantID, payout.BatchNumber, payout.TotalAmount, payout.Status,
		payout.AsOfDate, payout.CreatedBy,
	).Scan(&payout.ID, &payout.CreatedAt)
	if err != nil {
		return translateConstraint(err)
	}

	for _, item := range payout.Items {
		item.PayoutID = payout.ID
		item.TenantID = payout.TenantID
		err = tx.QueryRow(ctx, `
			INSERT INTO commission_payout_items (
				payout_id, tenant_id, agent_id, amount,
				bank_name, bank_account_number, bank_account_name, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`,
			item.PayoutID, item.TenantID, item.AgentID, item.Amount,
			item.BankName, item.BankAccountNo, item.BankAccountName, item.Status,
		).Scan(&item.ID)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE commissions
			SET status = 'paid', payout_item_id = $1, updated_at = NOW()
			WHERE tenant_id = $2 AND id = ANY($3) AND status = 'approved' AND payout_item_id IS NULL
		`, item.ID, item.TenantID, item.CommissionIDs)
		if err != nil {
			return err
		}
		if int(tag.RowsAffected()) != len(item.CommissionIDs) {
			return apperrors.Conflict(
				"payout batch lost a race: %d of %d commissions for agent %d were already claimed",
				len(item.CommissionIDs)-int(tag.RowsAffected()), len(item.CommissionIDs), item.AgentID,
			)
		}
	}

	return tx.Commit(ctx)
}

func (r *PayoutRepository) GetPayout(ctx context.Context, tenantID, payoutID int64) (*models.CommissionPayout, error) {
	p := &models.CommissionPayout{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, tenant_id, batch_number, total_amount, status, as_of_date, created_by, created_at
		FROM commission_payouts
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, payoutID).Scan(
		&p.ID, &p.TenantID, &p.BatchNumber, &p.TotalAmount, &p.Status,
		&p.AsOfDate, &p.CreatedBy, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("payout %d not found in tenant %d", payoutID, tenantID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT i.id, i.payout_id, i.tenant_id, i.agent_id, i.amount,
		       i.bank_name, i.bank_account_number, i.bank_account_name, i.status,
		       COALESCE(array_agg(c.id) FILTER (WHERE c.id IS NOT NULL), '{}')
		FROM commission_payout_items i
		LEFT JOIN commissions c ON c.payout_item_id = i.id
		WHERE i.payout_id = $1 AND i.tenant_id = $2
		GROUP BY i.id
		ORDER BY i.agent_id
	`, payoutID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item := &models.CommissionPayoutItem{}
		err := rows.Scan(
			&item.ID, &item.PayoutID, &item.TenantID, &item.AgentID, &item.Amount,
			&item.BankName, &item.BankAccountNo, &item.BankAccountName, &item.Status,
			&item.CommissionIDs,
		)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, item)
	}
	return p, rows.Err()
}

func (r *PayoutRepository) ListPayouts(ctx context.Context, tenantID int64) ([]*models.CommissionPayout, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, batch_number, total_amount, status, as_of_date, created_by, created_at
		FROM commission_payouts
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []*models.CommissionPayout
	for rows.Next() {
		p := &models.CommissionPayout{}
		err := rows.Scan(
			&p.ID, &p.TenantID, &p.BatchNumber, &p.TotalAmount, &p.Status,
			&p.AsOfDate, &p.CreatedBy, &p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
