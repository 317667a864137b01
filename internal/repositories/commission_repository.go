package repositories

import (
	"context"
	"errors"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CommissionRepository struct {
	DB *pgxpool.Pool
}

func NewCommissionRepository(db *pgxpool.Pool) *CommissionRepository {
	return &CommissionRepository{DB: db}
}

func (r *CommissionRepository) GetActiveRule(ctx context.Context, tenantID int64) (*models.CommissionRule, error) {
	rule := &models.CommissionRule{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, tenant_id, total_pct, direct_pct, parent_pct, grandparent_pct, is_active, created_at
		FROM commission_rules
		WHERE tenant_id = $1 AND is_active = TRUE
	`, tenantID).Scan(
		&rule.ID, &rule.TenantID, &rule.TotalPct, &rule.DirectPct,
		&rule.ParentPct, &rule.GrandparentPct, &rule.IsActive, &rule.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Configuration("tenant %d has no active commission rule", tenantID)
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// UpsertRule replaces the tenant's active rule. The partial unique index on
// (tenant_id) WHERE is_active enforces one active rule per tenant.
func (r *CommissionRepository) UpsertRule(ctx context.Context, rule *models.CommissionRule) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE commission_rules SET is_active = FALSE
		WHERE tenant_id = $1 AND is_active = TRUE
	`, rule.TenantID)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO commission_rules (tenant_id, total_pct, direct_pct, parent_pct, grandparent_pct, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, created_at
	`, rule.TenantID, rule.TotalPct, rule.DirectPct, rule.ParentPct, rule.GrandparentPct).
		Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return translateConstraint(err)
	}
	rule.IsActive = true
	return tx.Commit(ctx)
}

func (r *CommissionRepository) ExistingLevels(ctx context.Context, tenantID, paymentID int64) (map[int]bool, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT level FROM commissions
		WHERE tenant_id = $1 AND payment_id = $2
	`, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make(map[int]bool)
	for rows.Next() {
		var level int
		if err := rows.Scan(&level); err != nil {
			return nil, err
		}
		levels[level] = true
	}
	return levels, rows.Err()
}

// InsertCommissions writes the computed rows. The unique index on
// (payment_id, level) plus ON CONFLICT DO NOTHING makes redelivered events a
// no-op instead of a duplicate split.
func (r *CommissionRepository) InsertCommissions(ctx context.Context, commissions []*models.Commission) (int, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, c := range commissions {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO commissions (
				tenant_id, agent_id, jamaah_id, payment_id, base_amount,
				commission_pct, commission_amount, status, level, original_agent_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (payment_id, level) DO NOTHING
			RETURNING id
		`,
			c.TenantID, c.AgentID, c.JamaahID, c.PaymentID, c.BaseAmount,
			c.CommissionPct, c.CommissionAmount, c.Status, c.Level, c.OriginalAgentID,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue // another run already wrote this level
		}
		if err != nil {
			return 0, err
		}
		c.ID = id
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *CommissionRepository) ApproveCommission(ctx context.Context, tenantID, commissionID, actorID int64) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE commissions SET status = 'approved', approved_by = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND id = $3 AND status = 'pending'
	`, actorID, tenantID, commissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from already-transitioned for the caller.
		if _, err := r.GetCommission(ctx, tenantID, commissionID); err != nil {
			return err
		}
		return apperrors.Conflict("commission %d is not pending", commissionID)
	}
	return nil
}

func (r *CommissionRepository) GetCommission(ctx context.Context, tenantID, commissionID int64) (*models.Commission, error) {
	c := &models.Commission{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, tenant_id, agent_id, jamaah_id, payment_id, base_amount,
		       commission_pct, commission_amount, status, level, original_agent_id,
		       created_at, updated_at
		FROM commissions
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, commissionID).Scan(
		&c.ID, &c.TenantID, &c.AgentID, &c.JamaahID, &c.PaymentID, &c.BaseAmount,
		&c.CommissionPct, &c.CommissionAmount, &c.Status, &c.Level, &c.OriginalAgentID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("commission %d not found in tenant %d", commissionID, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CommissionRepository) ListCommissionsByAgent(ctx context.Context, tenantID, agentID int64) ([]*models.Commission, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, agent_id, jamaah_id, payment_id, base_amount,
		       commission_pct, commission_amount, status, level, original_agent_id,
		       created_at, updated_at
		FROM commissions
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY created_at DESC
	`, tenantID, agentID)
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
