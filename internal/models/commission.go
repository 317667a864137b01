package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionApproved  CommissionStatus = "approved"
	CommissionPaid      CommissionStatus = "paid"
	CommissionCancelled CommissionStatus = "cancelled"
)

// Commission levels: 1 = the selling agent, 2 = their referrer,
// 3 = the referrer's referrer.
const (
	LevelDirect      = 1
	LevelParent      = 2
	LevelGrandparent = 3
)

// Commission is one agent's share of a confirmed payment. At most one row
// exists per (payment_id, level); re-running distribution is a no-op.
type Commission struct {
	ID               int64            `json:"id"`
	TenantID         int64            `json:"tenant_id"`
	AgentID          int64            `json:"agent_id"`
	JamaahID         int64            `json:"jamaah_id"`
	PaymentID        int64            `json:"payment_id"`
	BaseAmount       decimal.Decimal  `json:"base_amount"`
	CommissionPct    decimal.Decimal  `json:"commission_pct"`
	CommissionAmount decimal.Decimal  `json:"commission_amount"`
	Status           CommissionStatus `json:"status"`
	Level            int              `json:"level"`
	OriginalAgentID  *int64           `json:"original_agent_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CommissionRule is the tenant's commission split. One active rule per tenant.
type CommissionRule struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	TotalPct       decimal.Decimal `json:"total_pct"`
	DirectPct      decimal.Decimal `json:"direct_pct"`
	ParentPct      decimal.Decimal `json:"parent_pct"`
	GrandparentPct decimal.Decimal `json:"grandparent_pct"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PctForLevel returns the configured percentage for a commission level.
func (r *CommissionRule) PctForLevel(level int) decimal.Decimal {
	switch level {
	case LevelDirect:
		return r.DirectPct
	case LevelParent:
		return r.ParentPct
	case LevelGrandparent:
		return r.GrandparentPct
	}
	return decimal.Zero
}

// Validate enforces the rule invariants: every percentage in [0,100] and the
// per-level split never exceeding the total.
func (r *CommissionRule) Validate() error {
	hundred := decimal.NewFromInt(100)
	for name, pct := range map[string]decimal.Decimal{
		"total_pct":       r.TotalPct,
		"direct_pct":      r.DirectPct,
		"parent_pct":      r.ParentPct,
		"grandparent_pct": r.GrandparentPct,
	} {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return fmt.Errorf("%s must be between 0 and 100, got %s", name, pct)
		}
	}
	split := r.DirectPct.Add(r.ParentPct).Add(r.GrandparentPct)
	if split.GreaterThan(r.TotalPct) {
		return fmt.Errorf("level percentages sum to %s which exceeds total_pct %s", split, r.TotalPct)
	}
	return nil
}

// CommissionAmount computes base * pct / 100 rounded half-even to the tenant
// currency's minor unit, so rounding bias does not accumulate across many
// small payments.
func CommissionAmount(base, pct decimal.Decimal, exponent int32) decimal.Decimal {
	return base.Mul(pct).Div(decimal.NewFromInt(100)).RoundBank(exponent)
}

// ReferrerChain is the shallow fixed-depth agent hierarchy for one selling
// agent: [0] the agent themself, [1] their referrer, [2] the referrer's
// referrer. Nil entries mean the level does not exist; its percentage is
// forfeited, never redistributed.
type ReferrerChain [3]*int64

// AgentForLevel returns the agent occupying a 1-based commission level.
func (c ReferrerChain) AgentForLevel(level int) *int64 {
	if level < 1 || level > 3 {
		return nil
	}
	return c[level-1]
}
