package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
)

type PayoutItemStatus string

const (
	PayoutItemPending PayoutItemStatus = "pending"
	PayoutItemPaid    PayoutItemStatus = "paid"
	PayoutItemFailed  PayoutItemStatus = "failed"
)

// CommissionPayout is one batching run's bank-transfer-ready aggregation of
// approved commissions. total_amount always equals the sum of item amounts.
type CommissionPayout struct {
	ID          int64                   `json:"id"`
	TenantID    int64                   `json:"tenant_id"`
	BatchNumber string                  `json:"batch_number"`
	TotalAmount decimal.Decimal         `json:"total_amount"`
	Status      PayoutStatus            `json:"status"`
	AsOfDate    time.Time               `json:"as_of_date"`
	CreatedBy   int64                   `json:"created_by"`
	CreatedAt   time.Time               `json:"created_at"`
	Items       []*CommissionPayoutItem `json:"items,omitempty"`
}

// CommissionPayoutItem aggregates one agent's commissions inside a payout.
// Bank details are snapshotted at batch time so later profile edits don't
// rewrite historical payout records.
type CommissionPayoutItem struct {
	ID              int64            `json:"id"`
	PayoutID        int64            `json:"payout_id"`
	TenantID        int64            `json:"tenant_id"`
	AgentID         int64            `json:"agent_id"`
	Amount          decimal.Decimal  `json:"amount"`
	BankName        string           `json:"bank_name"`
	BankAccountNo   string           `json:"bank_account_number"`
	BankAccountName string           `json:"bank_account_name"`
	Status          PayoutItemStatus `json:"status"`
	CommissionIDs   []int64          `json:"commission_ids,omitempty"`
}

// AgentBankDetails is the live bank profile for an agent, looked up at batch
// time. Items with missing details are created as failed, not dropped.
type AgentBankDetails struct {
	AgentID         int64  `json:"agent_id"`
	BankName        string `json:"bank_name"`
	BankAccountNo   string `json:"bank_account_number"`
	BankAccountName string `json:"bank_account_name"`
}

// Complete reports whether the agent's bank details pass batch validation.
func (d *AgentBankDetails) Complete() bool {
	return d != nil && d.BankName != "" && d.BankAccountNo != "" && d.BankAccountName != ""
}
