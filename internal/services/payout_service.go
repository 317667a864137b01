package services

import (
	"context"
	"sort"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/cache"
	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/metrics"
	"umrah-backend/internal/models"
	"umrah-backend/internal/telemetry"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const payoutLockTTL = 2 * time.Minute

// PayoutService batches approved commissions into bank-transfer-ready
// payouts. A commission is included in at most one payout, ever.
type PayoutService struct {
	store interfaces.PayoutStore
}

func NewPayoutService(store interfaces.PayoutStore) *PayoutService {
	return &PayoutService{store: store}
}

// CreatePayoutBatch groups every approved, never-paid commission by agent
// into one payout. Agents whose bank details fail validation get a failed
// item rather than failing the whole batch. Returns ErrNothingToPayout when
// no commissions qualify.
func (s *PayoutService) CreatePayoutBatch(ctx context.Context, tenantID int64, asOfDate time.Time, actorID int64) (*models.CommissionPayout, error) {
	release, ok := cache.AcquireRunLock(ctx, "payout_batch", tenantID, payoutLockTTL)
	if !ok {
		return nil, apperrors.Conflict("a payout batching run is already in progress for tenant %d", tenantID)
	}
	defer release()

	commissions, err := s.store.ListApprovedUnpaid(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(commissions) == 0 {
		return nil, apperrors.ErrNothingToPayout
	}

	byAgent := make(map[int64][]*models.Commission)
	for _, c := range commissions {
		if err := guardTenant(tenantID, c.TenantID, "commission"); err != nil {
			return nil, err
		}
		byAgent[c.AgentID] = append(byAgent[c.AgentID], c)
	}

	agentIDs := make([]int64, 0, len(byAgent))
	for agentID := range byAgent {
		agentIDs = append(agentIDs, agentID)
	}
	sort.Slice(agentIDs, func(i, j int) bool { return agentIDs[i] < agentIDs[j] })

	bankDetails, err := s.store.GetAgentBankDetails(ctx, tenantID, agentIDs)
	if err != nil {
		return nil, err
	}

	payout := &models.CommissionPayout{
		TenantID:  tenantID,
		Status:    models.PayoutPending,
		AsOfDate:  asOfDate,
		CreatedBy: actorID,
	}

	total := decimal.Zero
	for _, agentID := range agentIDs {
		item := &models.CommissionPayoutItem{
			AgentID: agentID,
			Amount:  decimal.Zero,
			Status:  models.PayoutItemPending,
		}
		for _, c := range byAgent[agentID] {
			item.Amount = item.Amount.Add(c.CommissionAmount)
			item.CommissionIDs = append(item.CommissionIDs, c.ID)
		}

		// Snapshot bank details at batch time so later profile edits don't
		// rewrite historical payout records.
		if d := bankDetails[agentID]; d.Complete() {
			item.BankName = d.BankName
			item.BankAccountNo = d.BankAccountNo
			item.BankAccountName = d.BankAccountName
		} else {
			item.Status = models.PayoutItemFailed
		}

		total = total.Add(item.Amount)
		payout.Items = append(payout.Items, item)
	}
	payout.TotalAmount = total

	if err := s.store.CreateBatch(ctx, payout); err != nil {
		return nil, err
	}

	metrics.PayoutBatches.Inc()
	telemetry.Logger.Info("payout batch created",
		zap.Int64("tenant_id", tenantID),
		zap.String("batch_number", payout.BatchNumber),
		zap.Int("agents", len(payout.Items)),
		zap.Int("commissions", len(commissions)),
		zap.String("total_amount", payout.TotalAmount.String()),
	)
	return payout, nil
}

func (s *PayoutService) GetPayout(ctx context.Context, tenantID, payoutID int64) (*models.CommissionPayout, error) {
	p, err := s.store.GetPayout(ctx, tenantID, payoutID)
	if err != nil {
		return nil, err
	}
	if err := guardTenant(tenantID, p.TenantID, "payout"); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PayoutService) ListPayouts(ctx context.Context, tenantID int64) ([]*models.CommissionPayout, error) {
	return s.store.ListPayouts(ctx, tenantID)
}
