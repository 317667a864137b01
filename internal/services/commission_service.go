package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/cache"
	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/metrics"
	"umrah-backend/internal/models"
	"umrah-backend/internal/telemetry"

	"go.uber.org/zap"
)

// CommissionService derives multi-level agent commissions from confirmed
// payments and handles the review transitions.
type CommissionService struct {
	store     interfaces.CommissionStore
	directory interfaces.ReferrerDirectory
	ledger    interfaces.PaymentLedger
	exponent  int32
}

func NewCommissionService(store interfaces.CommissionStore, directory interfaces.ReferrerDirectory, ledger interfaces.PaymentLedger, currencyExponent int32) *CommissionService {
	return &CommissionService{
		store:     store,
		directory: directory,
		ledger:    ledger,
		exponent:  currencyExponent,
	}
}

// Distribute consumes a payment.confirmed event and writes one commission row
// per resolvable level. Events are delivered at least once; existing
// (payment, level) rows make redelivery a no-op. Percentages of missing upper
// levels are forfeited, never redistributed.
func (s *CommissionService) Distribute(ctx context.Context, env *models.DomainEvent) ([]*models.Commission, error) {
	var data models.PaymentConfirmedData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, apperrors.InvalidArgument("malformed payment.confirmed payload: %v", err)
	}
	if data.PaymentID == 0 {
		return nil, apperrors.InvalidArgument("payment.confirmed event %s carries no payment id", env.EventID)
	}
	if err := guardTenant(env.TenantID, data.TenantID, "payment.confirmed payload"); err != nil {
		return nil, err
	}

	existing, err := s.store.ExistingLevels(ctx, data.TenantID, data.PaymentID)
	if err != nil {
		return nil, err
	}

	rule, err := s.activeRule(ctx, data.TenantID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindConfiguration) {
			metrics.DistributionsDeferred.Inc()
			telemetry.Logger.Error("commission distribution deferred: no active rule",
				zap.Int64("tenant_id", data.TenantID),
				zap.Int64("payment_id", data.PaymentID))
		}
		return nil, err
	}

	chain, err := s.directory.ResolveReferrerChain(ctx, data.TenantID, data.AgentID)
	if err != nil {
		return nil, err
	}

	var rows []*models.Commission
	for level := models.LevelDirect; level <= models.LevelGrandparent; level++ {
		if existing[level] {
			continue
		}
		agentID := chain.AgentForLevel(level)
		if agentID == nil {
			continue
		}
		pct := rule.PctForLevel(level)
		if pct.IsZero() {
			continue
		}
		c := &models.Commission{
			TenantID:         data.TenantID,
			AgentID:          *agentID,
			JamaahID:         data.JamaahID,
			PaymentID:        data.PaymentID,
			BaseAmount:       data.Amount,
			CommissionPct:    pct,
			CommissionAmount: models.CommissionAmount(data.Amount, pct, s.exponent),
			Status:           models.CommissionPending,
			Level:            level,
		}
		if level > models.LevelDirect {
			// Upper levels record whose sale generated the commission.
			original := data.AgentID
			c.OriginalAgentID = &original
		}
		rows = append(rows, c)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	inserted, err := s.store.InsertCommissions(ctx, rows)
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		metrics.CommissionsCreated.WithLabelValues(strconv.Itoa(c.Level)).Inc()
	}
	telemetry.Logger.Info("commissions distributed",
		zap.Int64("tenant_id", data.TenantID),
		zap.Int64("payment_id", data.PaymentID),
		zap.Int("levels", len(rows)),
		zap.Int("inserted", inserted),
	)
	return rows, nil
}

// Redistribute re-runs distribution for a payment whose original pass was
// deferred (typically a missing rule fixed later by the operator).
func (s *CommissionService) Redistribute(ctx context.Context, tenantID, paymentID int64) ([]*models.Commission, error) {
	payment, err := s.ledger.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentConfirmed {
		return nil, apperrors.Conflict("payment %d is %s, only confirmed payments earn commissions", paymentID, payment.Status)
	}
	jamaah, err := s.ledger.GetJamaah(ctx, tenantID, payment.JamaahID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(&models.PaymentConfirmedData{
		PaymentID: payment.ID,
		TenantID:  tenantID,
		JamaahID:  payment.JamaahID,
		AgentID:   jamaah.AgentID,
		Amount:    payment.Amount,
	})
	if err != nil {
		return nil, err
	}
	return s.Distribute(ctx, models.NewDomainEvent(models.EventPaymentConfirmed, tenantID, time.Now(), data))
}

// Approve moves a pending commission into the payable pool.
func (s *CommissionService) Approve(ctx context.Context, tenantID, commissionID, actorID int64) (*models.Commission, error) {
	if err := s.store.ApproveCommission(ctx, tenantID, commissionID, actorID); err != nil {
		return nil, err
	}
	return s.store.GetCommission(ctx, tenantID, commissionID)
}

func (s *CommissionService) ListByAgent(ctx context.Context, tenantID, agentID int64) ([]*models.Commission, error) {
	return s.store.ListCommissionsByAgent(ctx, tenantID, agentID)
}

// ActiveRule returns the tenant's current rule, read-through cached.
func (s *CommissionService) ActiveRule(ctx context.Context, tenantID int64) (*models.CommissionRule, error) {
	return s.activeRule(ctx, tenantID)
}

func (s *CommissionService) activeRule(ctx context.Context, tenantID int64) (*models.CommissionRule, error) {
	if rule, ok := cache.GetCachedRule(ctx, tenantID); ok {
		return rule, nil
	}
	rule, err := s.store.GetActiveRule(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cache.CacheRule(ctx, rule)
	return rule, nil
}

// SetRule replaces the tenant's active commission rule.
func (s *CommissionService) SetRule(ctx context.Context, rule *models.CommissionRule) error {
	if err := rule.Validate(); err != nil {
		return apperrors.Wrap(apperrors.KindInvalidArgument, err, "invalid commission rule")
	}
	if err := s.store.UpsertRule(ctx, rule); err != nil {
		return err
	}
	cache.InvalidateRule(ctx, rule.TenantID)
	telemetry.Logger.Info("commission rule updated",
		zap.Int64("tenant_id", rule.TenantID),
		zap.String("total_pct", rule.TotalPct.String()))
	return nil
}
