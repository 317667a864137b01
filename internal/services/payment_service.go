package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/metrics"
	"umrah-backend/internal/models"
	"umrah-backend/internal/pdf"
	"umrah-backend/internal/telemetry"

	"go.uber.org/zap"
)

// PaymentService is the payment recorder: it validates and persists payments,
// settles the matching installment, and emits the outbox event the rest of
// the pipeline hangs off.
type PaymentService struct {
	ledger      interfaces.PaymentLedger
	reminderSvc *ReminderService
}

func NewPaymentService(ledger interfaces.PaymentLedger) *PaymentService {
	return &PaymentService{ledger: ledger}
}

// SetReminderService wires the cancellation hook that skips pending reminders
// once their installment settles.
func (s *PaymentService) SetReminderService(svc *ReminderService) {
	s.reminderSvc = svc
}

// guardTenant is the application-level row isolation check: a fetched record
// whose tenant differs from the caller's context is a contract violation,
// never just an empty result.
func guardTenant(callerTenant, recordTenant int64, record string) error {
	if callerTenant != recordTenant {
		return apperrors.New(apperrors.KindConflict,
			"tenant isolation violation: %s belongs to tenant %d, caller is tenant %d",
			record, recordTenant, callerTenant)
	}
	return nil
}

// RecordPayment records and confirms a payment in one step (no external
// gateway callback exists in this flow) and tries to settle the oldest open
// installment with exactly the paid amount. A payment that matches nothing is
// still recorded; the mismatch is reported to the caller, not absorbed.
func (s *PaymentService) RecordPayment(ctx context.Context, tenantID, actorID int64, req *models.CreatePaymentRequest) (*models.RecordPaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.InvalidArgument("payment amount must be positive, got %s", req.Amount)
	}
	switch req.Type {
	case models.PaymentTypeDP, models.PaymentTypeInstallment, models.PaymentTypeFull:
	default:
		return nil, apperrors.InvalidArgument("unknown payment type %q", req.Type)
	}

	jamaah, err := s.ledger.GetJamaah(ctx, tenantID, req.JamaahID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.InvalidArgument("jamaah %d does not exist in tenant %d", req.JamaahID, tenantID)
		}
		return nil, err
	}
	if err := guardTenant(tenantID, jamaah.TenantID, "jamaah"); err != nil {
		return nil, err
	}
	if jamaah.PackageID != req.PackageID {
		return nil, apperrors.InvalidArgument("jamaah %d is not enrolled in package %d", req.JamaahID, req.PackageID)
	}

	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	payment := &models.Payment{
		TenantID:        tenantID,
		JamaahID:        req.JamaahID,
		PackageID:       req.PackageID,
		Amount:          req.Amount,
		Method:          req.Method,
		Type:            req.Type,
		Status:          models.PaymentConfirmed,
		ReferenceNumber: req.ReferenceNumber,
		PaymentDate:     paymentDate,
		RecordedBy:      actorID,
	}

	data, err := json.Marshal(&models.PaymentConfirmedData{
		TenantID: tenantID,
		JamaahID: req.JamaahID,
		AgentID:  jamaah.AgentID,
		Amount:   req.Amount,
	})
	if err != nil {
		return nil, err
	}
	evt := outboxEventFrom(models.NewDomainEvent(models.EventPaymentConfirmed, tenantID, time.Now(), data))

	// The ledger stamps the generated payment id into the event payload
	// before the outbox row commits.
	matched, err := s.ledger.InsertConfirmedPayment(ctx, payment, evt)
	if err != nil {
		return nil, err
	}

	metrics.PaymentsRecorded.WithLabelValues(strconv.FormatBool(matched != nil)).Inc()
	telemetry.Logger.Info("payment recorded",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("payment_id", payment.ID),
		zap.String("receipt_number", payment.ReceiptNumber),
		zap.String("amount", payment.Amount.String()),
		zap.Bool("schedule_matched", matched != nil),
	)

	if matched != nil && s.reminderSvc != nil {
		// Best effort: the installment is settled, pending reminders for it
		// should not fire.
		if _, err := s.reminderSvc.CancelPending(ctx, tenantID, matched.ID); err != nil {
			telemetry.Logger.Warn("failed to skip reminders for settled schedule",
				zap.Int64("schedule_id", matched.ID), zap.Error(err))
		}
	}

	return &models.RecordPaymentResult{
		Payment:         payment,
		MatchedSchedule: matched,
		ScheduleMatched: matched != nil,
	}, nil
}

// Cancel reverses a confirmed payment before any money moved downstream.
func (s *PaymentService) Cancel(ctx context.Context, tenantID, paymentID, actorID int64) error {
	evt, err := reversalEvent(tenantID, paymentID, "cancelled")
	if err != nil {
		return err
	}
	if err := s.ledger.CancelPayment(ctx, tenantID, paymentID, evt); err != nil {
		return err
	}
	telemetry.Logger.Info("payment cancelled",
		zap.Int64("tenant_id", tenantID), zap.Int64("payment_id", paymentID), zap.Int64("actor_id", actorID))
	return nil
}

// Refund reverses a confirmed payment: the installment reopens and every
// commission derived from the payment is cancelled as a compensating update.
func (s *PaymentService) Refund(ctx context.Context, tenantID, paymentID, actorID int64) error {
	evt, err := reversalEvent(tenantID, paymentID, "refunded")
	if err != nil {
		return err
	}
	cancelled, err := s.ledger.RefundPayment(ctx, tenantID, paymentID, evt)
	if err != nil {
		return err
	}
	telemetry.Logger.Info("payment refunded",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("payment_id", paymentID),
		zap.Int64("actor_id", actorID),
		zap.Int("commissions_cancelled", cancelled))
	return nil
}

func (s *PaymentService) GetPayment(ctx context.Context, tenantID, paymentID int64) (*models.Payment, error) {
	p, err := s.ledger.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if err := guardTenant(tenantID, p.TenantID, "payment"); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) ListPaymentsByJamaah(ctx context.Context, tenantID, jamaahID int64) ([]*models.Payment, error) {
	return s.ledger.ListPaymentsByJamaah(ctx, tenantID, jamaahID)
}

func (s *PaymentService) ListSchedulesByJamaah(ctx context.Context, tenantID, jamaahID int64) ([]*models.PaymentSchedule, error) {
	return s.ledger.ListSchedulesByJamaah(ctx, tenantID, jamaahID)
}

// ReceiptData assembles everything the printable receipt shows, including
// the installment this payment settled, if any.
func (s *PaymentService) ReceiptData(ctx context.Context, tenantID, paymentID int64) (*pdf.ReceiptData, error) {
	payment, err := s.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	jamaah, err := s.ledger.GetJamaah(ctx, tenantID, payment.JamaahID)
	if err != nil {
		return nil, err
	}

	var settled *models.PaymentSchedule
	schedules, err := s.ledger.ListSchedulesByJamaah(ctx, tenantID, payment.JamaahID)
	if err != nil {
		return nil, err
	}
	for _, sched := range schedules {
		if sched.PaymentID != nil && *sched.PaymentID == paymentID {
			settled = sched
			break
		}
	}

	return &pdf.ReceiptData{
		Payment:  payment,
		Jamaah:   jamaah,
		Schedule: settled,
	}, nil
}

func outboxEventFrom(env *models.DomainEvent) *models.OutboxEvent {
	return &models.OutboxEvent{
		TenantID:  env.TenantID,
		EventID:   env.EventID,
		EventType: env.EventType,
		Payload:   env.Data,
	}
}

func reversalEvent(tenantID, paymentID int64, reason string) (*models.OutboxEvent, error) {
	data, err := json.Marshal(map[string]any{
		"payment_id": paymentID,
		"tenant_id":  tenantID,
		"reason":     reason,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reversal event: %w", err)
	}
	return outboxEventFrom(models.NewDomainEvent(models.EventPaymentFailed, tenantID, time.Now(), data)), nil
}
