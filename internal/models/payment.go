package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentType string

const (
	PaymentTypeDP          PaymentType = "dp"
	PaymentTypeInstallment PaymentType = "installment"
	PaymentTypeFull        PaymentType = "full_payment"
)

// Payment is a money-in record against a jamaah's package. Immutable once
// confirmed except for the cancel/refund reversal transitions.
type Payment struct {
	ID              int64           `json:"id"`
	TenantID        int64           `json:"tenant_id"`
	JamaahID        int64           `json:"jamaah_id"`
	PackageID       int64           `json:"package_id"`
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method"`
	Type            PaymentType     `json:"type"`
	Status          PaymentStatus   `json:"status"`
	ReceiptNumber   string          `json:"receipt_number"`
	ReferenceNumber string          `json:"reference_number"`
	PaymentDate     time.Time       `json:"payment_date"`
	RecordedBy      int64           `json:"recorded_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "pending"
	SchedulePaid    ScheduleStatus = "paid"
	ScheduleOverdue ScheduleStatus = "overdue"
	ScheduleWaived  ScheduleStatus = "waived"
)

// PaymentSchedule is one planned installment for a jamaah. "overdue" is derived
// from due_date < now while still pending; only the payment recorder may set
// "paid", and only by linking a confirmed payment.
type PaymentSchedule struct {
	ID                int64           `json:"id"`
	TenantID          int64           `json:"tenant_id"`
	JamaahID          int64           `json:"jamaah_id"`
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	Amount            decimal.Decimal `json:"amount"`
	Status            ScheduleStatus  `json:"status"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	PaymentID         *int64          `json:"payment_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// EffectiveStatus folds the derived overdue state into the stored status.
func (s *PaymentSchedule) EffectiveStatus(now time.Time) ScheduleStatus {
	if s.Status == SchedulePending && s.DueDate.Before(now) {
		return ScheduleOverdue
	}
	return s.Status
}

// Jamaah is the pilgrim customer record. The dashboard layer owns jamaah CRUD;
// the settlement pipeline only reads it to validate payments and to find the
// selling agent.
type Jamaah struct {
	ID        int64  `json:"id"`
	TenantID  int64  `json:"tenant_id"`
	PackageID int64  `json:"package_id"`
	AgentID   int64  `json:"agent_id"`
	FullName  string `json:"full_name"`
}

type CreatePaymentRequest struct {
	JamaahID        int64           `json:"jamaah_id"`
	PackageID       int64           `json:"package_id"`
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method"`
	Type            PaymentType     `json:"type"`
	ReferenceNumber string          `json:"reference_number"`
	PaymentDate     time.Time       `json:"payment_date"`
}

// RecordPaymentResult reports what the recorder did. MatchedSchedule is nil
// when no installment matched the paid amount exactly; the payment still
// stands and the mismatch is reported, not silently absorbed.
type RecordPaymentResult struct {
	Payment         *Payment         `json:"payment"`
	MatchedSchedule *PaymentSchedule `json:"matched_schedule,omitempty"`
	ScheduleMatched bool             `json:"schedule_matched"`
}
