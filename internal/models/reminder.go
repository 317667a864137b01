package models

import "time"

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
	ReminderSkipped ReminderStatus = "skipped"
)

// PaymentReminder is an intent record the external sender polls; the core
// decides when a reminder should fire, never how it is transmitted. At most
// one non-skipped reminder exists per (schedule, channel, scheduled_for date).
type PaymentReminder struct {
	ID                int64          `json:"id"`
	TenantID          int64          `json:"tenant_id"`
	PaymentScheduleID int64          `json:"payment_schedule_id"`
	Channel           string         `json:"channel"`
	Status            ReminderStatus `json:"status"`
	ScheduledFor      time.Time      `json:"scheduled_for"`
	CreatedAt         time.Time      `json:"created_at"`
}
