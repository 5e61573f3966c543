package models

import (
	"time"

	"gorm.io/gorm"
)

// ScheduledEmail statuses. Rows are created as scheduled, flipped to
// cancelled in bulk when the owning enrollment pauses or stops, and moved
// to sent/failed only by the send executor, only from scheduled.
const (
	ScheduledEmailStatusScheduled = "scheduled"
	ScheduledEmailStatusSent      = "sent"
	ScheduledEmailStatusCancelled = "cancelled"
	ScheduledEmailStatusFailed    = "failed"
)

// ScheduledEmail is one step-firing attempt: a concrete, time-stamped
// instance of a sequence step queued for delivery to a contact. Subject
// and content are snapshotted from the step at scheduling time.
type ScheduledEmail struct {
	gorm.Model
	EnrollmentID uint `gorm:"not null;index" json:"enrollment_id"`
	SequenceID   uint `gorm:"not null;index" json:"sequence_id"`
	StepID       uint `gorm:"not null" json:"step_id"`
	ContactID    uint `gorm:"not null;index" json:"contact_id"`
	SenderID     uint `gorm:"not null;index" json:"sender_id"`

	StepNumber  int       `gorm:"not null" json:"step_number"`
	ScheduledAt time.Time `gorm:"not null;index" json:"scheduled_at"`

	Subject string `gorm:"not null" json:"subject"`
	Content string `gorm:"type:text" json:"content"`

	Status    string     `gorm:"not null;default:'scheduled';index" json:"status"`
	SentAt    *time.Time `json:"sent_at"`
	MessageID string     `json:"message_id"`
	LastError string     `json:"last_error"`
}

// EmailLog statuses. queued rows are reserved capacity that has not yet
// been confirmed by the executor; plan usage windows count queued, sent,
// delivered, opened and clicked rows.
const (
	EmailLogStatusQueued    = "queued"
	EmailLogStatusSent      = "sent"
	EmailLogStatusDelivered = "delivered"
	EmailLogStatusOpened    = "opened"
	EmailLogStatusClicked   = "clicked"
	EmailLogStatusFailed    = "failed"
	EmailLogStatusBounced   = "bounced"
)

// UsageStatuses are the EmailLog statuses that count toward plan quotas.
var UsageStatuses = []string{
	EmailLogStatusQueued,
	EmailLogStatusSent,
	EmailLogStatusDelivered,
	EmailLogStatusOpened,
	EmailLogStatusClicked,
}

// EmailLog is the delivery log: one row per send attempt, feeding both
// analytics and rate-limit accounting.
type EmailLog struct {
	gorm.Model
	UserID   uint `gorm:"not null;index" json:"user_id"`
	SenderID uint `gorm:"not null;index" json:"sender_id"`

	ContactID        *uint `gorm:"index" json:"contact_id,omitempty"`
	SequenceID       *uint `gorm:"index" json:"sequence_id,omitempty"`
	ScheduledEmailID *uint `gorm:"index" json:"scheduled_email_id,omitempty"`

	Status    string `gorm:"not null;default:'queued';index" json:"status"`
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`

	OpenedAt  *time.Time `json:"opened_at"`
	ClickedAt *time.Time `json:"clicked_at"`
}
