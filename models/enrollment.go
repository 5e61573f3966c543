package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses. An enrollment moves between active and paused,
// completes from active, and can be stopped from either. completed and
// stopped are terminal.
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusPaused    = "paused"
	EnrollmentStatusStopped   = "stopped"
	EnrollmentStatusCompleted = "completed"
)

// EnrollmentSettings is an opaque per-enrollment option bag, stored as JSON.
type EnrollmentSettings map[string]interface{}

// SequenceEnrollment tracks a contact's progress through a sequence.
// At most one active enrollment may exist per (sequence, contact) pair.
// Rows are never deleted by the engine; terminal states persist for audit.
type SequenceEnrollment struct {
	gorm.Model
	UserID     uint `gorm:"not null;index" json:"user_id"`
	SequenceID uint `gorm:"not null;index:idx_enrollment_pair" json:"sequence_id"`
	ContactID  uint `gorm:"not null;index:idx_enrollment_pair" json:"contact_id"`

	CurrentStep int    `gorm:"not null;default:1" json:"current_step"`
	Status      string `gorm:"not null;default:'active';index" json:"status"`

	StartedAt       time.Time  `json:"started_at"`
	PausedAt        *time.Time `json:"paused_at"`
	NextScheduledAt *time.Time `json:"next_scheduled_at"`
	CompletedAt     *time.Time `json:"completed_at"`

	Settings EnrollmentSettings `gorm:"type:jsonb;serializer:json" json:"settings"`

	// Relations
	ScheduledEmails []ScheduledEmail `gorm:"foreignKey:EnrollmentID" json:"scheduled_emails,omitempty"`
}

// Terminal reports whether the enrollment can no longer transition.
func (e *SequenceEnrollment) Terminal() bool {
	return e.Status == EnrollmentStatusStopped || e.Status == EnrollmentStatusCompleted
}
