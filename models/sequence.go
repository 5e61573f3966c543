package models

import "gorm.io/gorm"

// Sequence represents a multi-step follow-up campaign
type Sequence struct {
	gorm.Model
	UserID   uint `gorm:"not null;index" json:"user_id"`
	SenderID uint `gorm:"not null;index" json:"sender_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Status      string `gorm:"default:'draft'" json:"status"` // draft, active, archived

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// SequenceStep represents one timed email within a sequence. Step numbers
// are dense 1..N and consumed strictly in order.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepNumber int `gorm:"not null" json:"step_number"`
	DelayDays  int `gorm:"not null;default:0" json:"delay_days"`
	DelayHours int `gorm:"not null;default:0" json:"delay_hours"`

	Subject string `gorm:"not null" json:"subject"`
	Content string `gorm:"type:text" json:"content"`

	// Tracking (denormalized)
	SentCount int     `gorm:"default:0" json:"sent_count"`
	OpenRate  float64 `gorm:"default:0" json:"open_rate"`
	ReplyRate float64 `gorm:"default:0" json:"reply_rate"`
}

// StepByNumber returns the step with the given number, or nil.
func (s *Sequence) StepByNumber(n int) *SequenceStep {
	for i := range s.Steps {
		if s.Steps[i].StepNumber == n {
			return &s.Steps[i]
		}
	}
	return nil
}
