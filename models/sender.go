package models

import (
	"time"

	"gorm.io/gorm"
)

// Sender represents email sending credentials
type Sender struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Basic identification
	Name      string `gorm:"not null" json:"name"`
	FromEmail string `gorm:"not null" json:"from_email"`
	FromName  string `gorm:"not null" json:"from_name"`

	// ========= SMTP Configuration =========
	SMTPHost     string `gorm:"not null" json:"smtp_host"`
	SMTPPort     int    `gorm:"not null" json:"smtp_port"`
	SMTPUsername string `gorm:"not null" json:"smtp_username"`
	SMTPPassword string `gorm:"not null" json:"-"`          // Encrypted in application layer
	Encryption   string `gorm:"not null" json:"encryption"` // SSL, TLS, STARTTLS

	// ========= Status =========
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastTestedAt *time.Time `json:"last_tested_at"`
	LastError    *string    `json:"last_error"`

	// ========= Usage Metrics =========
	SentToday  int     `gorm:"default:0" json:"sent_today"`
	TotalSent  int     `gorm:"default:0" json:"total_sent"`
	FailedSent int     `gorm:"default:0" json:"failed_sent"`
	BounceRate float64 `gorm:"default:0" json:"bounce_rate"`
}

// Sanitize clears secrets before the sender is serialized to a response.
func (s *Sender) Sanitize() {
	s.SMTPPassword = ""
}
