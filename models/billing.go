package models

import "gorm.io/gorm"

// Plan represents a subscription tier. Send quotas are enforced over
// three nested windows; each tier is strictly larger than the one below
// it in every window.
type Plan struct {
	gorm.Model
	Name        string `gorm:"not null;uniqueIndex" json:"name"` // free, basic, premium, enterprise
	Description string `json:"description"`

	// Send quotas per window
	HourlyEmailLimit  int `gorm:"not null" json:"hourly_email_limit"`
	DailyEmailLimit   int `gorm:"not null" json:"daily_email_limit"`
	MonthlyEmailLimit int `gorm:"not null" json:"monthly_email_limit"`

	// Features
	MaxSenders      int  `gorm:"default:1" json:"max_senders"`
	TrackingEnabled bool `gorm:"default:true" json:"tracking_enabled"`
	CustomDomain    bool `gorm:"default:false" json:"custom_domain"`

	// For display purposes
	DisplayPrice string `gorm:"-" json:"display_price"` // e.g. "$20"
	IsPopular    bool   `gorm:"default:false" json:"is_popular"`
}
