package models

import (
	"time"

	"gorm.io/gorm"
)

// ContactList represents a list of contacts (e.g. a department) that can
// be enrolled into a sequence as a batch.
type ContactList struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"` // manual, csv, api

	// Statistics
	ContactCount int `gorm:"default:0" json:"contact_count"`

	// Relations
	Memberships []ContactListMembership `gorm:"foreignKey:ContactListID" json:"memberships,omitempty"`
}

// Contact represents a single person a sequence can be addressed to.
type Contact struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`

	// Suppression flags - a contact with any of these set is skipped by
	// the send executor.
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	Source      string     `json:"source"`
	LastContact *time.Time `json:"last_contact"`

	// Relations
	Memberships []ContactListMembership `gorm:"foreignKey:ContactID" json:"lists,omitempty"`
}

// Contactable reports whether the contact may still receive email.
func (c *Contact) Contactable() bool {
	return !c.IsBounced && !c.IsUnsubscribed && !c.IsDoNotContact
}

// ContactListMembership joins contacts to lists
type ContactListMembership struct {
	gorm.Model
	ContactListID uint `gorm:"not null;index" json:"contact_list_id"`
	ContactID     uint `gorm:"not null;index" json:"contact_id"`
}
