package models

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User owns senders, sequences and contacts. Authentication proper is
// handled upstream; the API only needs a key to resolve the account.
type User struct {
	gorm.Model
	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"not null;uniqueIndex" json:"email"`

	// API key: the prefix is stored in clear for lookup, the full key
	// only as a bcrypt hash.
	APIKeyPrefix string `gorm:"index" json:"-"`
	APIKeyHash   string `json:"-"`

	PlanID uint `gorm:"not null;index" json:"plan_id"`
	Plan   Plan `json:"plan,omitempty"`
}

const apiKeyPrefixLen = 8

// GenerateAPIKey creates a fresh API key for the user and stores its
// prefix and bcrypt hash. The plaintext key is returned exactly once.
func (u *User) GenerateAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := "fm_" + hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	u.APIKeyPrefix = key[:apiKeyPrefixLen]
	u.APIKeyHash = string(hash)
	return key, nil
}

// CheckAPIKey verifies a presented key against the stored hash.
func (u *User) CheckAPIKey(key string) bool {
	if u.APIKeyHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.APIKeyHash), []byte(key)) == nil
}

// FindUserByAPIKey resolves an API key to its user, plan preloaded.
func FindUserByAPIKey(db *gorm.DB, key string) (*User, error) {
	if len(key) < apiKeyPrefixLen {
		return nil, errors.New("invalid API key")
	}

	var users []User
	if err := db.Preload("Plan").Where("api_key_prefix = ?", key[:apiKeyPrefixLen]).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].CheckAPIKey(key) {
			return &users[i], nil
		}
	}
	return nil, errors.New("invalid API key")
}
