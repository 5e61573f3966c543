package utils

import (
	"fmt"
	"net"
	"strings"
)

// GenerateRateLimitKey creates a unique key for per-endpoint rate limiting
func GenerateRateLimitKey(userID uint, path string) string {
	return fmt.Sprintf("rl:%d:%s", userID, path)
}

// ValidateMXRecords checks if an email's domain has valid MX records
func ValidateMXRecords(email string) (bool, error) {
	parts := strings.Split(email, "@")
	if len(parts) < 2 {
		return false, fmt.Errorf("invalid email format")
	}

	domain := parts[1]
	mxRecords, err := net.LookupMX(domain)
	if err != nil {
		return false, err
	}

	return len(mxRecords) > 0, nil
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}
