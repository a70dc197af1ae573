package handlers

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Validation limits for account fields.
const (
	maxEmailLen       = 254
	minPasswordLen    = 8
	maxPasswordLen    = 72 // bcrypt ignores anything longer
	maxDisplayNameLen = 50
)

// validateRegistration checks sign-up inputs and returns the first error found.
func validateRegistration(email, password, displayName string) string {
	if msg := validateEmail(email); msg != "" {
		return msg
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return "Password must be at least 8 characters."
	}
	if len(password) > maxPasswordLen {
		return "Password is too long (max 72 bytes)."
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return "Display name is required."
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return "Display name is too long (max 50 characters)."
	}
	return ""
}

// validateEmail accepts a bare address such as gardener@example.com.
func validateEmail(email string) string {
	if email == "" {
		return "Email is required."
	}
	if len(email) > maxEmailLen {
		return "Email is too long."
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "Email address is not valid."
	}
	return ""
}

// normalizeEmail trims and lowercases an address for lookup and storage.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
