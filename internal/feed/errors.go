// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package feed

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthenticationRequired is returned when an operation needs a
	// signed-in viewer and none was supplied.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrValidationFailed is returned when input is rejected before any
	// remote call is made.
	ErrValidationFailed = errors.New("validation failed")

	// ErrRemoteCallFailed wraps failures of the database or object storage.
	ErrRemoteCallFailed = errors.New("remote call failed")

	// ErrPostNotFound is returned when the target post does not exist.
	ErrPostNotFound = errors.New("post not found")
)

// ValidationError describes rejected input. It matches ErrValidationFailed
// under errors.Is. Flagged is set when the text failed moderation.
type ValidationError struct {
	Reason  string
	Flagged []string
}

func (e *ValidationError) Error() string {
	if len(e.Flagged) > 0 {
		return e.Reason + ": " + strings.Join(e.Flagged, ", ")
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// remote wraps a backend error as ErrRemoteCallFailed while keeping the
// cause inspectable.
func remote(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemoteCallFailed, op, err)
}
