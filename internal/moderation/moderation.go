// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package moderation screens user-written post text against a hosted
// moderation API before it is published. OpenAI's free moderation endpoint
// is preferred; Mistral's endpoint is used when only a Mistral key is set
// or when OpenAI rejects the request.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Result contains the outcome of a text safety check.
type Result struct {
	Safe       bool     // true if the text passes moderation
	Categories []string // flagged category names (empty when safe)
}

// Moderator checks text for policy violations.
type Moderator interface {
	CheckSafety(ctx context.Context, text string) (*Result, error)
}

// Config holds the API credentials for the supported providers. Empty
// base URLs select the public endpoints.
type Config struct {
	OpenAIKey      string
	OpenAIBaseURL  string
	MistralKey     string
	MistralBaseURL string
}

// New builds a Moderator from the configured keys. Returns nil when no key
// is configured, in which case callers skip moderation.
func New(cfg Config) Moderator {
	switch {
	case cfg.OpenAIKey != "" && cfg.MistralKey != "":
		return &fallbackModerator{
			primary:   newOpenAIModerator(cfg.OpenAIKey, cfg.OpenAIBaseURL),
			secondary: newMistralModerator(cfg.MistralKey, cfg.MistralBaseURL),
		}
	case cfg.OpenAIKey != "":
		return newOpenAIModerator(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	case cfg.MistralKey != "":
		return newMistralModerator(cfg.MistralKey, cfg.MistralBaseURL)
	default:
		return nil
	}
}

// APIError is returned when a moderation endpoint answers with a non-200 status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s moderation API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// fallbackModerator asks primary first and switches to secondary when the
// primary rejects the credentials or is rate limiting.
type fallbackModerator struct {
	primary   Moderator
	secondary Moderator
}

func (f *fallbackModerator) CheckSafety(ctx context.Context, text string) (*Result, error) {
	res, err := f.primary.CheckSafety(ctx, text)
	if err == nil {
		return res, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
			return f.secondary.CheckSafety(ctx, text)
		}
	}
	return nil, err
}

// flaggedCategories turns a provider category map into sorted,
// human-readable names: "hate/threatening" becomes "hate (threatening)".
func flaggedCategories(categories map[string]bool) []string {
	var flagged []string
	for cat, isFlagged := range categories {
		if !isFlagged {
			continue
		}
		display := strings.ReplaceAll(cat, "/", " (")
		if strings.Contains(cat, "/") {
			display += ")"
		}
		display = strings.ReplaceAll(display, "_", " ")
		flagged = append(flagged, display)
	}
	sort.Strings(flagged)
	return flagged
}
