// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the JSON HTTP API of gardenfeed.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gardenfeed/internal/feed"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 64 << 10

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string   `json:"error"`
	Flagged []string `json:"flagged,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

// writeError writes a JSON error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeFeedError maps a feed error to its HTTP status.
func writeFeedError(w http.ResponseWriter, err error) {
	var ve *feed.ValidationError
	switch {
	case errors.Is(err, feed.ErrAuthenticationRequired):
		writeError(w, http.StatusUnauthorized, "Please sign in to continue.")
	case errors.As(err, &ve) && len(ve.Flagged) > 0:
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: sentence(ve.Reason), Flagged: ve.Flagged})
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, sentence(ve.Reason))
	case errors.Is(err, feed.ErrPostNotFound):
		writeError(w, http.StatusNotFound, "Post not found.")
	case errors.Is(err, feed.ErrRemoteCallFailed):
		writeError(w, http.StatusBadGateway, "A backing service is unavailable, please try again.")
	default:
		slog.Error("unhandled feed error", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error.")
	}
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body is too large.")
		} else {
			writeError(w, http.StatusBadRequest, "Request body must be valid JSON.")
		}
		return false
	}
	return true
}

// postIDParam parses the {id} URL parameter.
func postIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid post id.")
		return uuid.Nil, false
	}
	return id, true
}

// sentence capitalizes msg and ends it with a period.
func sentence(msg string) string {
	if msg == "" {
		return msg
	}
	msg = strings.ToUpper(msg[:1]) + msg[1:]
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}
