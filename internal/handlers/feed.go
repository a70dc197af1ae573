// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"gardenfeed/internal/feed"
	"gardenfeed/internal/media"
	"gardenfeed/internal/middleware"
	"gardenfeed/internal/models"
)

const (
	// maxPostBody bounds a multipart post: the image plus form fields.
	maxPostBody = media.MaxUploadSize + 1<<20

	// multipartMemory is how much of a multipart body is held in memory
	// before spilling to temporary files.
	multipartMemory = 1 << 20
)

// FeedRegistry hands out the feed state of a session.
type FeedRegistry interface {
	Get(key string) *feed.Store
}

// NoticeSource drains queued notices for a session.
type NoticeSource interface {
	Drain(ctx context.Context, key string) ([]models.Notice, error)
}

// Feed groups the feed, post, comment and notice handlers.
type Feed struct {
	feeds   FeedRegistry
	notices NoticeSource
}

// NewFeed creates a new Feed handler group. notices may be nil when
// notices are only logged.
func NewFeed(feeds FeedRegistry, notices NoticeSource) *Feed {
	return &Feed{feeds: feeds, notices: notices}
}

// feedResponse is the feed snapshot returned by List.
type feedResponse struct {
	Posts   []models.Post `json:"posts"`
	Loading bool          `json:"loading"`
}

// List refreshes the caller's feed from the database.
func (h *Feed) List(w http.ResponseWriter, r *http.Request) {
	s, v := h.storeFor(r)
	posts, err := s.FetchFeed(r.Context(), v)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Posts: posts, Loading: s.Loading()})
}

// CreatePost publishes a post from a multipart form with fields content,
// category and an optional image file.
func (h *Feed) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPostBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if bodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image exceeds the 10 MB limit.")
			return
		}
		writeError(w, http.StatusBadRequest, "Malformed form data.")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	in := feed.PostInput{
		Content:  r.FormValue("content"),
		Category: models.Category(strings.TrimSpace(r.FormValue("category"))),
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// no image
	case err != nil:
		writeError(w, http.StatusBadRequest, "Could not read the image.")
		return
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Could not read the image.")
			return
		}
		in.Image = &feed.ImageInput{Filename: header.Filename, Data: data}
	}

	s, v := h.storeFor(r)
	post, err := s.CreatePost(r.Context(), v, in)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// ToggleLike flips the caller's like on a loaded post.
func (h *Feed) ToggleLike(w http.ResponseWriter, r *http.Request) {
	h.like(w, r, (*feed.Store).LikePost)
}

// Like sets the caller's like on a post. Repeating it is harmless.
func (h *Feed) Like(w http.ResponseWriter, r *http.Request) {
	h.like(w, r, (*feed.Store).Like)
}

// Unlike clears the caller's like on a post. Repeating it is harmless.
func (h *Feed) Unlike(w http.ResponseWriter, r *http.Request) {
	h.like(w, r, (*feed.Store).Unlike)
}

// likeFunc is one of the Store like operations.
type likeFunc func(*feed.Store, context.Context, *feed.Viewer, uuid.UUID) (*feed.LikeResult, error)

func (h *Feed) like(w http.ResponseWriter, r *http.Request, op likeFunc) {
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}
	s, v := h.storeFor(r)
	res, err := op(s, r.Context(), v, postID)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Share records a share of a post.
func (h *Feed) Share(w http.ResponseWriter, r *http.Request) {
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}
	s, v := h.storeFor(r)
	count, err := s.SharePost(r.Context(), v, postID)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post_id": postID, "shares_count": count})
}

// Comments lists a post's comments, oldest first.
func (h *Feed) Comments(w http.ResponseWriter, r *http.Request) {
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}
	s, _ := h.storeFor(r)
	comments, err := s.FetchComments(r.Context(), postID)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// AddComment adds a comment from a JSON body {"content": "..."}.
func (h *Feed) AddComment(w http.ResponseWriter, r *http.Request) {
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	s, v := h.storeFor(r)
	comment, err := s.AddComment(r.Context(), v, postID, req.Content)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// Notices drains the caller's pending notices. Signed-out callers share
// one store, so they never see queued notices.
func (h *Feed) Notices(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(middleware.IdentityFromCtx(r.Context()))
	if h.notices == nil || key == feed.AnonymousKey {
		writeJSON(w, http.StatusOK, []models.Notice{})
		return
	}

	notices, err := h.notices.Drain(r.Context(), key)
	if err != nil {
		slog.Error("drain notices failed", "key", key, "error", err)
		writeError(w, http.StatusBadGateway, "Notices are unavailable right now.")
		return
	}
	if notices == nil {
		notices = []models.Notice{}
	}
	writeJSON(w, http.StatusOK, notices)
}

// storeFor returns the caller's feed store and viewer. The viewer is nil
// for signed-out callers.
func (h *Feed) storeFor(r *http.Request) (*feed.Store, *feed.Viewer) {
	ident := middleware.IdentityFromCtx(r.Context())
	s := h.feeds.Get(sessionKey(ident))
	if ident == nil {
		return s, nil
	}
	return s, &feed.Viewer{UserID: ident.UserID, DisplayName: ident.DisplayName}
}

// sessionKey picks the registry key for a caller.
func sessionKey(ident *middleware.Identity) string {
	switch {
	case ident == nil:
		return feed.AnonymousKey
	case ident.SessionID != "":
		return feed.SessionKey(ident.SessionID)
	default:
		return feed.UserKey(ident.UserID)
	}
}

// bodyTooLarge reports whether err came from the MaxBytesReader limit.
// The multipart reader does not always keep the typed error in the chain.
func bodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}
