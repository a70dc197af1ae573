// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides in-memory fakes shared by the handler tests.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gardenfeed/internal/feed"
	"gardenfeed/internal/middleware"
	"gardenfeed/internal/models"
	"gardenfeed/internal/moderation"
	"gardenfeed/internal/session"
	"gardenfeed/internal/store"
)

// memBackend is an in-memory stand-in for the post, like and comment stores.
type memBackend struct {
	mu       sync.Mutex
	posts    []models.Post // newest first
	likes    map[[2]uuid.UUID]bool
	comments map[uuid.UUID][]models.Comment
	down     bool
}

func newMemBackend() *memBackend {
	return &memBackend{
		likes:    map[[2]uuid.UUID]bool{},
		comments: map[uuid.UUID][]models.Comment{},
	}
}

var errBackendDown = errors.New("connection refused")

// seed inserts a post authored by author and returns it.
func (b *memBackend) seed(author uuid.UUID, content string) models.Post {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := models.Post{
		ID:        uuid.New(),
		AuthorID:  author,
		Author:    models.Author{ID: author, DisplayName: "Seed"},
		Content:   content,
		Hashtags:  []string{},
		CreatedAt: time.Now(),
	}
	b.posts = append([]models.Post{p}, b.posts...)
	return p
}

func (b *memBackend) find(id uuid.UUID) (*models.Post, error) {
	for i := range b.posts {
		if b.posts[i].ID == id {
			return &b.posts[i], nil
		}
	}
	return nil, store.ErrNotFound
}

type memPosts struct{ *memBackend }

func (b memPosts) List(context.Context) ([]models.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errBackendDown
	}
	return slices.Clone(b.posts), nil
}

func (b memPosts) Create(_ context.Context, in store.NewPost) (*models.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errBackendDown
	}
	p := models.Post{
		ID:        uuid.New(),
		AuthorID:  in.AuthorID,
		Author:    models.Author{ID: in.AuthorID, DisplayName: "Author"},
		Content:   in.Content,
		Category:  in.Category,
		ImageURL:  in.ImageURL,
		Hashtags:  in.Hashtags,
		CreatedAt: time.Now(),
	}
	b.posts = append([]models.Post{p}, b.posts...)
	return &p, nil
}

func (b memPosts) AdjustLikes(_ context.Context, id uuid.UUID, delta int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.find(id)
	if err != nil {
		return 0, err
	}
	p.LikesCount = max(p.LikesCount+delta, 0)
	return p.LikesCount, nil
}

func (b memPosts) IncrementComments(_ context.Context, id uuid.UUID) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.find(id)
	if err != nil {
		return 0, err
	}
	p.CommentsCount++
	return p.CommentsCount, nil
}

func (b memPosts) IncrementShares(_ context.Context, id uuid.UUID) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.find(id)
	if err != nil {
		return 0, err
	}
	p.SharesCount++
	return p.SharesCount, nil
}

type memLikes struct{ *memBackend }

func (b memLikes) Insert(_ context.Context, userID, postID uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.find(postID); err != nil {
		return false, err
	}
	k := [2]uuid.UUID{userID, postID}
	if b.likes[k] {
		return false, nil
	}
	b.likes[k] = true
	return true, nil
}

func (b memLikes) Delete(_ context.Context, userID, postID uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := [2]uuid.UUID{userID, postID}
	if !b.likes[k] {
		return false, nil
	}
	delete(b.likes, k)
	return true, nil
}

func (b memLikes) LikedPostIDs(_ context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := map[uuid.UUID]bool{}
	for k := range b.likes {
		if k[0] == userID {
			out[k[1]] = true
		}
	}
	return out, nil
}

type memComments struct{ *memBackend }

func (b memComments) Create(_ context.Context, postID, authorID uuid.UUID, content string) (*models.Comment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.find(postID); err != nil {
		return nil, err
	}
	c := models.Comment{
		ID:        uuid.New(),
		PostID:    postID,
		AuthorID:  authorID,
		Author:    models.Author{ID: authorID, DisplayName: "Commenter"},
		Content:   content,
		CreatedAt: time.Now(),
	}
	b.comments[postID] = append(b.comments[postID], c)
	return &c, nil
}

func (b memComments) ListByPost(_ context.Context, postID uuid.UUID) ([]models.Comment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.comments[postID]), nil
}

// wordModerator flags any text containing word.
type wordModerator struct{ word string }

func (m wordModerator) CheckSafety(_ context.Context, text string) (*moderation.Result, error) {
	if strings.Contains(strings.ToLower(text), m.word) {
		return &moderation.Result{Safe: false, Categories: []string{"spam"}}, nil
	}
	return &moderation.Result{Safe: true}, nil
}

// memNotices keeps notices per session key.
type memNotices struct {
	mu    sync.Mutex
	byKey map[string][]models.Notice
}

func (n *memNotices) Notify(_ context.Context, key string, notice models.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.byKey == nil {
		n.byKey = map[string][]models.Notice{}
	}
	n.byKey[key] = append(n.byKey[key], notice)
	return nil
}

func (n *memNotices) Drain(_ context.Context, key string) ([]models.Notice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.byKey[key]
	delete(n.byKey, key)
	return out, nil
}

// memUsers is an in-memory UserRepository with plaintext passwords.
type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[uuid.UUID]*models.User{}}
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (m *memUsers) Create(_ context.Context, email, password, displayName string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, store.ErrDuplicate
		}
	}
	u := &models.User{ID: uuid.New(), Email: email, PasswordHash: password, DisplayName: displayName}
	m.users[u.ID] = u
	c := *u
	return &c, nil
}

func (m *memUsers) SetTOTPSecret(_ context.Context, id uuid.UUID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].TOTPSecret = &secret
	return nil
}

func (m *memUsers) EnableTOTP(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].TOTPEnabled = true
	return nil
}

func (m *memUsers) CheckPassword(u *models.User, password string) bool {
	return u.PasswordHash == password
}

// memSessions records created and destroyed sessions.
type memSessions struct {
	mu        sync.Mutex
	created   []*session.Data
	destroyed int
}

func (s *memSessions) Create(_ context.Context, w http.ResponseWriter, data *session.Data) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data.ID = "sess-" + data.UserID.String()
	s.created = append(s.created, data)
	http.SetCookie(w, &http.Cookie{Name: session.CookieName, Value: data.ID})
	return data.ID, nil
}

func (s *memSessions) Destroy(context.Context, http.ResponseWriter, *http.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed++
	return nil
}

// stubTokens issues predictable tokens.
type stubTokens struct{}

func (stubTokens) Issue(id uuid.UUID, _ string) (string, time.Time, error) {
	return "token-" + id.String(), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

// recordingDropper remembers dropped registry keys.
type recordingDropper struct{ keys []string }

func (d *recordingDropper) Drop(key string) { d.keys = append(d.keys, key) }

// feedEnv wires the Feed handlers over the in-memory backend.
type feedEnv struct {
	backend  *memBackend
	notices  *memNotices
	registry *feed.Registry
	handler  *Feed
	router   chi.Router
}

func newFeedEnv(t *testing.T) *feedEnv {
	t.Helper()
	b := newMemBackend()
	n := &memNotices{}
	reg := feed.NewRegistry(feed.Deps{
		Posts:     memPosts{b},
		Likes:     memLikes{b},
		Comments:  memComments{b},
		Moderator: wordModerator{word: "spam"},
		Notifier:  n,
	}, time.Hour)
	t.Cleanup(reg.Stop)

	h := NewFeed(reg, n)
	r := chi.NewRouter()
	r.Get("/api/feed", h.List)
	r.Post("/api/posts", h.CreatePost)
	r.Post("/api/posts/{id}/like", h.ToggleLike)
	r.Put("/api/posts/{id}/like", h.Like)
	r.Delete("/api/posts/{id}/like", h.Unlike)
	r.Post("/api/posts/{id}/share", h.Share)
	r.Get("/api/posts/{id}/comments", h.Comments)
	r.Post("/api/posts/{id}/comments", h.AddComment)
	r.Get("/api/notices", h.Notices)

	return &feedEnv{backend: b, notices: n, registry: reg, handler: h, router: r}
}

// do serves a request as ident (nil for anonymous).
func (e *feedEnv) do(t *testing.T, ident *middleware.Identity, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if ident != nil {
		req = req.WithContext(context.WithValue(req.Context(), middleware.IdentityKey, ident))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// withIdentity returns r carrying ident in its context.
func withIdentity(r *http.Request, ident *middleware.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.IdentityKey, ident))
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decode unmarshals a recorder body into T.
func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}
