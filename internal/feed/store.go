// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package feed holds the per-session view of the garden feed. A Store keeps
// in-memory copies of posts and comments, performs every mutation against
// the database first and then mirrors the confirmed result locally.
//
// State is published copy-on-write: the posts slice and the comments map
// are never modified in place, only rebuilt and swapped under the mutex,
// so snapshots handed to readers stay consistent. Mutations are serialised
// per (viewer, post) pair.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gardenfeed/internal/hashtag"
	"gardenfeed/internal/media"
	"gardenfeed/internal/models"
	"gardenfeed/internal/moderation"
	"gardenfeed/internal/store"
)

// MaxContentLength is the longest post or comment body, in runes.
const MaxContentLength = 1000

// notifyTimeout bounds how long a notice delivery may take.
const notifyTimeout = 2 * time.Second

// PostRepository is the subset of store.PostStore the feed needs.
type PostRepository interface {
	List(ctx context.Context) ([]models.Post, error)
	Create(ctx context.Context, in store.NewPost) (*models.Post, error)
	AdjustLikes(ctx context.Context, id uuid.UUID, delta int) (int, error)
	IncrementComments(ctx context.Context, id uuid.UUID) (int, error)
	IncrementShares(ctx context.Context, id uuid.UUID) (int, error)
}

// LikeRepository is the subset of store.LikeStore the feed needs.
type LikeRepository interface {
	Insert(ctx context.Context, userID, postID uuid.UUID) (bool, error)
	Delete(ctx context.Context, userID, postID uuid.UUID) (bool, error)
	LikedPostIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error)
}

// CommentRepository is the subset of store.CommentStore the feed needs.
type CommentRepository interface {
	Create(ctx context.Context, postID, authorID uuid.UUID, content string) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error)
}

// BlobStore is the object storage used for post images.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// Deps bundles the collaborators shared by every Store. Blobs, Moderator and
// Notifier are optional; leave them nil (not a typed nil pointer) when the
// service is not configured.
type Deps struct {
	Posts     PostRepository
	Likes     LikeRepository
	Comments  CommentRepository
	Blobs     BlobStore
	Moderator moderation.Moderator
	Notifier  Notifier
}

// Viewer is the identity an operation runs as. A nil *Viewer is anonymous.
type Viewer struct {
	UserID      uuid.UUID
	DisplayName string
}

// PostInput is the user-submitted data for a new post.
type PostInput struct {
	Content  string
	Category models.Category
	Image    *ImageInput
}

// ImageInput is an optional image attached to a new post.
type ImageInput struct {
	Filename string
	Data     []byte
}

// LikeResult is the confirmed like state of a post for the viewer.
type LikeResult struct {
	PostID     uuid.UUID `json:"post_id"`
	Liked      bool      `json:"is_liked"`
	LikesCount int       `json:"likes_count"`
}

// Store is the feed state for one session.
type Store struct {
	key   string
	deps  Deps
	locks *keyLock

	mu       sync.RWMutex
	posts    []models.Post
	comments map[uuid.UUID][]models.Comment
	loading  int
}

// New creates an empty Store. key identifies the session for notices.
func New(key string, deps Deps) *Store {
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	return &Store{
		key:      key,
		deps:     deps,
		locks:    newKeyLock(),
		posts:    []models.Post{},
		comments: map[uuid.UUID][]models.Comment{},
	}
}

// --- Snapshot accessors ---

// Posts returns the current posts, newest first.
func (s *Store) Posts() []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.posts)
}

// Post returns the in-memory copy of a single post.
func (s *Store) Post(id uuid.UUID) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.posts, id)
	if i < 0 {
		return models.Post{}, false
	}
	return s.posts[i], true
}

// Comments returns the loaded comments of a post, oldest first.
func (s *Store) Comments(postID uuid.UUID) []models.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.comments[postID])
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// --- Fetches ---

// FetchFeed reloads every post, newest first, and marks the ones v liked.
// Anonymous viewers see every post as not liked. On failure the current
// posts are kept.
func (s *Store) FetchFeed(ctx context.Context, v *Viewer) ([]models.Post, error) {
	defer s.startLoading()()

	var (
		posts []models.Post
		liked map[uuid.UUID]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		posts, err = s.deps.Posts.List(gctx)
		return err
	})
	if v != nil {
		g.Go(func() error {
			var err error
			liked, err = s.deps.Likes.LikedPostIDs(gctx, v.UserID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.fail(ctx, "Could not load the feed.", remote("fetch feed", err))
	}

	if posts == nil {
		posts = []models.Post{}
	}
	for i := range posts {
		posts[i].IsLiked = liked[posts[i].ID]
	}

	s.mu.Lock()
	s.posts = posts
	s.mu.Unlock()

	return slices.Clone(posts), nil
}

// FetchComments reloads the comments of one post, oldest first, replacing
// only that post's entry.
func (s *Store) FetchComments(ctx context.Context, postID uuid.UUID) ([]models.Comment, error) {
	defer s.startLoading()()

	comments, err := s.deps.Comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, s.fail(ctx, "Could not load comments.", remote("fetch comments", err))
	}

	s.mu.Lock()
	s.comments = withComments(s.comments, postID, comments)
	s.mu.Unlock()

	return slices.Clone(comments), nil
}

// --- Mutations ---

// CreatePost validates and publishes a new post, uploading its image first
// when one is attached. The created post is prepended to the feed.
func (s *Store) CreatePost(ctx context.Context, v *Viewer, in PostInput) (*models.Post, error) {
	const failMsg = "Could not publish your post."

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, s.fail(ctx, failMsg, invalid("post content is required"))
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, s.fail(ctx, failMsg, invalid("post content exceeds %d characters", MaxContentLength))
	}
	if !in.Category.Valid() {
		return nil, s.fail(ctx, failMsg, invalid("unknown category %q", in.Category))
	}
	if v == nil {
		return nil, s.fail(ctx, failMsg, ErrAuthenticationRequired)
	}

	if err := s.moderate(ctx, content); err != nil {
		return nil, s.fail(ctx, failMsg, err)
	}

	var (
		imageURL *string
		imageKey string
	)
	if in.Image != nil {
		key, url, err := s.uploadImage(ctx, in.Image)
		if err != nil {
			return nil, s.fail(ctx, failMsg, err)
		}
		imageKey, imageURL = key, &url
	}

	post, err := s.deps.Posts.Create(ctx, store.NewPost{
		AuthorID: v.UserID,
		Content:  content,
		Category: in.Category,
		ImageURL: imageURL,
		Hashtags: hashtag.Extract(content),
	})
	if err != nil {
		if imageKey != "" {
			s.discardImage(ctx, imageKey)
		}
		return nil, s.fail(ctx, failMsg, remote("create post", err))
	}

	s.mu.Lock()
	s.posts = append([]models.Post{*post}, s.posts...)
	s.mu.Unlock()

	s.notify(ctx, models.NoticeSuccess, "Your post was published.")
	return post, nil
}

// LikePost toggles the viewer's like based on the in-memory is_liked flag.
// The post must be loaded in this store.
func (s *Store) LikePost(ctx context.Context, v *Viewer, postID uuid.UUID) (*LikeResult, error) {
	const failMsg = "Could not update your like."

	if v == nil {
		return nil, s.fail(ctx, failMsg, ErrAuthenticationRequired)
	}
	defer s.locks.Lock(lockKey(v, postID))()

	post, ok := s.Post(postID)
	if !ok {
		return nil, s.fail(ctx, failMsg, ErrPostNotFound)
	}
	return s.setLiked(ctx, v, postID, !post.IsLiked)
}

// Like makes sure the viewer likes the post. Liking twice counts once.
// Like the toggle, it needs the post loaded in this store.
func (s *Store) Like(ctx context.Context, v *Viewer, postID uuid.UUID) (*LikeResult, error) {
	if v == nil {
		return nil, s.fail(ctx, "Could not update your like.", ErrAuthenticationRequired)
	}
	defer s.locks.Lock(lockKey(v, postID))()

	if _, ok := s.Post(postID); !ok {
		return nil, s.fail(ctx, "Could not update your like.", ErrPostNotFound)
	}
	return s.setLiked(ctx, v, postID, true)
}

// Unlike makes sure the viewer does not like the post.
func (s *Store) Unlike(ctx context.Context, v *Viewer, postID uuid.UUID) (*LikeResult, error) {
	if v == nil {
		return nil, s.fail(ctx, "Could not update your like.", ErrAuthenticationRequired)
	}
	defer s.locks.Lock(lockKey(v, postID))()

	if _, ok := s.Post(postID); !ok {
		return nil, s.fail(ctx, "Could not update your like.", ErrPostNotFound)
	}
	return s.setLiked(ctx, v, postID, false)
}

// setLiked writes the join row, then moves the counter only if the row
// actually changed. The local mirror takes the server's count.
func (s *Store) setLiked(ctx context.Context, v *Viewer, postID uuid.UUID, liked bool) (*LikeResult, error) {
	const failMsg = "Could not update your like."

	var (
		changed bool
		err     error
	)
	if liked {
		changed, err = s.deps.Likes.Insert(ctx, v.UserID, postID)
	} else {
		changed, err = s.deps.Likes.Delete(ctx, v.UserID, postID)
	}
	if err != nil {
		return nil, s.fail(ctx, failMsg, remoteOrMissing("write like", err))
	}

	delta := 0
	if changed {
		delta = 1
		if !liked {
			delta = -1
		}
	}
	count, err := s.deps.Posts.AdjustLikes(ctx, postID, delta)
	if err != nil {
		return nil, s.fail(ctx, failMsg, remoteOrMissing("adjust likes", err))
	}

	s.updatePost(postID, func(p *models.Post) {
		p.IsLiked = liked
		p.LikesCount = count
	})

	if liked {
		s.notify(ctx, models.NoticeSuccess, "You liked this post.")
	} else {
		s.notify(ctx, models.NoticeSuccess, "You removed your like.")
	}
	return &LikeResult{PostID: postID, Liked: liked, LikesCount: count}, nil
}

// AddComment stores a comment and bumps the post's comment counter. If the
// counter update fails after the comment was stored, the comment is still
// returned and kept locally; only the local count is left alone.
func (s *Store) AddComment(ctx context.Context, v *Viewer, postID uuid.UUID, content string) (*models.Comment, error) {
	const failMsg = "Could not add your comment."

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, s.fail(ctx, failMsg, invalid("comment content is required"))
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, s.fail(ctx, failMsg, invalid("comment exceeds %d characters", MaxContentLength))
	}
	if v == nil {
		return nil, s.fail(ctx, failMsg, ErrAuthenticationRequired)
	}
	defer s.locks.Lock(lockKey(v, postID))()

	c, err := s.deps.Comments.Create(ctx, postID, v.UserID, content)
	if err != nil {
		return nil, s.fail(ctx, failMsg, remoteOrMissing("create comment", err))
	}

	s.mu.Lock()
	s.comments = withComments(s.comments, postID, append(slices.Clone(s.comments[postID]), *c))
	s.mu.Unlock()

	if _, err := s.deps.Posts.IncrementComments(ctx, postID); err != nil {
		slog.Error("comment counter not updated", "key", s.key, "post_id", postID, "comment_id", c.ID, "error", err)
		s.notify(ctx, models.NoticeError, "Your comment was added but the comment count could not be updated.")
		return c, nil
	}

	s.updatePost(postID, func(p *models.Post) { p.CommentsCount++ })

	s.notify(ctx, models.NoticeSuccess, "Your comment was added.")
	return c, nil
}

// SharePost increments the share counter. Shares are not deduplicated.
func (s *Store) SharePost(ctx context.Context, v *Viewer, postID uuid.UUID) (int, error) {
	const failMsg = "Could not share the post."

	if v == nil {
		return 0, s.fail(ctx, failMsg, ErrAuthenticationRequired)
	}
	defer s.locks.Lock(lockKey(v, postID))()

	count, err := s.deps.Posts.IncrementShares(ctx, postID)
	if err != nil {
		return 0, s.fail(ctx, failMsg, remoteOrMissing("share post", err))
	}

	s.updatePost(postID, func(p *models.Post) { p.SharesCount = count })

	s.notify(ctx, models.NoticeSuccess, "Post shared.")
	return count, nil
}

// --- Helpers ---

func (s *Store) moderate(ctx context.Context, content string) error {
	if s.deps.Moderator == nil {
		return nil
	}
	res, err := s.deps.Moderator.CheckSafety(ctx, content)
	if err != nil {
		// The moderation service being down does not block posting.
		slog.Warn("moderation check failed, allowing post", "key", s.key, "error", err)
		return nil
	}
	if !res.Safe {
		return &ValidationError{Reason: "post was flagged by moderation", Flagged: res.Categories}
	}
	return nil
}

func (s *Store) uploadImage(ctx context.Context, in *ImageInput) (key, url string, err error) {
	if s.deps.Blobs == nil {
		return "", "", remote("upload image", errors.New("image storage not configured"))
	}

	img, err := media.Prepare(in.Filename, in.Data)
	if err != nil {
		if errors.Is(err, media.ErrEmpty) || errors.Is(err, media.ErrTooLarge) ||
			errors.Is(err, media.ErrUnsupported) || errors.Is(err, media.ErrCorrupt) {
			return "", "", invalid("image rejected: %v", err)
		}
		return "", "", remote("prepare image", err)
	}

	if err := s.deps.Blobs.Upload(ctx, img.Key, img.ContentType, bytes.NewReader(img.Data), int64(len(img.Data))); err != nil {
		return "", "", remote("upload image", err)
	}
	return img.Key, s.deps.Blobs.PublicURL(img.Key), nil
}

// discardImage removes an uploaded image whose post could not be created.
func (s *Store) discardImage(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.deps.Blobs.Delete(ctx, key); err != nil {
		slog.Warn("orphaned post image not deleted", "key", key, "error", err)
	}
}

// updatePost applies fn to a copy of the post and swaps in a rebuilt slice.
// It does nothing if the post is not loaded.
func (s *Store) updatePost(id uuid.UUID, fn func(*models.Post)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.posts, id)
	if i < 0 {
		return
	}
	posts := slices.Clone(s.posts)
	fn(&posts[i])
	s.posts = posts
}

func (s *Store) startLoading() func() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}
}

// fail logs err, raises an error notice and returns err for the caller.
func (s *Store) fail(ctx context.Context, msg string, err error) error {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		msg = "Please sign in to continue."
	case errors.As(err, &ve):
		msg = msg + " " + capitalize(ve.Error()) + "."
	case errors.Is(err, ErrPostNotFound):
		msg = "That post no longer exists."
	}

	if errors.Is(err, ErrRemoteCallFailed) {
		slog.Error("feed operation failed", "key", s.key, "error", err)
	} else {
		slog.Info("feed operation rejected", "key", s.key, "error", err)
	}

	s.notify(ctx, models.NoticeError, msg)
	return err
}

func (s *Store) notify(ctx context.Context, level models.NoticeLevel, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	n := models.Notice{Level: level, Message: msg, At: time.Now()}
	if err := s.deps.Notifier.Notify(ctx, s.key, n); err != nil {
		slog.Warn("notice not delivered", "key", s.key, "error", err)
	}
}

// remoteOrMissing maps a missing row to ErrPostNotFound and anything else
// to ErrRemoteCallFailed.
func remoteOrMissing(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrPostNotFound)
	}
	return remote(op, err)
}

func lockKey(v *Viewer, postID uuid.UUID) string {
	return v.UserID.String() + "/" + postID.String()
}

func indexOf(posts []models.Post, id uuid.UUID) int {
	return slices.IndexFunc(posts, func(p models.Post) bool { return p.ID == id })
}

// withComments returns a copy of m with postID set to comments.
func withComments(m map[uuid.UUID][]models.Comment, postID uuid.UUID, comments []models.Comment) map[uuid.UUID][]models.Comment {
	out := maps.Clone(m)
	if out == nil {
		out = make(map[uuid.UUID][]models.Comment)
	}
	out[postID] = comments
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}
