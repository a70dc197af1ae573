package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"gardenfeed/internal/models"
	"gardenfeed/internal/moderation"
	"gardenfeed/internal/store"
)

var errBackend = errors.New("backend unavailable")

// fakeBackend is an in-memory stand-in for PostgreSQL implementing the
// post, like and comment repositories.
type fakeBackend struct {
	mu       sync.Mutex
	posts    []models.Post // newest first
	likes    map[[2]uuid.UUID]bool
	comments []models.Comment
	calls    int

	// failures keyed by method name
	fail map[string]error
	// delay applied to Insert/Delete, used by the concurrency tests
	delay time.Duration
}

func newFakeBackend(posts ...models.Post) *fakeBackend {
	return &fakeBackend{
		posts: posts,
		likes: make(map[[2]uuid.UUID]bool),
		fail:  make(map[string]error),
	}
}

func (f *fakeBackend) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.fail[method]
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) setFail(method string, err error) {
	f.mu.Lock()
	f.fail[method] = err
	f.mu.Unlock()
}

func (f *fakeBackend) index(id uuid.UUID) int {
	return slices.IndexFunc(f.posts, func(p models.Post) bool { return p.ID == id })
}

func (f *fakeBackend) List(ctx context.Context) ([]models.Post, error) {
	if err := f.enter("List"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.posts), nil
}

func (f *fakeBackend) Create(ctx context.Context, in store.NewPost) (*models.Post, error) {
	if err := f.enter("CreatePost"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := models.Post{
		ID:        uuid.New(),
		AuthorID:  in.AuthorID,
		Author:    models.Author{ID: in.AuthorID, DisplayName: "Gardener"},
		Content:   in.Content,
		Category:  in.Category,
		ImageURL:  in.ImageURL,
		Hashtags:  in.Hashtags,
		CreatedAt: time.Now(),
	}
	f.posts = append([]models.Post{p}, f.posts...)
	return &p, nil
}

func (f *fakeBackend) AdjustLikes(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if err := f.enter("AdjustLikes"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return 0, store.ErrNotFound
	}
	f.posts[i].LikesCount = max(f.posts[i].LikesCount+delta, 0)
	return f.posts[i].LikesCount, nil
}

func (f *fakeBackend) IncrementComments(ctx context.Context, id uuid.UUID) (int, error) {
	if err := f.enter("IncrementComments"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return 0, store.ErrNotFound
	}
	f.posts[i].CommentsCount++
	return f.posts[i].CommentsCount, nil
}

func (f *fakeBackend) IncrementShares(ctx context.Context, id uuid.UUID) (int, error) {
	if err := f.enter("IncrementShares"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return 0, store.ErrNotFound
	}
	f.posts[i].SharesCount++
	return f.posts[i].SharesCount, nil
}

func (f *fakeBackend) sleep() {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeBackend) Insert(ctx context.Context, userID, postID uuid.UUID) (bool, error) {
	if err := f.enter("InsertLike"); err != nil {
		return false, err
	}
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index(postID) < 0 {
		return false, store.ErrNotFound
	}
	k := [2]uuid.UUID{userID, postID}
	if f.likes[k] {
		return false, nil
	}
	f.likes[k] = true
	return true, nil
}

func (f *fakeBackend) Delete(ctx context.Context, userID, postID uuid.UUID) (bool, error) {
	if err := f.enter("DeleteLike"); err != nil {
		return false, err
	}
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()
	k := [2]uuid.UUID{userID, postID}
	if !f.likes[k] {
		return false, nil
	}
	delete(f.likes, k)
	return true, nil
}

func (f *fakeBackend) LikedPostIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	if err := f.enter("LikedPostIDs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for k := range f.likes {
		if k[0] == userID {
			out[k[1]] = true
		}
	}
	return out, nil
}

// fakeComments adapts fakeBackend to CommentRepository, whose Create
// signature differs from the post repository's.
type fakeComments struct{ *fakeBackend }

func (f fakeComments) Create(ctx context.Context, postID, authorID uuid.UUID, content string) (*models.Comment, error) {
	if err := f.enter("CreateComment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index(postID) < 0 {
		return nil, store.ErrNotFound
	}
	c := models.Comment{
		ID:        uuid.New(),
		PostID:    postID,
		AuthorID:  authorID,
		Author:    models.Author{ID: authorID, DisplayName: "Gardener"},
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.comments = append(f.comments, c)
	return &c, nil
}

func (f fakeComments) ListByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error) {
	if err := f.enter("ListComments"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Comment
	for _, c := range f.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeBlobs records uploads in memory.
type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	deleted   []string
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: make(map[string][]byte)} }

func (b *fakeBlobs) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	b.mu.Lock()
	b.objects[key] = buf.Bytes()
	b.mu.Unlock()
	return nil
}

func (b *fakeBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *fakeBlobs) PublicURL(key string) string { return "https://cdn.test/" + key }

// recordingNotifier keeps every notice it receives.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []models.Notice
}

func (r *recordingNotifier) Notify(ctx context.Context, key string, n models.Notice) error {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) last() (models.Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return models.Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

// fakeModerator flags any text containing a trigger word.
type fakeModerator struct {
	trigger string
	err     error
}

func (m fakeModerator) CheckSafety(ctx context.Context, text string) (*moderation.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.trigger != "" && bytes.Contains([]byte(text), []byte(m.trigger)) {
		return &moderation.Result{Safe: false, Categories: []string{"harassment"}}, nil
	}
	return &moderation.Result{Safe: true}, nil
}

// harness wires a Store to fakes.
type harness struct {
	backend  *fakeBackend
	blobs    *fakeBlobs
	notifier *recordingNotifier
	store    *Store
}

func newHarness(posts ...models.Post) *harness {
	h := &harness{
		backend:  newFakeBackend(posts...),
		blobs:    newFakeBlobs(),
		notifier: &recordingNotifier{},
	}
	h.store = New("session:test", Deps{
		Posts:    h.backend,
		Likes:    h.backend,
		Comments: fakeComments{h.backend},
		Blobs:    h.blobs,
		Notifier: h.notifier,
	})
	return h
}

func post(id uuid.UUID, likes int) models.Post {
	return models.Post{ID: id, Content: "post", LikesCount: likes, Hashtags: []string{}, CreatedAt: time.Now()}
}
