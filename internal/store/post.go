// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"gardenfeed/internal/models"
)

// postSelect joins the author so every returned post carries its embedded
// author detail.
const postSelect = `
	SELECT p.id, p.author_id, u.display_name, u.avatar_url,
	       p.content, p.category, p.image_url, p.hashtags,
	       p.likes_count, p.comments_count, p.shares_count, p.created_at
	FROM posts p
	JOIN users u ON u.id = p.author_id`

// PostStore handles all post-related database operations.
type PostStore struct {
	db *sql.DB
}

// NewPostStore creates a new PostStore with the given database connection.
func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

// NewPost holds the fields needed to insert a post.
type NewPost struct {
	AuthorID uuid.UUID
	Content  string
	Category models.Category
	ImageURL *string
	Hashtags []string
}

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	p := &models.Post{}
	var category sql.NullString
	var tags []string
	err := row.Scan(
		&p.ID, &p.AuthorID, &p.Author.DisplayName, &p.Author.AvatarURL,
		&p.Content, &category, &p.ImageURL, pgtype.NewMap().SQLScanner(&tags),
		&p.LikesCount, &p.CommentsCount, &p.SharesCount, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Author.ID = p.AuthorID
	p.Category = models.Category(category.String)
	if tags == nil {
		tags = []string{}
	}
	p.Hashtags = tags
	return p, nil
}

// List returns every post, newest first.
func (s *PostStore) List(ctx context.Context) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, postSelect+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// Create inserts a post with zeroed counters and returns the stored row
// including the server-assigned ID and the author detail.
func (s *PostStore) Create(ctx context.Context, in NewPost) (*models.Post, error) {
	var category *string
	if in.Category != models.CategoryNone {
		c := string(in.Category)
		category = &c
	}
	tags := in.Hashtags
	if tags == nil {
		tags = []string{}
	}

	p, err := scanPost(s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO posts (author_id, content, category, image_url, hashtags)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING *
		)
		SELECT p.id, p.author_id, u.display_name, u.avatar_url,
		       p.content, p.category, p.image_url, p.hashtags,
		       p.likes_count, p.comments_count, p.shares_count, p.created_at
		FROM inserted p
		JOIN users u ON u.id = p.author_id
	`, in.AuthorID, in.Content, category, in.ImageURL, tags))
	if notFound(err) {
		return nil, fmt.Errorf("create post: author: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return p, nil
}

// AdjustLikes atomically adds delta to the like counter, clamping at zero,
// and returns the new value.
func (s *PostStore) AdjustLikes(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		UPDATE posts SET likes_count = GREATEST(likes_count + $1, 0)
		WHERE id = $2
		RETURNING likes_count
	`, delta, id).Scan(&n)
	if notFound(err) {
		return 0, fmt.Errorf("adjust likes: %w", ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("adjust likes: %w", err)
	}
	return n, nil
}

// IncrementComments atomically bumps the comment counter and returns the new value.
func (s *PostStore) IncrementComments(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		UPDATE posts SET comments_count = comments_count + 1
		WHERE id = $1
		RETURNING comments_count
	`, id).Scan(&n)
	if notFound(err) {
		return 0, fmt.Errorf("increment comments: %w", ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment comments: %w", err)
	}
	return n, nil
}

// IncrementShares atomically bumps the share counter and returns the new value.
func (s *PostStore) IncrementShares(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		UPDATE posts SET shares_count = shares_count + 1
		WHERE id = $1
		RETURNING shares_count
	`, id).Scan(&n)
	if notFound(err) {
		return 0, fmt.Errorf("increment shares: %w", ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment shares: %w", err)
	}
	return n, nil
}
