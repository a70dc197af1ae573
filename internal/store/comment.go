// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"gardenfeed/internal/models"
)

// CommentStore handles comment persistence.
type CommentStore struct {
	db *sql.DB
}

// NewCommentStore creates a new CommentStore with the given database connection.
func NewCommentStore(db *sql.DB) *CommentStore {
	return &CommentStore{db: db}
}

func scanComment(row interface{ Scan(...any) error }) (*models.Comment, error) {
	c := &models.Comment{}
	err := row.Scan(
		&c.ID, &c.PostID, &c.AuthorID, &c.Author.DisplayName, &c.Author.AvatarURL,
		&c.Content, &c.LikesCount, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Author.ID = c.AuthorID
	return c, nil
}

// Create inserts a comment and returns it with the author embedded. The
// parent post's counter is not touched here; see PostStore.IncrementComments.
func (s *CommentStore) Create(ctx context.Context, postID, authorID uuid.UUID, content string) (*models.Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO comments (post_id, author_id, content)
			VALUES ($1, $2, $3)
			RETURNING *
		)
		SELECT c.id, c.post_id, c.author_id, u.display_name, u.avatar_url,
		       c.content, c.likes_count, c.created_at
		FROM inserted c
		JOIN users u ON u.id = c.author_id
	`, postID, authorID, content))
	if notFound(err) {
		return nil, fmt.Errorf("create comment: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}

// ListByPost returns the comments of a post, oldest first.
func (s *CommentStore) ListByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.post_id, c.author_id, u.display_name, u.avatar_url,
		       c.content, c.likes_count, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id = $1
		ORDER BY c.created_at ASC, c.id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}
