// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// LikeStore manages the post_likes join table. The (user_id, post_id)
// primary key guarantees at most one like per pair.
type LikeStore struct {
	db *sql.DB
}

// NewLikeStore creates a new LikeStore with the given database connection.
func NewLikeStore(db *sql.DB) *LikeStore {
	return &LikeStore{db: db}
}

// Insert records a like. It reports false when the like already existed.
func (s *LikeStore) Insert(ctx context.Context, userID, postID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO post_likes (user_id, post_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, post_id) DO NOTHING
	`, userID, postID)
	if notFound(err) {
		return false, fmt.Errorf("insert like: %w", ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert like rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes a like. It reports false when there was nothing to remove.
func (s *LikeStore) Delete(ctx context.Context, userID, postID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM post_likes WHERE user_id = $1 AND post_id = $2`, userID, postID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete like rows affected: %w", err)
	}
	return n > 0, nil
}

// LikedPostIDs returns the set of post IDs the user has liked.
func (s *LikeStore) LikedPostIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id FROM post_likes WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list liked posts: %w", err)
	}
	defer rows.Close()

	liked := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan liked post: %w", err)
		}
		liked[id] = true
	}
	return liked, rows.Err()
}
