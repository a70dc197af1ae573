// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// notices.go provides a Valkey-backed queue of transient user notices.
// Each session key owns a capped list; the client drains it after every
// request, so notices survive only until they are shown.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gardenfeed/internal/models"
)

const (
	// noticeKeyPrefix is the Valkey key prefix for notice lists.
	noticeKeyPrefix = "notices:"

	// DefaultNoticeTTL is how long undelivered notices are kept.
	DefaultNoticeTTL = 10 * time.Minute

	// MaxNotices caps the list so an idle client cannot grow it forever.
	MaxNotices = 20
)

// NoticeQueue stores notices per session key in Valkey.
type NoticeQueue struct {
	client *redis.Client
	ttl    time.Duration
}

// NewNoticeQueue creates a notice queue backed by the given Valkey client.
func NewNoticeQueue(client *redis.Client, ttl time.Duration) *NoticeQueue {
	if ttl == 0 {
		ttl = DefaultNoticeTTL
	}
	return &NoticeQueue{client: client, ttl: ttl}
}

// Notify appends a notice for key, trimming the list to the newest
// MaxNotices entries and refreshing its TTL.
func (q *NoticeQueue) Notify(ctx context.Context, key string, n models.Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notice marshal: %w", err)
	}

	k := noticeKeyPrefix + key
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, payload)
		pipe.LTrim(ctx, k, -MaxNotices, -1)
		pipe.Expire(ctx, k, q.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("notice push: %w", err)
	}
	return nil
}

// Drain returns and removes every pending notice for key, oldest first.
func (q *NoticeQueue) Drain(ctx context.Context, key string) ([]models.Notice, error) {
	k := noticeKeyPrefix + key

	var rng *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rng = pipe.LRange(ctx, k, 0, -1)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("notice drain: %w", err)
	}

	notices := make([]models.Notice, 0, len(rng.Val()))
	for _, raw := range rng.Val() {
		var n models.Notice
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			slog.Warn("skipping malformed notice", "key", key, "error", err)
			continue
		}
		notices = append(notices, n)
	}
	return notices, nil
}
