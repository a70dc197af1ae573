// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package feed

import (
	"context"
	"log/slog"

	"gardenfeed/internal/models"
)

// Notifier delivers transient user-facing notices for a session key.
type Notifier interface {
	Notify(ctx context.Context, key string, n models.Notice) error
}

// LogNotifier writes notices to the default slog logger. It is used when no
// notice queue is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, key string, n models.Notice) error {
	slog.Info("notice", "key", key, "level", n.Level, "message", n.Message)
	return nil
}
