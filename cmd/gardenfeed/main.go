// Package main is the entry point for the gardenfeed API server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gardenfeed/internal/auth"
	"gardenfeed/internal/cache"
	"gardenfeed/internal/config"
	"gardenfeed/internal/database"
	"gardenfeed/internal/feed"
	"gardenfeed/internal/handlers"
	"gardenfeed/internal/middleware"
	"gardenfeed/internal/moderation"
	"gardenfeed/internal/router"
	"gardenfeed/internal/session"
	"gardenfeed/internal/storage"
	"gardenfeed/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if !cfg.IsDev() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})))
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed a demo gardener (no-op if users already exist).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	sessionStore := session.NewStore(valkeyClient, cfg.SessionTTL, cfg.SecureCookie)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	notices := cache.NewNoticeQueue(valkeyClient, cache.DefaultNoticeTTL)

	deps := feed.Deps{
		Posts:    store.NewPostStore(db),
		Likes:    store.NewLikeStore(db),
		Comments: store.NewCommentStore(db),
		Notifier: notices,
	}

	// Object storage is optional; without it posts cannot carry images.
	storageClient, err := storage.New(
		cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey,
		cfg.S3Bucket, cfg.S3PublicURL,
	)
	if err != nil {
		slog.Error("failed to initialize S3 storage", "error", err)
		os.Exit(1)
	}
	if storageClient != nil {
		deps.Blobs = storageClient
		slog.Info("s3 storage connected", "endpoint", cfg.S3Endpoint, "bucket", storageClient.Bucket())
	} else {
		slog.Warn("s3 storage not configured, image uploads disabled")
	}

	if m := moderation.New(moderation.Config{
		OpenAIKey:      cfg.OpenAIAPIKey,
		OpenAIBaseURL:  cfg.OpenAIBaseURL,
		MistralKey:     cfg.MistralAPIKey,
		MistralBaseURL: cfg.MistralBaseURL,
	}); m != nil {
		deps.Moderator = m
		slog.Info("content moderation enabled")
	} else {
		slog.Warn("no moderation provider configured, posts are not screened")
	}

	registry := feed.NewRegistry(deps, cfg.FeedIdleTTL)
	defer registry.Stop()

	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
	defer authLimiter.Stop()

	r := router.New(router.Deps{
		Sessions:      sessionStore,
		Tokens:        tokens,
		Auth:          handlers.NewAuth(store.NewUserStore(db), sessionStore, tokens, registry),
		Feed:          handlers.NewFeed(registry, notices),
		AuthLimiter:   authLimiter,
		SecureCookies: cfg.SecureCookie,
	})

	// WriteTimeout leaves room for image uploads plus a moderation call.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
