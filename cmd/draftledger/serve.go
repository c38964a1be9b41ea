// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"draftledger/internal/ai"
	"draftledger/internal/blog"
	"draftledger/internal/cache"
	"draftledger/internal/config"
	"draftledger/internal/database"
	"draftledger/internal/handlers"
	"draftledger/internal/middleware"
	"draftledger/internal/policy"
	"draftledger/internal/router"
	"draftledger/internal/storage"
	"draftledger/internal/store"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	slog.Info("configuration loaded", "env", cfg.Env, "addr", cfg.Addr(), "store", cfg.StoreBackend)

	var checks []router.Pinger
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Post and revision storage.
	var repo blog.Repository
	switch cfg.StoreBackend {
	case config.StoreMemory:
		slog.Warn("using in-memory store, posts are lost on restart")
		repo = store.NewMemoryStore()
	default:
		db, err := database.Connect(cfg.DSN())
		if err != nil {
			return err
		}
		closers = append(closers, db.Close)
		if err := database.Migrate(db); err != nil {
			return err
		}
		if cfg.IsDev() {
			if err := database.Seed(db); err != nil {
				return err
			}
		}
		repo = store.NewPostStore(db)
		checks = append(checks, db.PingContext)
	}

	// Optional revision cache. A Valkey outage at startup only costs speed.
	svcCfg := blog.Config{
		GenerationTimeout: cfg.GenerationTimeout,
		ChunkConcurrency:  cfg.PolicyChunkConcurrency,
	}
	if cfg.CacheEnabled() {
		client, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			slog.Warn("revision cache disabled", "error", err)
		} else {
			closers = append(closers, client.Close)
			svcCfg.Cache = cache.NewRevisionCache(client, cfg.RevisionCacheTTL)
			checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		}
	}

	policies, err := policy.LoadLibrary(cfg.PolicyFile)
	if err != nil {
		return err
	}
	svcCfg.Policies = policies
	slog.Info("policy library loaded", "path", cfg.PolicyFile, "policies", policies.Len())

	registry, err := newRegistry(cfg, serveProvider)
	if err != nil {
		return err
	}
	if !registry.HasProvider(registry.ActiveName()) {
		slog.Warn("active generation provider has no API key, generation requests will fail",
			"provider", registry.ActiveName(), "available", registry.Available())
	} else {
		slog.Info("generation providers initialized", "active", registry.ActiveName(), "available", registry.Available())
	}
	assistant := ai.NewAssistant(registry, cfg.AIRequestsPerSecond, cfg.AIBurst)

	svc := blog.NewService(repo, assistant, svcCfg)

	// Optional markdown export bucket.
	var exporter handlers.Exporter
	storageClient, err := storage.New(storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Prefix:    cfg.S3Prefix,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	if storageClient != nil {
		exporter = storageClient
		slog.Info("export storage configured", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	} else {
		slog.Warn("s3 storage not configured, exports disabled")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		defer limiter.Stop()
	}

	handler := router.New(handlers.NewBlog(svc, exporter), limiter, allOf(checks))

	// WriteTimeout has to outlast the slowest generation call.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give active requests up to 30 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

// newRegistry builds the provider registry from config. A non-empty
// override must name a provider that has an API key.
func newRegistry(cfg *config.Config, override string) (*ai.Registry, error) {
	registry := ai.NewRegistry(cfg.AIProvider, map[string]ai.ProviderConfig{
		"openai":  {APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL},
		"gemini":  {APIKey: cfg.GeminiKey, Model: cfg.GeminiModel, BaseURL: cfg.GeminiBaseURL},
		"claude":  {APIKey: cfg.ClaudeKey, Model: cfg.ClaudeModel, BaseURL: cfg.ClaudeBaseURL},
		"mistral": {APIKey: cfg.MistralKey, Model: cfg.MistralModel, BaseURL: cfg.MistralBaseURL},
	})
	if override != "" {
		if err := registry.SetActive(override); err != nil {
			return nil, fmt.Errorf("--provider: %w", err)
		}
	}
	return registry, nil
}

// allOf combines readiness checks; nil when there is nothing to check.
func allOf(checks []router.Pinger) router.Pinger {
	if len(checks) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			errs = append(errs, check(ctx))
		}
		return errors.Join(errs...)
	}
}
