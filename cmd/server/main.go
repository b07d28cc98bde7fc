// Package main is the entrypoint for the CatStealer API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kiranshivaraju/catstealer/internal/api"
	"github.com/kiranshivaraju/catstealer/internal/api/handler"
	mw "github.com/kiranshivaraju/catstealer/internal/api/middleware"
	"github.com/kiranshivaraju/catstealer/internal/api/response"
	"github.com/kiranshivaraju/catstealer/internal/blob"
	"github.com/kiranshivaraju/catstealer/internal/cache"
	"github.com/kiranshivaraju/catstealer/internal/catapi"
	"github.com/kiranshivaraju/catstealer/internal/config"
	"github.com/kiranshivaraju/catstealer/internal/fetcher"
	"github.com/kiranshivaraju/catstealer/internal/jobs"
	"github.com/kiranshivaraju/catstealer/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "storage_backend", cfg.Storage.Backend, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create cat catalog client and image sink
	catalog := catapi.NewHTTPClient(cfg.CatAPI.BaseURL, cfg.CatAPI.APIKey, cfg.CatAPI.Timeout)

	sink, err := newSink(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create image sink: %w", err)
	}
	slog.Info("image sink initialized", "backend", cfg.Storage.Backend)

	// 6. Create store
	pgStore := store.NewPostgresStore(pool)

	// 7. Job pipeline: registry, queue, worker
	registry := jobs.NewRegistry(cfg.Jobs.Retention)
	go registry.Janitor(ctx)

	queue := jobs.NewQueue(cfg.Jobs.QueueCapacity)

	worker := jobs.NewWorker(queue, registry)
	worker.Register(jobs.KindFetchCats, func(ctx context.Context, item jobs.Item) error {
		f := fetcher.New(catalog, sink, pgStore, registry)
		f.Fetch(ctx, item.JobID, item.Count)
		return nil
	})

	var workerDone sync.WaitGroup
	workerDone.Add(1)
	go func() {
		defer workerDone.Done()
		worker.Run(ctx)
	}()

	jobService := jobs.NewService(registry, queue)

	// 8. Build router with dependencies
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)

	deps := api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler:    healthHandler(pgStore, redisCache),
		FetchCatsHandler: handler.NewFetchCatsHandler(jobService),
		PollJobHandler:   handler.NewPollJobHandler(jobService),
		ListCatsHandler:  handler.NewListCatsHandler(pgStore, redisCache),
		GetCatHandler:    handler.NewGetCatHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Stop accepting work and wait for the worker loop to exit. In-flight
	// jobs observe ctx cancellation and are marked failed by the fetcher.
	queue.Close()
	workerDone.Wait()

	// Anything still buffered was accepted before Close but will never
	// run; fail those jobs instead of leaving them pending.
	for _, item := range queue.Drain() {
		registry.MarkFailed(item.JobID, "server is shutting down")
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newSink builds the image sink for the configured storage backend.
func newSink(cfg config.StorageConfig) (blob.Sink, error) {
	switch cfg.Backend {
	case "s3":
		return blob.NewMinioSink(
			blob.WithEndpoint(cfg.S3.Endpoint),
			blob.WithBucket(cfg.S3.Bucket),
			blob.WithAccessKey(cfg.S3.AccessKey),
			blob.WithSecretKey(cfg.S3.SecretKey),
			blob.WithSSL(cfg.S3.UseSSL),
		)
	default:
		return blob.NewFSSink(cfg.FSDir), nil
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
