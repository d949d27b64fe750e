// Package main is the entrypoint for the ClipCutter API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/clipcutter/internal/ai"
	"github.com/kiranshivaraju/clipcutter/internal/api"
	"github.com/kiranshivaraju/clipcutter/internal/api/handler"
	mw "github.com/kiranshivaraju/clipcutter/internal/api/middleware"
	"github.com/kiranshivaraju/clipcutter/internal/api/response"
	"github.com/kiranshivaraju/clipcutter/internal/artifacts"
	"github.com/kiranshivaraju/clipcutter/internal/cache"
	"github.com/kiranshivaraju/clipcutter/internal/config"
	"github.com/kiranshivaraju/clipcutter/internal/jobs"
	"github.com/kiranshivaraju/clipcutter/internal/media"
	"github.com/kiranshivaraju/clipcutter/internal/store"
	"github.com/kiranshivaraju/clipcutter/internal/youtube"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// pinger is the health-check view of the store and cache.
type pinger interface {
	Ping(ctx context.Context) error
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, _ := config.ParseLogLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"database_driver", cfg.Database.Driver,
		"caption_provider", cfg.Caption.Provider,
		"workers", cfg.Workers.Count)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open store and run migrations
	st, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	slog.Info("database ready", "driver", cfg.Database.Driver)

	// 3. Cache: Redis when configured, in-process otherwise
	c, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer c.Close()

	// 4. Media tools
	mediaCfg := media.Config{
		YtDlpPath:       cfg.Media.YtDlpPath,
		FFmpegPath:      cfg.Media.FFmpegPath,
		FFprobePath:     cfg.Media.FFprobePath,
		DownloadTimeout: cfg.Media.DownloadTimeout,
		ProbeTimeout:    cfg.Media.ProbeTimeout,
		RenderTimeout:   cfg.Media.RenderTimeout,
	}
	if err := media.CheckDependencies(mediaCfg); err != nil {
		slog.Warn("media tools unavailable, jobs will fail until installed", "error", err)
	}
	var titles []media.TitleSource
	if cfg.YouTube.APIKey != "" {
		yt, err := youtube.NewClient(ctx, cfg.YouTube.APIKey)
		if err != nil {
			return fmt.Errorf("create youtube client: %w", err)
		}
		titles = append(titles, yt)
		slog.Info("youtube data api enabled for titles")
	}
	tools := media.NewTools(media.NewExecRunner(logger), mediaCfg, logger, titles...)

	// 5. Caption provider
	provider, err := ai.NewCaptioner(cfg.Caption)
	if err != nil {
		return fmt.Errorf("create caption provider: %w", err)
	}
	slog.Info("caption provider initialized", "provider", provider.Name())
	captions := ai.NewCaptionService(provider, cfg.Caption.Timeout, logger)

	// 6. Job service: settle interrupted jobs, then start workers
	layout := artifacts.New(cfg.Media.Root, cfg.Media.URLPrefix)
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		return fmt.Errorf("create media root: %w", err)
	}
	svc := jobs.NewService(jobs.Dependencies{
		Store:     st,
		Cache:     c,
		Media:     tools,
		Captioner: captions,
		Layout:    layout,
		Logger:    logger,
	}, jobs.PoolConfig{Workers: cfg.Workers.Count, QueueSize: cfg.Workers.QueueSize})
	if err := svc.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	svc.Start()

	// 7. Build router with dependencies
	auth := mw.NewAuth(cfg.Auth.APIKeyHash)
	if !auth.Enabled() {
		slog.Warn("API_KEY_HASH not set, API is unauthenticated")
	}

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(c, cfg.Auth.RateLimitPerMin),

		HealthHandler:     healthHandler(st, c, func() []media.Dependency { return media.DependencyStatus(mediaCfg) }),
		CreateJobHandler:  handler.NewCreateJobHandler(svc),
		ListJobsHandler:   handler.NewListJobsHandler(svc),
		GetJobHandler:     handler.NewGetJobHandler(svc),
		JobStatusHandler:  handler.NewJobStatusHandler(svc),
		ListClipsHandler:  handler.NewListClipsHandler(svc),
		AdvanceJobHandler: handler.NewAdvanceJobHandler(svc),
		UpdateClipHandler: handler.NewUpdateClipHandler(svc),
		DownloadHandler:   handler.NewDownloadHandler(svc, layout),
		MediaPrefix:       layout.URLPrefix,
		MediaHandler:      handler.NewMediaHandler(layout),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Bundle downloads stream for as long as the client reads.
		WriteTimeout: 0,
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
	var serveErr error
	select {
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Warn("workers did not drain, running attempts will be failed on next start", "error", err)
	}
	if serveErr != nil {
		return serveErr
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore connects the configured driver, applies migrations and returns a close func.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case store.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		if err := store.RunMigrations(store.DriverSQLite, cfg.SQLitePath, cfg.MigrationsDir); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		st, err := store.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, func() { st.Close() }, nil
	default:
		pool, err := store.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := store.RunMigrations(store.DriverPostgres, cfg.URL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return store.NewPostgresStore(pool), pool.Close, nil
	}
}

func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, error) {
	if cfg.URL == "" {
		slog.Info("REDIS_URL not set, using in-memory cache")
		return cache.NewMemoryCache(), nil
	}
	redisCache, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return redisCache, nil
}

// healthHandler checks database and cache connectivity and reports media tool lookup.
func healthHandler(s, c pinger, tools func() []media.Dependency) http.HandlerFunc {
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
			"media":    tools(),
		})
	}
}
