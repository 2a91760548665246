package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sage/internal/cli"
	"github.com/JonMunkholm/sage/internal/config"
	"github.com/JonMunkholm/sage/internal/execution"
	"github.com/JonMunkholm/sage/internal/logging"
	"github.com/JonMunkholm/sage/internal/metrics"
	"github.com/JonMunkholm/sage/internal/store"
	"github.com/JonMunkholm/sage/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := os.MkdirAll(cfg.Validation.ExecutionsDir, 0o755); err != nil {
		slog.Error("failed to create executions directory", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	m := metrics.New()
	limiter := execution.NewLimiter(cfg.Validation.MaxConcurrent, cfg.Validation.MaxWaitTime)
	opts := []execution.ServiceOption{execution.WithMetrics(m)}
	janitorOpts := []execution.JanitorOption{execution.WithPurgeHook(m.Purged)}

	// Execution history is optional
	if cfg.Database.Enabled() {
		pool, err := connect(ctx, &cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		st := store.New(pool)
		if err := st.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		opts = append(opts, execution.WithStore(st))
		janitorOpts = append(janitorOpts, execution.WithHistory(st))
	} else {
		slog.Info("no database configured, execution history disabled")
	}

	service := execution.NewService(cfg.Validation, limiter, opts...)
	server := web.NewServer(cfg, service, m)

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	if cfg.Janitor.Enabled {
		janitor := execution.NewJanitor(cfg.Validation.ExecutionsDir, cfg.Janitor.Schedule, cfg.Janitor.Retention, janitorOpts...)
		if err := janitor.Start(jobCtx); err != nil {
			slog.Error("failed to start janitor", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Watch.Inbox != "" {
		w := execution.NewWatcher(cfg.Watch.Inbox, cfg.Watch.Extensions, cfg.Watch.Settle,
			cli.InboxHandler(service, cfg.Watch.ConfigPath), slog.Default())
		go func() {
			if err := w.Run(jobCtx); err != nil {
				slog.Error("inbox watcher stopped", "error", err)
			}
		}()
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running executions to finish (with timeout)
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for executions to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("executions did not complete in time", "error", err)
			} else {
				slog.Info("all executions completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
