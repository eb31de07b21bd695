// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/doorward/doorward/internal/auth"
	authmemory "github.com/doorward/doorward/internal/auth/memory"
	authpostgres "github.com/doorward/doorward/internal/auth/postgres"
	authredis "github.com/doorward/doorward/internal/auth/redis"
	"github.com/doorward/doorward/internal/config"
	"github.com/doorward/doorward/internal/httpapi"
	"github.com/doorward/doorward/internal/logging"
	"github.com/doorward/doorward/internal/observability"
	"github.com/doorward/doorward/internal/store"
	"github.com/doorward/doorward/internal/xdg"
	"github.com/doorward/doorward/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var automigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication service",
		Long: `Start the HTTP API server, the observability server, and the
background expired-session sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				path = xdg.DefaultConfigPath()
			}
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, automigrate)
		},
	}

	// Flag names map onto config keys ("-" becomes ".").
	cmd.Flags().String("server-addr", "127.0.0.1:8080", "HTTP API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL env)")
	cmd.Flags().String("redis-addr", "", "Redis address for the redis session store")
	cmd.Flags().String("session-store", config.StorePostgres, "session store backend (postgres, redis, memory)")
	cmd.Flags().String("session-ttl", "24h", "session lifetime")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().BoolVar(&automigrate, "automigrate", false, "apply pending database migrations on startup")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, automigrate bool) error {
	logging.SetDefault("doorward", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	logger := slog.Default()

	logger.Info("starting doorward",
		"server_addr", cfg.Server.Addr,
		"session_store", cfg.Session.Store,
		"session_ttl", cfg.Session.TTL,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if automigrate && cfg.Session.Store != config.StoreMemory {
		if err := migrateUp(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	users, sessions, cleanup, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	hasher, err := auth.NewHasher(cfg.Password.Scheme, cfg.Password.BcryptCost)
	if err != nil {
		return err
	}

	svc, err := auth.NewServiceWithLogger(users, sessions, hasher, cfg.Session.TTL, logger)
	if err != nil {
		return err
	}

	// Observability server (optional)
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool { return true })
		metrics = obsServer.Metrics()
		obsErrCh, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	apiServer, err := httpapi.NewServer(httpapi.Options{
		Addr:    cfg.Server.Addr,
		Service: svc,
		Cookie: httpapi.CookieOptions{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		},
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     metrics,
		Logger:      logger,
		Version:     version,
	})
	if err != nil {
		return err
	}

	apiErrCh, err := apiServer.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	// Background sweep of expired sessions
	go runSweeper(ctx, svc, metrics, cfg.Session.SweepInterval, logger)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("doorward ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildStores wires the configured repositories. The returned cleanup closes
// any owned connections.
func buildStores(ctx context.Context, cfg *config.Config) (auth.UserRepository, auth.SessionRepository, func(), error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		return authmemory.NewUserRepository(), authmemory.NewSessionRepository(), func() {}, nil

	case config.StorePostgres:
		pool, err := store.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		return authpostgres.NewUserRepository(pool), authpostgres.NewSessionRepository(pool), pool.Close, nil

	case config.StoreRedis:
		pool, err := store.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			pool.Close()
			return nil, nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		cleanup := func() {
			_ = rdb.Close()
			pool.Close()
		}
		return authpostgres.NewUserRepository(pool), authredis.NewSessionRepository(rdb), cleanup, nil

	default:
		return nil, nil, nil, oops.Code("CONFIG_INVALID").
			With("store", cfg.Session.Store).
			Errorf("unknown session store")
	}
}

// runSweeper periodically removes expired sessions until ctx is cancelled.
func runSweeper(ctx context.Context, svc *auth.Service, metrics *observability.Metrics, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := svc.SweepExpired(ctx)
			if err != nil {
				errutil.LogError(logger, "session sweep failed", err)
				observability.RecordSweepFailure()
				continue
			}
			if swept > 0 {
				logger.Debug("swept expired sessions", "count", swept)
			}
			if metrics != nil {
				metrics.SessionsSwept.Add(float64(swept))
			}
		}
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// This ensures that server failures trigger graceful shutdown of the entire process.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
