package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/alecgard/liftline/internal/account"
	"github.com/alecgard/liftline/internal/api"
	"github.com/alecgard/liftline/internal/complaint"
	"github.com/alecgard/liftline/internal/config"
	"github.com/alecgard/liftline/internal/metrics"
	"github.com/alecgard/liftline/internal/mirror"
	"github.com/alecgard/liftline/internal/push"
	"github.com/alecgard/liftline/internal/ratelimit"
	"github.com/alecgard/liftline/internal/sales"
	"github.com/alecgard/liftline/internal/site"
)

const (
	sweepInterval = time.Minute
	flowMaxIdle   = 30 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Liftline API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()
	if be.poolStats != nil {
		m.RegisterDBPoolCollector(be.poolStats)
	}

	sessionStore, memSessions, closeSessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	notifier, err := openNotifier(ctx, cfg, be)
	if err != nil {
		return err
	}
	notifier = push.Instrument(notifier, m)

	accounts := account.NewStore(be.docs)
	sessions := account.NewSessions(sessionStore, cfg.Sessions.Duration)
	coord := mirror.NewCoordinator(be.docs, m)
	complaints := complaint.NewService(be.docs, coord, accounts, notifier)
	flows := complaint.NewFlows(complaints)
	limiter := ratelimit.New(cfg.RateLimit.Login, cfg.RateLimit.Window)

	go sweep(ctx, func() {
		limiter.Sweep()
		if n := flows.Sweep(flowMaxIdle); n > 0 {
			slog.Info("discarded idle completion flows", "count", n)
		}
		if memSessions != nil {
			memSessions.CleanExpired()
		}
	})

	router := api.NewRouter(api.RouterDeps{
		Sites:          site.NewService(be.docs, coord, accounts, notifier),
		Complaints:     complaints,
		Flows:          flows,
		Sales:          sales.NewService(be.docs),
		Accounts:       accounts,
		Sessions:       sessions,
		LoginLimiter:   limiter,
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Ping:           be.ping,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "store", cfg.Store.Driver, "sessions", cfg.Sessions.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()

	return srv.Shutdown(shutdownCtx)
}

// openSessionStore returns the configured session store and a func closing
// it. The in-memory store is also returned on its own so expired entries can
// be swept.
func openSessionStore(ctx context.Context, cfg *config.Config) (account.SessionStore, *account.MemorySessionStore, func(), error) {
	if cfg.Sessions.Driver != config.DriverRedis {
		mem := account.NewMemorySessionStore()
		return mem, mem, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Sessions.Redis.Addr,
		Password: cfg.Sessions.Redis.Password,
		DB:       cfg.Sessions.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.Info("connected to redis", "addr", cfg.Sessions.Redis.Addr)
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
	return account.NewRedisSessionStore(client), nil, closeFn, nil
}

func openNotifier(ctx context.Context, cfg *config.Config, be *backend) (push.Notifier, error) {
	if !cfg.Push.Enabled {
		return push.Nop{}, nil
	}
	app := be.app
	if app == nil {
		var err error
		if app, err = firebaseApp(ctx, cfg); err != nil {
			return nil, err
		}
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening messaging: %w", err)
	}
	slog.Info("push notifications enabled")
	return push.NewFCM(client), nil
}

func sweep(ctx context.Context, fn func()) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
