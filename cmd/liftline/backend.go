package main

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/api/option"

	"github.com/alecgard/liftline/internal/config"
	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/metrics"
)

// backend is the document store selected by configuration plus the handles
// needed to check and close it.
type backend struct {
	docs      docstore.Store
	ping      func(ctx context.Context) error
	poolStats metrics.DBPoolStatFunc
	app       *firebase.App
	closers   []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}
	switch cfg.Store.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory document store; data is lost on restart")
		b.docs = docstore.NewMemoryStore()

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		slog.Info("connected to database")
		b.docs = docstore.NewPostgresStore(pool)
		b.ping = pool.Ping
		b.poolStats = func() (total, idle, acquired int32) {
			s := pool.Stat()
			return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
		}

	case config.DriverFirestore:
		app, err := firebaseApp(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("opening firestore: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		slog.Info("connected to firestore", "project_id", cfg.Store.Firestore.ProjectID)
		b.app = app
		b.docs = docstore.NewFirestoreStore(client)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return b, nil
}

// firebaseApp initialises the Firebase app for the configured project.
func firebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.Store.Firestore.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Store.Firestore.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Store.Firestore.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase: %w", err)
	}
	return app, nil
}
