// Package app wires the humanpass runtime: config, logging, stores,
// domain services, and the HTTP server.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"humanpass/cmd/internal/api"
	"humanpass/cmd/internal/fraud"
	"humanpass/cmd/internal/kv"
	"humanpass/cmd/internal/link"
	"humanpass/cmd/internal/passkey"
	"humanpass/cmd/internal/ratelimit"
	"humanpass/cmd/internal/session"
	"humanpass/cmd/internal/syncbroker"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App owns the HTTP server and the wired domain services.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	api *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbPool, dbEnabled, stores, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(stores.kv, cfg.SessionTTL)
	links := link.NewService(link.Config{TTL: cfg.LinkTTL, Retention: cfg.LinkRetention}, stores.links)
	limiter := ratelimit.New(stores.kv)
	detector := fraud.New(stores.kv, cfg.RefererPinTTL)
	broker := syncbroker.New(stores.kv, cfg.SyncTTL)
	verifier := passkey.NewVerifier(passkey.LoadConfigFromEnv(), stores.passkeys, stores.kv)

	apiHandler := api.NewHandler(
		log,
		api.LoadConfigFromEnv(),
		sessions,
		links,
		limiter,
		detector,
		broker,
		verifier,
	)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		api:       apiHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.api)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(api.WithCORS(mux), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// stores groups the persistence seams the services are built on.
type stores struct {
	kv       kv.Store
	links    link.Store
	passkeys passkey.Store
}

// newStores decides between Postgres-backed persistence and the
// in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, stores{
			kv:       kv.NewMemoryStore(),
			links:    link.NewMemoryStore(),
			passkeys: passkey.NewMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, stores{}, err
	}

	// Ownership model: app owns the pool lifecycle; the per-package
	// stores never close it.
	kvStore, err := kv.NewPostgresStore(pool, kv.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, stores{}, err
	}
	linkStore, err := link.NewPostgresStore(pool, link.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, stores{}, err
	}
	pkStore, err := passkey.NewPostgresStore(pool, passkey.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, stores{}, err
	}

	log.Info("db.enabled.postgres_store")

	return dbStore{pool: pool}, pool, true, stores{
		kv:       kvStore,
		links:    linkStore,
		passkeys: pkStore,
	}, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
