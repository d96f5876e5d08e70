// Package app wires the MarketHub auth runtime: config, logging, HTTP routes,
// the session issuer, and the cross-tab event relay.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Godswillconcept/markethub-sub002/cmd/identity"
	authapi "github.com/Godswillconcept/markethub-sub002/cmd/internal/auth/api"
	"github.com/Godswillconcept/markethub-sub002/cmd/internal/auth/session"
	"github.com/Godswillconcept/markethub-sub002/cmd/internal/events"
	"github.com/Godswillconcept/markethub-sub002/cmd/security/password"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the server runtime: it owns HTTP wiring, the session issuer, the
// background sweep, and the websocket event relay.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry

	sessions *session.Service
	sweeper  *session.Sweeper
	auth     *authapi.Handler
	hub      *events.Hub
	ws       *events.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, sessStore, verifier, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	tokens, err := session.NewJWTManager(sessCfg)
	if err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := events.NewHub(log, cfg.WSSendQueue)

	svc := session.NewService(sessCfg, log, sessStore, tokens, verifier,
		session.WithMetrics(session.NewMetrics(registry)),
		session.WithEventSink(hub),
	)

	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), svc)
	if err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  registry,
		sessions:  svc,
		sweeper:   session.NewSweeper(svc, log, cfg.SweepInterval),
		auth:      auth,
		hub:       hub,
		ws:        events.NewGateway(log, hub, svc),
	}, nil
}

// Run starts the HTTP server and the background sweep, and blocks until
// context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.auth, a.ws)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(mux), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweeper.Run(sweepCtx)

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

// newStore decides between Postgres-backed persistence and in-memory dev mode.
// Dev mode pairs the in-memory session store with a static credential table
// seeded from MARKETHUB_DEV_USERS.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, session.Store, identity.Verifier, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, session.NewMemoryStore(), parseDevUsers(cfg.DevUsers), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")

	verifier, err := identity.NewPostgresVerifier(pool, password.DefaultConfig())
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	// Ownership model: app owns the pool lifecycle.
	return dbStore{pool: pool}, pool, true, session.NewPostgresStore(pool), verifier, nil
}

// parseDevUsers parses "user:pass,user2:pass2" into a static verifier.
// Malformed entries are skipped.
func parseDevUsers(spec string) identity.StaticVerifier {
	users := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		name, pass, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || pass == "" {
			continue
		}
		users[name] = pass
	}
	return identity.StaticVerifier{Users: users}
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
