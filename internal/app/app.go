// Package app assembles stores and services from configuration. Both the API
// server and identityctl build on it.
package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"

	"pickly.app/internal/access"
	"pickly.app/internal/auth"
	"pickly.app/internal/config"
	"pickly.app/internal/guard"
	"pickly.app/internal/store/memory"
	"pickly.app/internal/store/sqldb"
)

// Backend is the full persistence surface.
type Backend interface {
	auth.PrincipalStore
	auth.SessionStore
	access.Store
}

// Stores holds the opened backend. SQL is nil in memory mode.
type Stores struct {
	Backend Backend
	SQL     *sqldb.Store
}

// DB returns the SQL handle for readiness probes, or nil.
func (s *Stores) DB() *sql.DB {
	if s.SQL == nil {
		return nil
	}
	return s.SQL.DB()
}

// Memory reports whether the backend is the in-process store.
func (s *Stores) Memory() bool { return s.SQL == nil }

func (s *Stores) Close() error {
	if s.SQL == nil {
		return nil
	}
	return s.SQL.Close()
}

// OpenStores opens the configured backend, applying migrations and seeds
// when enabled.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*Stores, error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory store; data is lost on restart")
		return &Stores{Backend: memory.New()}, nil
	}
	d, err := sqldb.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	st, err := sqldb.Open(d, cfg.DSN, sqldb.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}
	if cfg.AutoMigrate {
		applied, err := st.Migrator().Up(ctx)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied", "count", len(applied))
	}
	if cfg.AutoSeed {
		applied, err := st.Migrator().Seed(ctx)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		log.Info("seeds applied", "count", len(applied))
	}
	return &Stores{Backend: st, SQL: st}, nil
}

// Services are the wired domain components.
type Services struct {
	Auth     *auth.Service
	Resolver *access.CachedResolver
	Admin    *access.Admin
	Guard    *guard.Chain
}

// NewServices wires token, access and guard services over st. In memory
// mode missing JWT secrets are generated and the standard profiles and
// menus are bootstrapped.
func NewServices(ctx context.Context, cfg config.Config, st *Stores, log *slog.Logger) (*Services, error) {
	accessSecret, refreshSecret := cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret
	if st.Memory() {
		if accessSecret == "" {
			accessSecret = rand.Text()
			log.Warn("auth.access_secret not set; using a random secret for this process")
		}
		if refreshSecret == "" {
			refreshSecret = rand.Text()
			log.Warn("auth.refresh_secret not set; using a random secret for this process")
		}
	}
	codec, err := auth.NewTokenCodec(accessSecret, refreshSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		return nil, err
	}
	svc, err := auth.NewService(st.Backend, st.Backend, codec,
		auth.WithPasswordHasher(auth.NewHasher(auth.HashParams{
			Time:    cfg.Auth.Argon.Time,
			Memory:  cfg.Auth.Argon.Memory,
			Threads: cfg.Auth.Argon.Threads,
		})),
		auth.WithSessionScanLimit(cfg.Auth.SessionScanLimit),
		auth.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	catalog, err := access.ParseCatalog(cfg.Access.Permissions)
	if err != nil {
		return nil, fmt.Errorf("access.permissions: %w", err)
	}
	resolver := access.NewCachedResolver(access.NewResolver(svc, st.Backend, catalog), cfg.Access.CacheTTL)
	admin := access.NewAdmin(st.Backend, access.WithInvalidator(resolver))
	if st.Memory() {
		if err := access.Bootstrap(ctx, admin); err != nil {
			return nil, fmt.Errorf("bootstrap access: %w", err)
		}
	}

	return &Services{
		Auth:     svc,
		Resolver: resolver,
		Admin:    admin,
		Guard:    guard.NewChain(resolver, log),
	}, nil
}
