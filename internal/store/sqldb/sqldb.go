// Package sqldb implements the auth and access stores on database/sql for
// postgres (pgx) and sqlite (mattn/go-sqlite3). Queries are written with ?
// placeholders and rebound per dialect.
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"

	"pickly.app/internal/access"
	"pickly.app/internal/auth"
	"pickly.app/internal/migrate"
)

// Dialect names the database/sql driver and its SQL flavor.
type Dialect string

const (
	Postgres Dialect = "pgx"
	SQLite   Dialect = "sqlite3"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return "", fmt.Errorf("sqldb: unsupported driver %q", driver)
	}
}

//go:embed migrations seeds
var scripts embed.FS

// Migrations returns the migration scripts for d.
func Migrations(d Dialect) fs.FS {
	dir := "migrations/postgres"
	if d == SQLite {
		dir = "migrations/sqlite"
	}
	sub, err := fs.Sub(scripts, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Seeds returns the bootstrap seed scripts, shared by both dialects.
func Seeds() fs.FS {
	sub, err := fs.Sub(scripts, "seeds")
	if err != nil {
		panic(err)
	}
	return sub
}

// PoolConfig tunes the postgres connection pool. sqlite always runs on a
// single connection.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ auth.PrincipalStore = (*Store)(nil)
	_ auth.SessionStore   = (*Store)(nil)
	_ access.Store        = (*Store)(nil)
)

// Open connects to the database behind dsn.
func Open(d Dialect, dsn string, pool PoolConfig) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqldb: dsn is required")
	}
	if d == SQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, err
	}
	switch d {
	case SQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		maxOpen := pool.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 50
		}
		maxIdle := pool.MaxIdleConns
		if maxIdle <= 0 {
			maxIdle = maxOpen / 2
		}
		lifetime := pool.ConnMaxLifetime
		if lifetime <= 0 {
			lifetime = 15 * time.Minute
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		db.SetConnMaxLifetime(lifetime)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	return &Store{db: db, dialect: d}, nil
}

// New wraps an existing handle. Tests use it with sqlmock.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

// Ping backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrator returns a migration manager over the embedded scripts.
func (s *Store) Migrator() *migrate.Manager {
	var opts []migrate.Option
	if s.dialect == Postgres {
		opts = append(opts, migrate.WithDollarPlaceholders())
	}
	return migrate.NewManager(s.db, Migrations(s.dialect), Seeds(), opts...)
}

// sqliteDSN enables WAL, a busy timeout and foreign keys unless the caller
// already set them.
func sqliteDSN(dsn string) string {
	params := []struct{ key, value string }{
		{"_journal_mode", "WAL"},
		{"_busy_timeout", "5000"},
		{"_foreign_keys", "on"},
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range params {
		if strings.Contains(dsn, p.key+"=") {
			continue
		}
		dsn += sep + p.key + "=" + p.value
		sep = "&"
	}
	return dsn
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
