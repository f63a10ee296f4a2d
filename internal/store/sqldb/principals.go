package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pickly.app/internal/auth"
)

const principalColumns = `id, email, display_name, secret_hash, admin, holder_id, created_at`

func (s *Store) CreatePrincipal(ctx context.Context, p *auth.Principal) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		insert into principals (`+principalColumns+`)
		values (?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.Email, p.DisplayName, p.SecretHash, p.Admin, p.HolderID, p.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindPrincipal(ctx context.Context, id string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`select `+principalColumns+` from principals where id = ?`), id)
	return scanPrincipal(row)
}

func (s *Store) FindPrincipalByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`select `+principalColumns+` from principals where email = ?`), email)
	return scanPrincipal(row)
}

func (s *Store) SetAdmin(ctx context.Context, id string, admin bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`update principals set admin = ? where id = ?`), admin, id)
	if err != nil {
		return err
	}
	return requireOne(res, auth.ErrNotFound)
}

func (s *Store) LinkHolder(ctx context.Context, id, holderID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`update principals set holder_id = ? where id = ?`), holderID, id)
	if err != nil {
		return err
	}
	return requireOne(res, auth.ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*auth.Principal, error) {
	var (
		p       auth.Principal
		created time.Time
	)
	err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.SecretHash, &p.Admin, &p.HolderID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = created.UTC()
	return &p, nil
}

func requireOne(res sql.Result, notFound error) error {
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
