package sqldb

import (
	"context"
	"database/sql"
	"time"

	"pickly.app/internal/auth"
)

func (s *Store) CreateSession(ctx context.Context, sess *auth.RefreshSession) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		insert into refresh_sessions (id, principal_id, token_hash, created_at, expires_at, revoked_at)
		values (?, ?, ?, ?, ?, ?)
	`), sess.ID, sess.PrincipalID, sess.TokenHash, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC(), nullTime(sess.RevokedAt))
	switch {
	case isUniqueViolation(err):
		return auth.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return auth.ErrNotFound
	}
	return err
}

// ListLive returns the newest live sessions first.
func (s *Store) ListLive(ctx context.Context, principalID string, now time.Time, limit int) ([]*auth.RefreshSession, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		select id, principal_id, token_hash, created_at, expires_at, revoked_at
		from refresh_sessions
		where principal_id = ? and revoked_at is null and expires_at > ?
		order by created_at desc, id desc
		limit ?
	`), principalID, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.RefreshSession
	for rows.Next() {
		var (
			sess    auth.RefreshSession
			revoked sql.NullTime
		)
		if err := rows.Scan(&sess.ID, &sess.PrincipalID, &sess.TokenHash, &sess.CreatedAt, &sess.ExpiresAt, &revoked); err != nil {
			return nil, err
		}
		sess.CreatedAt = sess.CreatedAt.UTC()
		sess.ExpiresAt = sess.ExpiresAt.UTC()
		sess.RevokedAt = timePtr(revoked)
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// Revoke is a compare-and-set on revoked_at; only the caller that flips it
// sees true.
func (s *Store) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		update refresh_sessions set revoked_at = ?
		where id = ? and revoked_at is null
	`), at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) RevokeAllLive(ctx context.Context, principalID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		update refresh_sessions set revoked_at = ?
		where principal_id = ? and revoked_at is null and expires_at > ?
	`), at.UTC(), principalID, at.UTC())
	if err != nil {
		return 0, err
	}
	return affected(res)
}
