package auth

import (
	"context"
	"time"
)

// PrincipalStore persists principals. Create returns ErrAlreadyExists when
// the email is taken; lookups return ErrNotFound.
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	FindPrincipal(ctx context.Context, id string) (*Principal, error)
	FindPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	SetAdmin(ctx context.Context, id string, admin bool) error
	LinkHolder(ctx context.Context, id, holderID string) error
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *RefreshSession) error
	// ListLive returns unrevoked sessions expiring after now, newest first,
	// capped at limit.
	ListLive(ctx context.Context, principalID string, now time.Time, limit int) ([]*RefreshSession, error)
	// Revoke sets revoked_at only if it is still null and reports whether
	// this call made the change.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
	// RevokeAllLive revokes every live session of the principal.
	RevokeAllLive(ctx context.Context, principalID string, at time.Time) (int64, error)
}
