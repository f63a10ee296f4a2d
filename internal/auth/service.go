package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"pickly.app/internal/ids"
	"pickly.app/internal/obs"
)

const (
	defaultSessionScanLimit = 10
	minSecretLength         = 6
)

// Service orchestrates registration, login, refresh rotation and logout.
type Service struct {
	principals PrincipalStore
	sessions   SessionStore
	codec      *TokenCodec

	passwords *Hasher
	tokens    *Hasher
	dummy     string

	scanLimit int
	now       func() time.Time
	log       *slog.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithPasswordHasher replaces the hasher used for account secrets.
func WithPasswordHasher(h *Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("auth: nil password hasher")
		}
		s.passwords = h
		return nil
	}
}

// WithSessionHasher replaces the hasher used for refresh-token digests.
func WithSessionHasher(h *Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("auth: nil session hasher")
		}
		s.tokens = h
		return nil
	}
}

// WithSessionScanLimit bounds how many live sessions refresh and logout
// compare a presented token against. Older sessions become unmatchable.
func WithSessionScanLimit(n int) ServiceOption {
	return func(s *Service) error {
		if n <= 0 {
			return fmt.Errorf("auth: session scan limit must be positive, got %d", n)
		}
		s.scanLimit = n
		return nil
	}
}

// WithLogger sets the logger for operational events.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(principals PrincipalStore, sessions SessionStore, codec *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if principals == nil || sessions == nil || codec == nil {
		return nil, errors.New("auth: principal store, session store and codec are required")
	}
	svc := &Service{
		principals: principals,
		sessions:   sessions,
		codec:      codec,
		passwords:  NewHasher(DefaultHashParams),
		tokens:     NewHasher(SessionHashParams),
		scanLimit:  defaultSessionScanLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.log == nil {
		svc.log = obs.Logger()
	}
	svc.log = svc.log.With("component", "auth")

	dummy, err := svc.passwords.Hash(ids.New())
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy digest: %w", err)
	}
	svc.dummy = dummy
	return svc, nil
}

// Register creates a principal and issues its first token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Result{}, err
	}
	if len(in.Secret) < minSecretLength {
		return Result{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minSecretLength)
	}

	switch _, err := s.principals.FindPrincipalByEmail(ctx, email); {
	case err == nil:
		obs.AuthEvent("register", "conflict")
		return Result{}, ErrAlreadyExists
	case !errors.Is(err, ErrNotFound):
		return Result{}, err
	}

	digest, err := s.passwords.Hash(in.Secret)
	if err != nil {
		return Result{}, err
	}
	p := &Principal{
		ID:          ids.New(),
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
		SecretHash:  digest,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.principals.CreatePrincipal(ctx, p); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			obs.AuthEvent("register", "conflict")
		}
		return Result{}, err
	}

	pair, err := s.issue(ctx, p)
	if err != nil {
		return Result{}, err
	}
	obs.AuthEvent("register", "ok")
	return Result{Principal: p.View(), Tokens: pair}, nil
}

// Login checks credentials and issues a token pair. Unknown email and wrong
// secret are indistinguishable, and both run one full hash verification.
func (s *Service) Login(ctx context.Context, email, secret string) (Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p, err := s.principals.FindPrincipalByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Result{}, err
	}
	digest := s.dummy
	if p != nil {
		digest = p.SecretHash
	}
	ok, verr := s.passwords.Verify(digest, secret)
	if p == nil || verr != nil || !ok {
		if verr != nil && p != nil {
			s.log.WarnContext(ctx, "stored digest unreadable", "principal_id", p.ID, "error", verr)
		}
		obs.AuthEvent("login", "invalid_credentials")
		return Result{}, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, p)
	if err != nil {
		return Result{}, err
	}
	obs.AuthEvent("login", "ok")
	return Result{Principal: p.View(), Tokens: pair}, nil
}

// Refresh rotates the presented refresh token. The matched session is
// revoked with a compare-and-set; a lost race is re-read once before the
// token is reported as not recognized.
func (s *Service) Refresh(ctx context.Context, principalID, presented string) (TokenPair, error) {
	id, err := s.codec.Verify(presented, TokenRefresh)
	if err != nil {
		obs.AuthEvent("refresh", "invalid_token")
		return TokenPair{}, ErrInvalidToken
	}
	if id.PrincipalID != principalID {
		obs.AuthEvent("refresh", "invalid_token")
		return TokenPair{}, ErrInvalidToken
	}

	for attempt := 0; attempt < 2; attempt++ {
		now := s.now().UTC()
		match, err := s.matchSession(ctx, principalID, presented, now)
		if err != nil {
			return TokenPair{}, err
		}
		if match == nil {
			obs.AuthEvent("refresh", "not_recognized")
			return TokenPair{}, ErrTokenNotRecognized
		}
		won, err := s.sessions.Revoke(ctx, match.ID, now)
		if err != nil {
			return TokenPair{}, err
		}
		if !won {
			s.log.DebugContext(ctx, "refresh lost revoke race", "principal_id", principalID, "attempt", attempt)
			continue
		}
		obs.SessionsRevoked("rotation", 1)

		p, err := s.principals.FindPrincipal(ctx, principalID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return TokenPair{}, ErrInvalidToken
			}
			return TokenPair{}, err
		}
		pair, err := s.issue(ctx, p)
		if err != nil {
			return TokenPair{}, err
		}
		obs.AuthEvent("refresh", "ok")
		return pair, nil
	}
	obs.AuthEvent("refresh", "not_recognized")
	return TokenPair{}, ErrTokenNotRecognized
}

// Logout revokes the session matching presented, or every live session of
// the principal when nothing is presented or nothing matches. It is
// idempotent.
func (s *Service) Logout(ctx context.Context, principalID, presented string) error {
	now := s.now().UTC()
	if strings.TrimSpace(presented) != "" {
		if id, err := s.codec.Verify(presented, TokenRefresh); err == nil && id.PrincipalID == principalID {
			match, err := s.matchSession(ctx, principalID, presented, now)
			if err != nil {
				return err
			}
			if match != nil {
				won, err := s.sessions.Revoke(ctx, match.ID, now)
				if err != nil {
					return err
				}
				if won {
					obs.SessionsRevoked("logout", 1)
				}
				obs.AuthEvent("logout", "single")
				return nil
			}
		}
	}
	n, err := s.sessions.RevokeAllLive(ctx, principalID, now)
	if err != nil {
		return err
	}
	obs.SessionsRevoked("logout_all", n)
	obs.AuthEvent("logout", "all")
	return nil
}

// CurrentPrincipal returns the read-only view of the principal.
func (s *Service) CurrentPrincipal(ctx context.Context, principalID string) (PrincipalView, error) {
	p, err := s.principals.FindPrincipal(ctx, principalID)
	if err != nil {
		return PrincipalView{}, err
	}
	return p.View(), nil
}

// HolderOf returns the profile-bearer id linked to the principal, or "" when
// none is linked.
func (s *Service) HolderOf(ctx context.Context, principalID string) (string, error) {
	p, err := s.principals.FindPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return p.HolderID, nil
}

// VerifyAccess validates an access token.
func (s *Service) VerifyAccess(raw string) (Identity, error) {
	return s.codec.Verify(raw, TokenAccess)
}

// VerifyRefresh validates a refresh token without consuming it.
func (s *Service) VerifyRefresh(raw string) (Identity, error) {
	return s.codec.Verify(raw, TokenRefresh)
}

func (s *Service) matchSession(ctx context.Context, principalID, presented string, now time.Time) (*RefreshSession, error) {
	live, err := s.sessions.ListLive(ctx, principalID, now, s.scanLimit)
	if err != nil {
		return nil, err
	}
	for _, sess := range live {
		ok, err := s.tokens.Verify(sess.TokenHash, presented)
		if err != nil {
			s.log.WarnContext(ctx, "session digest unreadable", "session_id", sess.ID, "error", err)
			continue
		}
		if ok {
			return sess, nil
		}
	}
	return nil, nil
}

func (s *Service) issue(ctx context.Context, p *Principal) (TokenPair, error) {
	access, accessExp, err := s.codec.Sign(TokenAccess, p.ID, p.Email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.Sign(TokenRefresh, p.ID, p.Email)
	if err != nil {
		return TokenPair{}, err
	}
	digest, err := s.tokens.Hash(refresh)
	if err != nil {
		return TokenPair{}, err
	}
	sess := &RefreshSession{
		ID:          ids.New(),
		PrincipalID: p.ID,
		TokenHash:   digest,
		CreatedAt:   s.now().UTC(),
		ExpiresAt:   refreshExp,
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return email, nil
}
