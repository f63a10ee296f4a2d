package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pickly.app/internal/auth"
	"pickly.app/internal/store/memory"
)

var cheap = auth.HashParams{Time: 1, Memory: 64, Threads: 1}

func newService(t *testing.T, opts ...auth.ServiceOption) (*auth.Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	codec, err := auth.NewTokenCodec("access-secret", "refresh-secret", auth.WithIssuer("test"))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	base := []auth.ServiceOption{
		auth.WithPasswordHasher(auth.NewHasher(cheap)),
		auth.WithSessionHasher(auth.NewHasher(cheap)),
	}
	svc, err := auth.NewService(st, st, codec, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, st
}

func register(t *testing.T, svc *auth.Service, email string) auth.Result {
	t.Helper()
	res, err := svc.Register(context.Background(), auth.RegisterInput{Email: email, Secret: "hunter22", DisplayName: "Test"})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res
}

func liveCount(st *memory.Store, principalID string) int {
	n := 0
	now := time.Now()
	for _, s := range st.SessionsFor(principalID) {
		if s.Live(now) {
			n++
		}
	}
	return n
}

func TestRegisterIssuesPairAndSession(t *testing.T) {
	svc, st := newService(t)
	res := register(t, svc, "  Alice@Example.com ")

	if res.Principal.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", res.Principal.Email)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", res.Tokens)
	}
	if !res.Tokens.RefreshExpiresAt.After(res.Tokens.AccessExpiresAt) {
		t.Fatalf("refresh should outlive access: %+v", res.Tokens)
	}
	sessions := st.SessionsFor(res.Principal.ID)
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	if sessions[0].TokenHash == res.Tokens.RefreshToken {
		t.Fatalf("raw refresh token stored")
	}
	id, err := svc.VerifyAccess(res.Tokens.AccessToken)
	if err != nil || id.PrincipalID != res.Principal.ID {
		t.Fatalf("VerifyAccess: id=%+v err=%v", id, err)
	}
}

func TestRegisterDuplicateCreatesNothing(t *testing.T) {
	svc, st := newService(t)
	first := register(t, svc, "dup@example.com")

	_, err := svc.Register(context.Background(), auth.RegisterInput{Email: "DUP@example.com", Secret: "another1"})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if n := len(st.SessionsFor(first.Principal.ID)); n != 1 {
		t.Fatalf("duplicate register touched sessions: %d", n)
	}
	if _, err := svc.Login(context.Background(), "dup@example.com", "another1"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("duplicate secret should not be usable, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	cases := []auth.RegisterInput{
		{Email: "not-an-email", Secret: "hunter22"},
		{Email: "Bob <bob@example.com>", Secret: "hunter22"},
		{Email: "bob@example.com", Secret: "short"},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, auth.ErrInvalidInput) {
			t.Fatalf("Register(%+v): expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "carol@example.com")

	_, unknown := svc.Login(context.Background(), "nobody@example.com", "hunter22")
	_, wrong := svc.Login(context.Background(), "carol@example.com", "wrong-secret")
	if !errors.Is(unknown, auth.ErrInvalidCredentials) || !errors.Is(wrong, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v and %v", unknown, wrong)
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("failures differ: %q vs %q", unknown, wrong)
	}

	res, err := svc.Login(context.Background(), "CAROL@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Principal.Email != "carol@example.com" {
		t.Fatalf("unexpected principal: %+v", res.Principal)
	}
}

func TestRefreshIsSingleUse(t *testing.T) {
	svc, st := newService(t)
	res := register(t, svc, "dave@example.com")
	ctx := context.Background()

	pair, err := svc.Refresh(ctx, res.Principal.ID, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.RefreshToken == res.Tokens.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}
	if _, err := svc.Refresh(ctx, res.Principal.ID, res.Tokens.RefreshToken); !errors.Is(err, auth.ErrTokenNotRecognized) {
		t.Fatalf("expected replay to fail with ErrTokenNotRecognized, got %v", err)
	}
	if n := liveCount(st, res.Principal.ID); n != 1 {
		t.Fatalf("expected exactly one live session after rotation, got %d", n)
	}
	if _, err := svc.Refresh(ctx, res.Principal.ID, pair.RefreshToken); err != nil {
		t.Fatalf("rotated token should work: %v", err)
	}
}

func TestRefreshRejectsForeignAndAccessTokens(t *testing.T) {
	svc, _ := newService(t)
	a := register(t, svc, "erin@example.com")
	b := register(t, svc, "frank@example.com")
	ctx := context.Background()

	if _, err := svc.Refresh(ctx, b.Principal.ID, a.Tokens.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, a.Principal.ID, a.Tokens.AccessToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token, got %v", err)
	}
	if _, err := svc.VerifyAccess(a.Tokens.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	svc, st := newService(t)
	res := register(t, svc, "gina@example.com")

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		others []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(context.Background(), res.Principal.ID, res.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			others = append(others, err)
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	for _, err := range others {
		if !errors.Is(err, auth.ErrTokenNotRecognized) {
			t.Fatalf("loser got unexpected error: %v", err)
		}
	}
	if n := liveCount(st, res.Principal.ID); n != 1 {
		t.Fatalf("expected one live session, got %d", n)
	}
}

// losingRevokes reports every Revoke as already taken by another caller.
type losingRevokes struct {
	auth.SessionStore
	lists atomic.Int64
}

func (l *losingRevokes) ListLive(ctx context.Context, principalID string, now time.Time, limit int) ([]*auth.RefreshSession, error) {
	l.lists.Add(1)
	return l.SessionStore.ListLive(ctx, principalID, now, limit)
}

func (l *losingRevokes) Revoke(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func TestRefreshLostRevokeRereadsOnce(t *testing.T) {
	st := memory.New()
	codec, err := auth.NewTokenCodec("access-secret", "refresh-secret", auth.WithIssuer("test"))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	sessions := &losingRevokes{SessionStore: st}
	svc, err := auth.NewService(st, sessions, codec,
		auth.WithPasswordHasher(auth.NewHasher(cheap)),
		auth.WithSessionHasher(auth.NewHasher(cheap)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	res := register(t, svc, "iris@example.com")

	if _, err := svc.Refresh(context.Background(), res.Principal.ID, res.Tokens.RefreshToken); !errors.Is(err, auth.ErrTokenNotRecognized) {
		t.Fatalf("expected ErrTokenNotRecognized after losing both revokes, got %v", err)
	}
	if n := sessions.lists.Load(); n != 2 {
		t.Fatalf("expected exactly two session reads, got %d", n)
	}
	if n := liveCount(st, res.Principal.ID); n != 1 {
		t.Fatalf("expected the session to stay live, got %d", n)
	}
}

func TestRefreshScanLimitHidesOldSessions(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Now()
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
	svc, _ := newService(t, auth.WithSessionScanLimit(2), auth.WithClock(clock))
	oldest := register(t, svc, "hank@example.com")
	for i := 0; i < 2; i++ {
		if _, err := svc.Login(context.Background(), "hank@example.com", "hunter22"); err != nil {
			t.Fatalf("Login: %v", err)
		}
	}
	if _, err := svc.Refresh(context.Background(), oldest.Principal.ID, oldest.Tokens.RefreshToken); !errors.Is(err, auth.ErrTokenNotRecognized) {
		t.Fatalf("expected oldest session to fall outside the scan, got %v", err)
	}
}

func TestLogoutRevokesMatchedSession(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	first := register(t, svc, "ivy@example.com")
	second, err := svc.Login(ctx, "ivy@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(ctx, first.Principal.ID, first.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if n := liveCount(st, first.Principal.ID); n != 1 {
		t.Fatalf("expected the other session to survive, got %d live", n)
	}
	if _, err := svc.Refresh(ctx, first.Principal.ID, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("surviving session should refresh: %v", err)
	}
}

func TestLogoutWithoutTokenRevokesAllAndIsIdempotent(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	res := register(t, svc, "jack@example.com")
	if _, err := svc.Login(ctx, "jack@example.com", "hunter22"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.Logout(ctx, res.Principal.ID, ""); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
		if n := liveCount(st, res.Principal.ID); n != 0 {
			t.Fatalf("expected no live sessions, got %d", n)
		}
	}
	if err := svc.Logout(ctx, res.Principal.ID, "garbage"); err != nil {
		t.Fatalf("Logout with garbage token: %v", err)
	}
	if _, err := svc.Refresh(ctx, res.Principal.ID, res.Tokens.RefreshToken); !errors.Is(err, auth.ErrTokenNotRecognized) {
		t.Fatalf("expected revoked token to be unrecognized, got %v", err)
	}
}

func TestCurrentPrincipalAndHolder(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	res := register(t, svc, "kim@example.com")

	holder, err := svc.HolderOf(ctx, res.Principal.ID)
	if err != nil || holder != "" {
		t.Fatalf("expected no holder, got %q err=%v", holder, err)
	}
	if err := st.LinkHolder(ctx, res.Principal.ID, "H-1"); err != nil {
		t.Fatalf("LinkHolder: %v", err)
	}
	if holder, _ = svc.HolderOf(ctx, res.Principal.ID); holder != "H-1" {
		t.Fatalf("expected H-1, got %q", holder)
	}
	view, err := svc.CurrentPrincipal(ctx, res.Principal.ID)
	if err != nil {
		t.Fatalf("CurrentPrincipal: %v", err)
	}
	if view.HolderID != "H-1" || view.Email != "kim@example.com" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if _, err := svc.CurrentPrincipal(ctx, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewServiceRejectsBadOptions(t *testing.T) {
	st := memory.New()
	codec, _ := auth.NewTokenCodec("a", "b")
	if _, err := auth.NewService(st, st, codec, auth.WithSessionScanLimit(0)); err == nil {
		t.Fatalf("expected error for zero scan limit")
	}
	if _, err := auth.NewService(nil, st, codec); err == nil {
		t.Fatalf("expected error for nil principal store")
	}
}
