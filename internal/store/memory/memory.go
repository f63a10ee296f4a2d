// Package memory is a mutex-guarded in-process store for development and
// tests. It honors the same contracts as the SQL store, including the
// compare-and-set on session revocation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pickly.app/internal/access"
	"pickly.app/internal/auth"
)

var (
	_ auth.PrincipalStore = (*Store)(nil)
	_ auth.SessionStore   = (*Store)(nil)
	_ access.Store        = (*Store)(nil)
)

type assignmentKey struct{ holder, profile string }
type grantKey struct{ profile, menu string }

type Store struct {
	mu sync.RWMutex

	principals map[string]*auth.Principal
	byEmail    map[string]string
	sessions   map[string]*auth.RefreshSession

	profiles    map[string]*access.Profile
	assignments map[assignmentKey]*access.Assignment
	menus       map[string]*access.MenuNode
	menuByKey   map[string]string
	grants      map[grantKey]*access.Grant
}

func New() *Store {
	return &Store{
		principals:  make(map[string]*auth.Principal),
		byEmail:     make(map[string]string),
		sessions:    make(map[string]*auth.RefreshSession),
		profiles:    make(map[string]*access.Profile),
		assignments: make(map[assignmentKey]*access.Assignment),
		menus:       make(map[string]*access.MenuNode),
		menuByKey:   make(map[string]string),
		grants:      make(map[grantKey]*access.Grant),
	}
}

// --- principals ---

func (s *Store) CreatePrincipal(_ context.Context, p *auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[p.Email]; ok {
		return auth.ErrAlreadyExists
	}
	if _, ok := s.principals[p.ID]; ok {
		return auth.ErrAlreadyExists
	}
	cp := *p
	s.principals[p.ID] = &cp
	s.byEmail[p.Email] = p.ID
	return nil
}

func (s *Store) FindPrincipal(_ context.Context, id string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) FindPrincipalByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, auth.ErrNotFound
	}
	return s.FindPrincipal(ctx, id)
}

func (s *Store) SetAdmin(_ context.Context, id string, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	p.Admin = admin
	return nil
}

func (s *Store) LinkHolder(_ context.Context, id, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	p.HolderID = holderID
	return nil
}

// --- refresh sessions ---

func (s *Store) CreateSession(_ context.Context, sess *auth.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return auth.ErrAlreadyExists
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) ListLive(_ context.Context, principalID string, now time.Time, limit int) ([]*auth.RefreshSession, error) {
	s.mu.RLock()
	var live []*auth.RefreshSession
	for _, sess := range s.sessions {
		if sess.PrincipalID == principalID && sess.Live(now) {
			cp := *sess
			live = append(live, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool {
		if !live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].CreatedAt.After(live[j].CreatedAt)
		}
		return live[i].ID > live[j].ID
	})
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}
	return live, nil
}

func (s *Store) Revoke(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return false, nil
	}
	t := at
	sess.RevokedAt = &t
	return true, nil
}

func (s *Store) RevokeAllLive(_ context.Context, principalID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.PrincipalID == principalID && sess.Live(at) {
			t := at
			sess.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

// SessionsFor returns every session of the principal, revoked or not.
func (s *Store) SessionsFor(principalID string) []*auth.RefreshSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*auth.RefreshSession
	for _, sess := range s.sessions {
		if sess.PrincipalID == principalID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out
}
