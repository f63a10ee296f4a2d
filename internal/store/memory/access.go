package memory

import (
	"context"
	"sort"
	"time"

	"pickly.app/internal/access"
)

func (s *Store) CreateProfile(_ context.Context, p *access.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return access.ErrConflict
	}
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, p *access.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; !ok {
		return access.ErrNotFound
	}
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *Store) FindProfile(_ context.Context, id string) (*access.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]*access.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertAssignment(_ context.Context, holderID, profileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profileID]; !ok {
		return access.ErrNotFound
	}
	k := assignmentKey{holderID, profileID}
	if a, ok := s.assignments[k]; ok {
		a.Active = true
		a.DeactivatedAt = nil
		return nil
	}
	s.assignments[k] = &access.Assignment{HolderID: holderID, ProfileID: profileID, Active: true, CreatedAt: at}
	return nil
}

func (s *Store) DeactivateAssignment(_ context.Context, holderID, profileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentKey{holderID, profileID}]
	if !ok {
		return access.ErrNotFound
	}
	if a.Active {
		t := at
		a.Active = false
		a.DeactivatedAt = &t
	}
	return nil
}

func (s *Store) ActiveProfileIDs(_ context.Context, holderID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k, a := range s.assignments {
		if k.holder != holderID || !a.Active {
			continue
		}
		if p, ok := s.profiles[k.profile]; ok && p.Active {
			out = append(out, k.profile)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateMenu(_ context.Context, m *access.MenuNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.menuByKey[m.Key]; ok {
		return access.ErrConflict
	}
	cp := *m
	s.menus[m.ID] = &cp
	s.menuByKey[m.Key] = m.ID
	return nil
}

func (s *Store) UpdateMenu(_ context.Context, m *access.MenuNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.menus[m.ID]
	if !ok {
		return access.ErrNotFound
	}
	if old.Key != m.Key {
		if _, taken := s.menuByKey[m.Key]; taken {
			return access.ErrConflict
		}
		delete(s.menuByKey, old.Key)
		s.menuByKey[m.Key] = m.ID
	}
	cp := *m
	s.menus[m.ID] = &cp
	return nil
}

func (s *Store) FindMenu(_ context.Context, id string) (*access.MenuNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.menus[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) FindMenuByKey(ctx context.Context, key string) (*access.MenuNode, error) {
	s.mu.RLock()
	id, ok := s.menuByKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, access.ErrNotFound
	}
	return s.FindMenu(ctx, id)
}

func (s *Store) ListMenus(_ context.Context) ([]*access.MenuNode, error) {
	s.mu.RLock()
	out := make([]*access.MenuNode, 0, len(s.menus))
	for _, m := range s.menus {
		cp := *m
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	sortMenus(out)
	return out, nil
}

func (s *Store) MenusByKeys(_ context.Context, keys []string) ([]*access.MenuNode, error) {
	s.mu.RLock()
	var out []*access.MenuNode
	for _, k := range keys {
		id, ok := s.menuByKey[k]
		if !ok {
			continue
		}
		if m := s.menus[id]; m.Active {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()
	sortMenus(out)
	return out, nil
}

func (s *Store) ReplaceGrants(_ context.Context, profileID string, menuIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[string]bool, len(menuIDs))
	for _, id := range menuIDs {
		keep[id] = true
	}
	for k, g := range s.grants {
		if k.profile == profileID && g.Active && !keep[k.menu] {
			t := at
			g.Active = false
			g.DeactivatedAt = &t
		}
	}
	for id := range keep {
		k := grantKey{profileID, id}
		if g, ok := s.grants[k]; ok {
			g.Active = true
			g.DeactivatedAt = nil
			continue
		}
		s.grants[k] = &access.Grant{ProfileID: profileID, MenuID: id, Active: true, CreatedAt: at}
	}
	return nil
}

func (s *Store) GrantedMenuKeys(_ context.Context, profileIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(profileIDs))
	for _, id := range profileIDs {
		want[id] = true
	}
	set := make(map[string]struct{})
	for k, g := range s.grants {
		if !want[k.profile] || !g.Active {
			continue
		}
		if m, ok := s.menus[k.menu]; ok && m.Active {
			set[m.Key] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) GrantedMenus(_ context.Context, profileID string) ([]*access.MenuNode, error) {
	s.mu.RLock()
	var out []*access.MenuNode
	for k, g := range s.grants {
		if k.profile != profileID || !g.Active {
			continue
		}
		if m, ok := s.menus[k.menu]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()
	sortMenus(out)
	return out, nil
}

// Grants returns a copy of every grant row of the profile, active or not.
func (s *Store) Grants(profileID string) []access.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []access.Grant
	for k, g := range s.grants {
		if k.profile == profileID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MenuID < out[j].MenuID })
	return out
}

func sortMenus(ms []*access.MenuNode) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Order != ms[j].Order {
			return ms[i].Order < ms[j].Order
		}
		return ms[i].Key < ms[j].Key
	})
}
