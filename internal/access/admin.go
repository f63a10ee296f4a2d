package access

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"pickly.app/internal/ids"
)

var (
	profileIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
	menuKeyPattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)
)

// Invalidator is notified after every write that can change a principal's
// authorization surface.
type Invalidator interface {
	InvalidateAll()
}

// Admin maintains profiles, assignments, menus and grants.
type Admin struct {
	store       Store
	now         func() time.Time
	invalidator Invalidator
}

// AdminOption configures Admin.
type AdminOption func(*Admin)

// WithAdminClock overrides the time source.
func WithAdminClock(fn func() time.Time) AdminOption {
	return func(a *Admin) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithInvalidator registers the cache to clear after writes.
func WithInvalidator(inv Invalidator) AdminOption {
	return func(a *Admin) { a.invalidator = inv }
}

// NewAdmin builds an Admin over store.
func NewAdmin(store Store, opts ...AdminOption) *Admin {
	a := &Admin{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProfileInput carries fields for a new profile.
type ProfileInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProfilePatch carries optional profile updates.
type ProfilePatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

// MenuInput carries fields for a new menu node.
type MenuInput struct {
	Key       string `json:"key"`
	ParentKey string `json:"parent_key"`
	URL       string `json:"url"`
	Icon      string `json:"icon"`
	Title     string `json:"title"`
	Order     int    `json:"order"`
}

// MenuPatch carries optional menu updates. An empty ParentKey detaches the
// node.
type MenuPatch struct {
	Key       *string `json:"key"`
	ParentKey *string `json:"parent_key"`
	URL       *string `json:"url"`
	Icon      *string `json:"icon"`
	Title     *string `json:"title"`
	Order     *int    `json:"order"`
	Active    *bool   `json:"active"`
}

func (a *Admin) changed() {
	if a.invalidator != nil {
		a.invalidator.InvalidateAll()
	}
}

// CreateProfile adds a profile. Duplicate ids yield ErrConflict.
func (a *Admin) CreateProfile(ctx context.Context, in ProfileInput) (*Profile, error) {
	id := strings.TrimSpace(in.ID)
	if !profileIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: profile id %q", ErrInvalidInput, in.ID)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: profile name is required", ErrInvalidInput)
	}
	now := a.now().UTC()
	p := &Profile{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProfile applies patch to the profile.
func (a *Admin) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*Profile, error) {
	p, err := a.store.FindProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: profile name is required", ErrInvalidInput)
		}
		p.Name = name
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	p.UpdatedAt = a.now().UTC()
	if err := a.store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	a.changed()
	return p, nil
}

// DeactivateProfile turns the profile off. Its assignments and grants stay
// recorded but stop contributing.
func (a *Admin) DeactivateProfile(ctx context.Context, id string) (*Profile, error) {
	off := false
	return a.UpdateProfile(ctx, id, ProfilePatch{Active: &off})
}

// GetProfile returns one profile.
func (a *Admin) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return a.store.FindProfile(ctx, id)
}

// ListProfiles returns every profile.
func (a *Admin) ListProfiles(ctx context.Context) ([]*Profile, error) {
	return a.store.ListProfiles(ctx)
}

// AssignProfile links holder to an active profile, reactivating an earlier
// link if present.
func (a *Admin) AssignProfile(ctx context.Context, holderID, profileID string) error {
	holderID = strings.TrimSpace(holderID)
	if holderID == "" {
		return fmt.Errorf("%w: holder id is required", ErrInvalidInput)
	}
	p, err := a.store.FindProfile(ctx, profileID)
	if err != nil {
		return err
	}
	if !p.Active {
		return fmt.Errorf("%w: profile %s is inactive", ErrInvalidInput, profileID)
	}
	if err := a.store.UpsertAssignment(ctx, holderID, p.ID, a.now().UTC()); err != nil {
		return err
	}
	a.changed()
	return nil
}

// RevokeProfile deactivates the link between holder and profile.
func (a *Admin) RevokeProfile(ctx context.Context, holderID, profileID string) error {
	if err := a.store.DeactivateAssignment(ctx, holderID, profileID, a.now().UTC()); err != nil {
		return err
	}
	a.changed()
	return nil
}

// CreateMenu adds a node. The key must be unique and a declared parent must
// exist.
func (a *Admin) CreateMenu(ctx context.Context, in MenuInput) (*MenuNode, error) {
	key := strings.TrimSpace(in.Key)
	if !menuKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: menu key %q", ErrInvalidInput, in.Key)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: menu title is required", ErrInvalidInput)
	}
	parent := strings.TrimSpace(in.ParentKey)
	if parent == key {
		return nil, fmt.Errorf("%w: menu cannot be its own parent", ErrInvalidInput)
	}
	if parent != "" {
		if _, err := a.store.FindMenuByKey(ctx, parent); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: parent menu %q does not exist", ErrInvalidInput, parent)
			}
			return nil, err
		}
	}
	now := a.now().UTC()
	m := &MenuNode{
		ID:        ids.New(),
		Key:       key,
		ParentKey: parent,
		URL:       strings.TrimSpace(in.URL),
		Icon:      strings.TrimSpace(in.Icon),
		Title:     title,
		Order:     in.Order,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateMenu(ctx, m); err != nil {
		return nil, err
	}
	a.changed()
	return m, nil
}

// UpdateMenu applies patch. Parent changes are rejected when the parent is
// missing or when the new chain would loop back to the node.
func (a *Admin) UpdateMenu(ctx context.Context, id string, patch MenuPatch) (*MenuNode, error) {
	m, err := a.store.FindMenu(ctx, id)
	if err != nil {
		return nil, err
	}
	all, err := a.store.ListMenus(ctx)
	if err != nil {
		return nil, err
	}

	if patch.Key != nil && strings.TrimSpace(*patch.Key) != m.Key {
		key := strings.TrimSpace(*patch.Key)
		if !menuKeyPattern.MatchString(key) {
			return nil, fmt.Errorf("%w: menu key %q", ErrInvalidInput, key)
		}
		if len(childrenOf(all, m.Key)) > 0 {
			return nil, fmt.Errorf("%w: menu %s has children and cannot be renamed", ErrConflict, m.Key)
		}
		m.Key = key
	}
	if patch.ParentKey != nil {
		m.ParentKey = strings.TrimSpace(*patch.ParentKey)
	}
	if m.ParentKey != "" {
		if m.ParentKey == m.Key {
			return nil, fmt.Errorf("%w: menu cannot be its own parent", ErrInvalidInput)
		}
		parents := make(map[string]string, len(all))
		for _, n := range all {
			if n.ID != m.ID {
				parents[n.Key] = n.ParentKey
			}
		}
		if _, ok := parents[m.ParentKey]; !ok {
			return nil, fmt.Errorf("%w: parent menu %q does not exist", ErrInvalidInput, m.ParentKey)
		}
		parents[m.Key] = m.ParentKey
		if loops(parents, m.Key) {
			return nil, fmt.Errorf("%w: menu %s would become its own ancestor", ErrInvalidInput, m.Key)
		}
	}
	if patch.URL != nil {
		m.URL = strings.TrimSpace(*patch.URL)
	}
	if patch.Icon != nil {
		m.Icon = strings.TrimSpace(*patch.Icon)
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: menu title is required", ErrInvalidInput)
		}
		m.Title = title
	}
	if patch.Order != nil {
		m.Order = *patch.Order
	}
	if patch.Active != nil {
		if !*patch.Active && len(activeChildrenOf(all, m.Key)) > 0 {
			return nil, fmt.Errorf("%w: menu %s has active children", ErrConflict, m.Key)
		}
		m.Active = *patch.Active
	}
	m.UpdatedAt = a.now().UTC()
	if err := a.store.UpdateMenu(ctx, m); err != nil {
		return nil, err
	}
	a.changed()
	return m, nil
}

// DeactivateMenu turns a node off. Nodes with active children are refused.
func (a *Admin) DeactivateMenu(ctx context.Context, id string) (*MenuNode, error) {
	off := false
	return a.UpdateMenu(ctx, id, MenuPatch{Active: &off})
}

// GetMenu returns one node.
func (a *Admin) GetMenu(ctx context.Context, id string) (*MenuNode, error) {
	return a.store.FindMenu(ctx, id)
}

// ListMenus returns every node ordered by (order, key).
func (a *Admin) ListMenus(ctx context.Context) ([]*MenuNode, error) {
	return a.store.ListMenus(ctx)
}

// AssignMenus replaces the profile's granted menu set with menuIDs.
func (a *Admin) AssignMenus(ctx context.Context, profileID string, menuIDs []string) error {
	if _, err := a.store.FindProfile(ctx, profileID); err != nil {
		return err
	}
	uniq := dedupe(menuIDs)
	for _, id := range uniq {
		if _, err := a.store.FindMenu(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: menu %s does not exist", ErrInvalidInput, id)
			}
			return err
		}
	}
	if err := a.store.ReplaceGrants(ctx, profileID, uniq, a.now().UTC()); err != nil {
		return err
	}
	a.changed()
	return nil
}

// AssignMenusByKey resolves keys to ids and calls AssignMenus.
func (a *Admin) AssignMenusByKey(ctx context.Context, profileID string, keys []string) error {
	menuIDs := make([]string, 0, len(keys))
	for _, key := range dedupe(keys) {
		m, err := a.store.FindMenuByKey(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: menu %q does not exist", ErrInvalidInput, key)
			}
			return err
		}
		menuIDs = append(menuIDs, m.ID)
	}
	return a.AssignMenus(ctx, profileID, menuIDs)
}

// ProfileMenus lists the nodes granted to a profile.
func (a *Admin) ProfileMenus(ctx context.Context, profileID string) ([]*MenuNode, error) {
	if _, err := a.store.FindProfile(ctx, profileID); err != nil {
		return nil, err
	}
	return a.store.GrantedMenus(ctx, profileID)
}

func childrenOf(all []*MenuNode, key string) []*MenuNode {
	var out []*MenuNode
	for _, n := range all {
		if n.ParentKey == key && n.Key != key {
			out = append(out, n)
		}
	}
	return out
}

func activeChildrenOf(all []*MenuNode, key string) []*MenuNode {
	var out []*MenuNode
	for _, n := range childrenOf(all, key) {
		if n.Active {
			out = append(out, n)
		}
	}
	return out
}

func loops(parents map[string]string, start string) bool {
	seen := map[string]bool{start: true}
	for cur := parents[start]; cur != ""; cur = parents[cur] {
		if seen[cur] {
			return true
		}
		seen[cur] = true
	}
	return false
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
