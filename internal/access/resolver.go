package access

import (
	"context"
	"fmt"
)

// HolderLookup maps a principal to the profile-bearer entity that holds its
// assignments. An empty holder means no assignments.
type HolderLookup interface {
	HolderOf(ctx context.Context, principalID string) (string, error)
}

// Snapshot is the effective authorization surface of one principal.
type Snapshot struct {
	Profiles    []string
	Permissions PermissionSet
	MenuKeys    KeySet
}

// Resolver derives profiles, permission codes and visible menu keys for a
// principal. Everything not granted is denied.
type Resolver struct {
	holders HolderLookup
	store   Store
	catalog Catalog
}

// NewResolver builds a Resolver. A nil catalog means DefaultCatalog.
func NewResolver(holders HolderLookup, store Store, catalog Catalog) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Resolver{holders: holders, store: store, catalog: catalog}
}

// ProfilesFor returns the active profile ids assigned to the principal.
func (r *Resolver) ProfilesFor(ctx context.Context, principalID string) ([]string, error) {
	holder, err := r.holders.HolderOf(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("resolve holder: %w", err)
	}
	if holder == "" {
		return nil, nil
	}
	return r.store.ActiveProfileIDs(ctx, holder)
}

// PermissionsFor returns the union of catalog codes over the principal's
// active profiles.
func (r *Resolver) PermissionsFor(ctx context.Context, principalID string) (PermissionSet, error) {
	profiles, err := r.ProfilesFor(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return r.permissions(profiles), nil
}

// VisibleMenuKeysFor returns keys of active menus granted to any active
// profile of the principal.
func (r *Resolver) VisibleMenuKeysFor(ctx context.Context, principalID string) (KeySet, error) {
	profiles, err := r.ProfilesFor(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return r.menuKeys(ctx, profiles)
}

// Snapshot resolves profiles once and derives both sets from them.
func (r *Resolver) Snapshot(ctx context.Context, principalID string) (Snapshot, error) {
	profiles, err := r.ProfilesFor(ctx, principalID)
	if err != nil {
		return Snapshot{}, err
	}
	keys, err := r.menuKeys(ctx, profiles)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Profiles:    profiles,
		Permissions: r.permissions(profiles),
		MenuKeys:    keys,
	}, nil
}

// MenuTreeFor builds the navigation forest visible to the principal.
func (r *Resolver) MenuTreeFor(ctx context.Context, principalID string) ([]*TreeNode, error) {
	keys, err := r.VisibleMenuKeysFor(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return r.treeFor(ctx, keys)
}

func (r *Resolver) treeFor(ctx context.Context, keys KeySet) ([]*TreeNode, error) {
	if len(keys) == 0 {
		return []*TreeNode{}, nil
	}
	nodes, err := r.store.MenusByKeys(ctx, keys.Sorted())
	if err != nil {
		return nil, err
	}
	return BuildTree(nodes), nil
}

func (r *Resolver) permissions(profiles []string) PermissionSet {
	set := NewPermissionSet()
	for _, id := range profiles {
		for _, code := range r.catalog[id] {
			set[code] = struct{}{}
		}
	}
	return set
}

func (r *Resolver) menuKeys(ctx context.Context, profiles []string) (KeySet, error) {
	set := make(KeySet)
	if len(profiles) == 0 {
		return set, nil
	}
	keys, err := r.store.GrantedMenuKeys(ctx, profiles)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}
