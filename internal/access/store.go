package access

import (
	"context"
	"time"
)

// ProfileStore manages access profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *Profile) error
	UpdateProfile(ctx context.Context, p *Profile) error
	FindProfile(ctx context.Context, id string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]*Profile, error)
}

// AssignmentStore manages holder to profile links.
type AssignmentStore interface {
	// UpsertAssignment creates or reactivates the link.
	UpsertAssignment(ctx context.Context, holderID, profileID string, at time.Time) error
	DeactivateAssignment(ctx context.Context, holderID, profileID string, at time.Time) error
	// ActiveProfileIDs returns ids of active profiles actively assigned to
	// the holder, sorted.
	ActiveProfileIDs(ctx context.Context, holderID string) ([]string, error)
}

// MenuStore manages navigation nodes.
type MenuStore interface {
	CreateMenu(ctx context.Context, m *MenuNode) error
	UpdateMenu(ctx context.Context, m *MenuNode) error
	FindMenu(ctx context.Context, id string) (*MenuNode, error)
	FindMenuByKey(ctx context.Context, key string) (*MenuNode, error)
	// ListMenus returns every node ordered by (order, key).
	ListMenus(ctx context.Context) ([]*MenuNode, error)
	// MenusByKeys returns the active nodes among keys.
	MenusByKeys(ctx context.Context, keys []string) ([]*MenuNode, error)
}

// GrantStore manages profile to menu grants.
type GrantStore interface {
	// ReplaceGrants activates grants for menuIDs and deactivates every other
	// active grant of the profile.
	ReplaceGrants(ctx context.Context, profileID string, menuIDs []string, at time.Time) error
	// GrantedMenuKeys returns keys of active menus actively granted to any
	// of the profiles.
	GrantedMenuKeys(ctx context.Context, profileIDs []string) ([]string, error)
	// GrantedMenus returns the nodes actively granted to the profile.
	GrantedMenus(ctx context.Context, profileID string) ([]*MenuNode, error)
}

// Store is the full persistence surface of the access subsystem.
type Store interface {
	ProfileStore
	AssignmentStore
	MenuStore
	GrantStore
}
