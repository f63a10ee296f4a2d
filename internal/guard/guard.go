// Package guard enforces per-operation authorization before business logic
// runs. Denials are reported as auth.ErrNotFound so callers cannot tell a
// forbidden resource from a missing one.
package guard

import (
	"context"
	"fmt"
	"log/slog"

	"pickly.app/internal/access"
	"pickly.app/internal/auth"
	"pickly.app/internal/obs"
)

// Source resolves the authorization surface of a principal.
type Source interface {
	PermissionsFor(ctx context.Context, principalID string) (access.PermissionSet, error)
	VisibleMenuKeysFor(ctx context.Context, principalID string) (access.KeySet, error)
}

// Requirement is the declarative metadata attached to an operation.
type Requirement struct {
	Permissions []access.PermissionCode
	MenuKey     string
}

// Require builds a Requirement from permission codes.
func Require(codes ...access.PermissionCode) Requirement {
	return Requirement{Permissions: codes}
}

// WithMenu returns a copy of r that also requires menu visibility of key.
func (r Requirement) WithMenu(key string) Requirement {
	r.MenuKey = key
	return r
}

// Empty reports whether r imposes no checks.
func (r Requirement) Empty() bool {
	return len(r.Permissions) == 0 && r.MenuKey == ""
}

// Chain runs the permission check and then the menu-visibility check.
type Chain struct {
	source Source
	log    *slog.Logger
}

// NewChain builds a Chain over source.
func NewChain(source Source, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = obs.Logger()
	}
	return &Chain{source: source, log: logger.With("component", "guard")}
}

// Check returns nil when ctx's identity satisfies req. A denial by either
// check returns auth.ErrNotFound; resolver failures are returned as is.
func (c *Chain) Check(ctx context.Context, req Requirement) error {
	if err := c.checkPermissions(ctx, req.Permissions); err != nil {
		return err
	}
	return c.checkMenu(ctx, req.MenuKey)
}

func (c *Chain) checkPermissions(ctx context.Context, required []access.PermissionCode) error {
	if len(required) == 0 {
		return nil
	}
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return c.deny(ctx, "permission", "no identity")
	}
	have, err := c.source.PermissionsFor(ctx, id.PrincipalID)
	if err != nil {
		return fmt.Errorf("resolve permissions: %w", err)
	}
	if missing := have.Missing(required); len(missing) > 0 {
		return c.deny(ctx, "permission", "missing permissions", "principal_id", id.PrincipalID, "missing", missing)
	}
	return nil
}

func (c *Chain) checkMenu(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return c.deny(ctx, "menu", "no identity")
	}
	keys, err := c.source.VisibleMenuKeysFor(ctx, id.PrincipalID)
	if err != nil {
		return fmt.Errorf("resolve menu keys: %w", err)
	}
	if !keys.Has(key) {
		return c.deny(ctx, "menu", "menu not visible", "principal_id", id.PrincipalID, "menu_key", key)
	}
	return nil
}

func (c *Chain) deny(ctx context.Context, check, reason string, args ...any) error {
	obs.GuardDenied(check)
	c.log.DebugContext(ctx, "access denied", append([]any{"check", check, "reason", reason}, args...)...)
	return auth.ErrNotFound
}
