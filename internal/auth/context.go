package auth

import "context"

// Identity is what a verified bearer token yields.
type Identity struct {
	PrincipalID string
	Email       string
	TokenType   TokenType
}

type identityContextKey struct{}

// ContextWithIdentity attaches the verified identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity attached by ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.PrincipalID == "" {
		return Identity{}, false
	}
	return id, true
}

// PrincipalIDFromContext is a shorthand used by logging and audit.
func PrincipalIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.PrincipalID, ok
}
