package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"pickly.app/internal/auth"
	"pickly.app/internal/guard"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

var errMissingToken = errors.New("missing bearer token")

// requireAuth verifies the access token from the Authorization header, or
// the access_token cookie when no header is sent.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := accessToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated")
			return
		}
		id, err := a.accounts.VerifyAccess(token)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

// guarded runs the guard chain before h.
func (a *API) guarded(req guard.Requirement, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.guard.Check(r.Context(), req); err != nil {
			a.fail(w, r, err)
			return
		}
		h(w, r)
	}
}

func accessToken(r *http.Request) (string, error) {
	if h := r.Header.Get(authHeader); strings.TrimSpace(h) != "" {
		return extractBearerToken(h)
	}
	if c, err := r.Cookie(accessCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errMissingToken
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}
