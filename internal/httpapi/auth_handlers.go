package httpapi

import (
	"net/http"
	"time"

	"pickly.app/internal/audit"
	"pickly.app/internal/auth"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	Principal auth.PrincipalView `json:"principal"`
	auth.TokenPair
}

type meResponse struct {
	auth.PrincipalView
	Profiles []string `json:"profiles"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.accounts.Register(r.Context(), auth.RegisterInput{
		Email:       req.Email,
		Secret:      req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), auth.Identity{PrincipalID: res.Principal.ID}),
		"auth.register", map[string]any{"email": res.Principal.Email})

	a.setTokenCookies(w, res.Tokens)
	writeJSON(w, http.StatusCreated, sessionResponse{Principal: res.Principal, TokenPair: res.Tokens})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"remote_ip": clientIP(r)})
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), auth.Identity{PrincipalID: res.Principal.ID}),
		"auth.login", nil)

	a.setTokenCookies(w, res.Tokens)
	writeJSON(w, http.StatusOK, sessionResponse{Principal: res.Principal, TokenPair: res.Tokens})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token := refreshToken(r, req.RefreshToken)
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}
	id, err := a.accounts.VerifyRefresh(token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	pair, err := a.accounts.Refresh(r.Context(), id.PrincipalID, token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), id), "auth.refresh", nil)

	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	principalID, _ := auth.PrincipalIDFromContext(r.Context())
	if err := a.accounts.Logout(r.Context(), principalID, refreshToken(r, req.RefreshToken)); err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)

	a.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principalID, _ := auth.PrincipalIDFromContext(r.Context())
	view, err := a.accounts.CurrentPrincipal(r.Context(), principalID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	profiles, err := a.menus.ProfilesFor(r.Context(), principalID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []string{}
	}
	writeJSON(w, http.StatusOK, meResponse{PrincipalView: view, Profiles: profiles})
}

// refreshToken prefers the body value over the cookie.
func refreshToken(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	if c, err := r.Cookie(refreshCookie); err == nil {
		return c.Value
	}
	return ""
}

func (a *API) setTokenCookies(w http.ResponseWriter, pair auth.TokenPair) {
	now := time.Now()
	http.SetCookie(w, a.cookie(accessCookie, pair.AccessToken, pair.AccessExpiresAt.Sub(now)))
	http.SetCookie(w, a.cookie(refreshCookie, pair.RefreshToken, pair.RefreshExpiresAt.Sub(now)))
}

func (a *API) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, a.cookie(accessCookie, "", -1))
	http.SetCookie(w, a.cookie(refreshCookie, "", -1))
}

// cookie builds a token cookie. A negative ttl expires it.
func (a *API) cookie(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	} else if maxAge < 1 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   a.opts.CookieDomain,
		MaxAge:   maxAge,
		Secure:   a.opts.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
