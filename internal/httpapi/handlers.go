// Package httpapi exposes the identity and access services over HTTP (chi)
// and a gRPC health endpoint.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pickly.app/internal/access"
	"pickly.app/internal/auth"
	"pickly.app/internal/guard"
	"pickly.app/internal/obs"
)

const serviceName = "pickly-identity"

// ReadyProbe is a simple readiness check (database ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Accounts is the authentication surface the handlers drive.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.Result, error)
	Login(ctx context.Context, email, secret string) (auth.Result, error)
	Refresh(ctx context.Context, principalID, presented string) (auth.TokenPair, error)
	Logout(ctx context.Context, principalID, presented string) error
	CurrentPrincipal(ctx context.Context, principalID string) (auth.PrincipalView, error)
	VerifyAccess(raw string) (auth.Identity, error)
	VerifyRefresh(raw string) (auth.Identity, error)
}

// Menus resolves what a principal can see.
type Menus interface {
	MenuTreeFor(ctx context.Context, principalID string) ([]*access.TreeNode, error)
	ProfilesFor(ctx context.Context, principalID string) ([]string, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Accounts Accounts
	Menus    Menus
	Admin    *access.Admin
	Guard    *guard.Chain
	Ready    readinessChecker
	Logger   *slog.Logger
}

// Options tune the HTTP surface.
type Options struct {
	Version        string
	AllowedOrigins []string
	MaxBodyBytes   int64
	RateBurst      int
	RatePerSecond  int
	CookieSecure   bool
	CookieDomain   string
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

// API is the HTTP layer.
type API struct {
	accounts Accounts
	menus    Menus
	admin    *access.Admin
	guard    *guard.Chain
	ready    readinessChecker
	log      *slog.Logger

	version string
	opts    Options
	limiter *RateLimiter
	router  chi.Router
}

// New wires the router. Call Close to stop background work.
func New(deps Deps, opts Options) *API {
	if deps.Ready == nil {
		deps.Ready = ReadyProbe{}
	}
	if deps.Logger == nil {
		deps.Logger = obs.Logger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	a := &API{
		accounts: deps.Accounts,
		menus:    deps.Menus,
		admin:    deps.Admin,
		guard:    deps.Guard,
		ready:    deps.Ready,
		log:      deps.Logger.With("component", "http"),
		version:  opts.Version,
		opts:     opts,
		limiter:  NewRateLimiter(opts.RateBurst, opts.RatePerSecond),
	}
	a.router = a.buildRouter()
	return a
}

// Handler returns the http.Handler for the server.
func (a *API) Handler() http.Handler { return a.router }

// Close stops the rate limiter janitor.
func (a *API) Close() { a.limiter.Stop() }

func (a *API) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if a.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(obs.Instrument)
	r.Use(Logging(a.log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.opts.AllowedOrigins))
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.opts.MaxBodyBytes) })

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Group(func(r chi.Router) {
		r.Use(a.limiter.Middleware)
		r.Post("/v1/auth/register", a.handleRegister)
		r.Post("/v1/auth/login", a.handleLogin)
		r.Post("/login", a.handleLogin)
		r.Post("/v1/auth/refresh", a.handleRefresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Post("/v1/auth/logout", a.handleLogout)
		r.Get("/v1/auth/me", a.handleMe)

		r.Route("/v1/menu", func(r chi.Router) {
			r.Get("/", a.handleMenuTree)
			r.Get("/all", a.guarded(menuRead, a.handleListMenus))
			r.Post("/items", a.guarded(menuInsert, a.handleCreateMenu))
			r.Route("/items/{id}", func(r chi.Router) {
				r.Get("/", a.guarded(menuRead, a.handleGetMenu))
				r.Patch("/", a.guarded(menuEdit, a.handleUpdateMenu))
				r.Delete("/", a.guarded(menuDelete, a.handleDeactivateMenu))
			})
			r.Route("/access", func(r chi.Router) {
				r.Get("/", a.guarded(accessRead, a.handleListProfiles))
				r.Post("/", a.guarded(accessInsert, a.handleCreateProfile))
				r.Post("/assign-menus", a.guarded(accessEdit, a.handleAssignMenus))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", a.guarded(accessRead, a.handleGetProfile))
					r.Patch("/", a.guarded(accessEdit, a.handleUpdateProfile))
					r.Delete("/", a.guarded(accessDelete, a.handleDeactivateProfile))
					r.Get("/menus", a.guarded(accessRead, a.handleProfileMenus))
				})
			})
		})

		r.Post("/v1/access/assignments", a.guarded(assignmentAdmin, a.handleAssignProfile))
		r.Delete("/v1/access/assignments/{holder}/{profile}", a.guarded(assignmentAdmin, a.handleRevokeProfile))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		a.log.WarnContext(r.Context(), "readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// fail maps domain errors to status codes. Denials and missing resources
// share one response.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, access.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotRecognized):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, access.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrAlreadyExists), errors.Is(err, access.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		a.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

var errBodyRequired = errors.New("request body is required")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(r, dst)
	if errors.Is(err, errBodyRequired) {
		return nil
	}
	return err
}
