// Package handler provides the HTTP API of the security component.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/service"
)

// HealthChecker reports whether the account store answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Users  *service.UserService
	Roles  *service.RoleService
	Health HealthChecker

	// Metrics is mounted at MetricsPath when not nil.
	Metrics     http.Handler
	MetricsPath string

	// AdminRole, when set, guards the user and role endpoints with RequireRole.
	AdminRole string

	Logger zerolog.Logger
}

// Router serves the HTTP API.
type Router struct {
	users  *UserHandler
	roles  *RoleHandler
	auth   *AuthHandler
	cfg    RouterConfig
	logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger.With().Str("component", "router").Logger()
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Router{
		users:  NewUserHandler(cfg.Users, cfg.Roles, cfg.Logger),
		roles:  NewRoleHandler(cfg.Roles, cfg.Users, cfg.Logger),
		auth:   NewAuthHandler(cfg.Users, cfg.Logger),
		cfg:    cfg,
		logger: logger,
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(rt.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", rt.handleHealth)
	if rt.cfg.Metrics != nil {
		r.Method(http.MethodGet, rt.cfg.MetricsPath, rt.cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		rt.auth.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			if rt.cfg.AdminRole != "" {
				r.Use(RequireRole(rt.cfg.Users, rt.cfg.Roles, rt.cfg.AdminRole, rt.logger))
			}
			rt.users.RegisterRoutes(r)
			rt.roles.RegisterRoutes(r)
		})
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.Health != nil {
		if err := rt.cfg.Health.Health(r.Context()); err != nil {
			rt.logger.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// =============================================================================
// Request Helpers
// =============================================================================

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// idParam parses the int64 URL parameter name.
func idParam(r *http.Request, name string) (int64, *APIError) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid " + name)
	}
	return id, nil
}
