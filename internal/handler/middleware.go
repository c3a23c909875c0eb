package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/service"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey int

const (
	requestIDKey contextKey = iota
	principalKey
)

// RequestIDFromContext returns the request ID stored by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// PrincipalFromContext returns the administrator authenticated by RequireRole.
func PrincipalFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(principalKey).(*domain.User)
	return user, ok
}

// RequestID keeps the caller's request ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// AccessLog logs one line per request.
func AccessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", RequestIDFromContext(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// RequireRole authenticates the caller with HTTP Basic credentials and
// requires membership of the role named roleName.
func RequireRole(users *service.UserService, roles *service.RoleService, roleName string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			login, secret, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="security"`)
				writeError(w, r, NewAPIError(service.ErrBadCredentials))
				return
			}

			user, err := users.CheckCredentials(r.Context(), login, secret)
			if err != nil {
				if errors.Is(err, service.ErrBadCredentials) {
					w.Header().Set("WWW-Authenticate", `Basic realm="security"`)
				}
				writeError(w, r, NewAPIError(err))
				return
			}

			role, err := roles.GetByName(r.Context(), roleName)
			if err != nil && !errors.Is(err, service.ErrNotFound) {
				writeError(w, r, NewAPIError(err))
				return
			}
			if role == nil || !user.IsMemberOfRole(*role) {
				logger.Warn().Str("login", login).Str("role", roleName).Msg("administrative access denied")
				writeError(w, r, &APIError{
					Code:       CodeAccessDenied,
					Message:    "access denied",
					HTTPStatus: http.StatusForbidden,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, user)))
		})
	}
}
