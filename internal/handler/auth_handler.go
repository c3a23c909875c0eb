package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/service"
)

// AuthHandler serves credential verification.
type AuthHandler struct {
	users  *service.UserService
	logger zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *service.UserService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		logger: logger.With().Str("handler", "auth").Logger(),
	}
}

// VerifyRequest is the body of POST /v1/auth/verify.
type VerifyRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// RegisterRoutes registers authentication routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/verify", h.handleVerify)
}

// handleVerify answers 200 with the user and its roles, 401 or 403.
// A malformed body is answered as bad credentials.
func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Debug().Err(err).Msg("malformed verification request")
		writeError(w, r, NewAPIError(service.ErrBadCredentials))
		return
	}

	user, err := h.users.CheckCredentials(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusOK, user)
}
