package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/service"
)

// UserHandler serves the identity directory.
type UserHandler struct {
	users  *service.UserService
	roles  *service.RoleService
	logger zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, roles *service.RoleService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		roles:  roles,
		logger: logger.With().Str("handler", "user").Logger(),
	}
}

// =============================================================================
// Request Bodies
// =============================================================================

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	Login     string `json:"login"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// UpdateUserRequest is the body of PUT /v1/users/{id}. Counters are not writable.
type UpdateUserRequest struct {
	Login     string `json:"login"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// ChangePasswordRequest is the body of POST /v1/users/{id}/password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// SetDisabledRequest is the body of POST /v1/users/{id}/disabled.
type SetDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// RegisterRoutes registers user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.handleCreate)
	r.Get("/users", h.handleGetByLogin)
	r.Get("/users/{id}", h.handleGet)
	r.Put("/users/{id}", h.handleUpdate)
	r.Delete("/users/{id}", h.handleDelete)

	r.Post("/users/{id}/password", h.handleChangePassword)
	r.Post("/users/{id}/disabled", h.handleSetDisabled)

	r.Get("/users/{id}/roles", h.handleListRoles)
	r.Put("/users/{id}/roles/{roleID}", h.handleAssign)
	r.Delete("/users/{id}/roles/{roleID}", h.handleRevoke)
}

// =============================================================================
// Handlers
// =============================================================================

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}

	user, err := h.users.Create(r.Context(), service.CreateUserInput{
		Login:     req.Login,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) handleGetByLogin(w http.ResponseWriter, r *http.Request) {
	login := r.URL.Query().Get("login")
	if login == "" {
		writeError(w, r, badRequest("login query parameter is required"))
		return
	}

	user, err := h.users.GetByLogin(r.Context(), login)
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	user.Login = req.Login
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.Email = req.Email

	if err := h.users.UpdateProfile(r.Context(), user); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}

	if err := h.users.ChangePassword(r.Context(), id, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleSetDisabled(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	var req SetDisabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}

	if err := h.users.SetDisabled(r.Context(), id, req.Disabled); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	if _, err := h.users.GetByID(r.Context(), id); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	roles, err := h.roles.ListByUser(r.Context(), id)
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusOK, roles)
}

func (h *UserHandler) handleAssign(w http.ResponseWriter, r *http.Request) {
	userID, roleID, apiErr := membershipParams(r)
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	if err := h.roles.Assign(r.Context(), userID, roleID); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	userID, roleID, apiErr := membershipParams(r)
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	if err := h.roles.Revoke(r.Context(), userID, roleID); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func membershipParams(r *http.Request) (int64, int64, *APIError) {
	userID, apiErr := idParam(r, "id")
	if apiErr != nil {
		return 0, 0, apiErr
	}
	roleID, apiErr := idParam(r, "roleID")
	if apiErr != nil {
		return 0, 0, apiErr
	}
	return userID, roleID, nil
}
