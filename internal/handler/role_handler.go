package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/service"
)

// RoleHandler serves the role directory.
type RoleHandler struct {
	roles  *service.RoleService
	users  *service.UserService
	logger zerolog.Logger
}

// NewRoleHandler creates a new RoleHandler.
func NewRoleHandler(roles *service.RoleService, users *service.UserService, logger zerolog.Logger) *RoleHandler {
	return &RoleHandler{
		roles:  roles,
		users:  users,
		logger: logger.With().Str("handler", "role").Logger(),
	}
}

// RoleRequest is the body of POST /v1/roles and PUT /v1/roles/{id}.
type RoleRequest struct {
	Name string `json:"name"`
}

// RegisterRoutes registers role routes.
func (h *RoleHandler) RegisterRoutes(r chi.Router) {
	r.Post("/roles", h.handleCreate)
	r.Get("/roles", h.handleList)
	r.Get("/roles/{id}", h.handleGet)
	r.Put("/roles/{id}", h.handleUpdate)
	r.Delete("/roles/{id}", h.handleDelete)
	r.Get("/roles/{id}/users", h.handleListUsers)
}

func (h *RoleHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}

	role, err := h.roles.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusCreated, role)
}

// handleList lists every role, or answers the single role named by ?name=.
func (h *RoleHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		role, err := h.roles.GetByName(r.Context(), name)
		if err != nil {
			writeError(w, r, NewAPIError(err))
			return
		}
		writeJSON(w, http.StatusOK, role)
		return
	}

	roles, err := h.roles.List(r.Context())
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}
	if roles == nil {
		roles = []*domain.Role{}
	}

	writeJSON(w, http.StatusOK, roles)
}

func (h *RoleHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	role, err := h.roles.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusOK, role)
}

func (h *RoleHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}

	role := &domain.Role{ID: id, Name: req.Name}
	if err := h.roles.Update(r.Context(), role); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	writeJSON(w, http.StatusOK, role)
}

func (h *RoleHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	if err := h.roles.Delete(r.Context(), id); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RoleHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	id, apiErr := idParam(r, "id")
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	if _, err := h.roles.GetByID(r.Context(), id); err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}

	users, err := h.users.ListByRole(r.Context(), id)
	if err != nil {
		writeError(w, r, NewAPIError(err))
		return
	}
	if users == nil {
		users = []*domain.User{}
	}

	writeJSON(w, http.StatusOK, users)
}
