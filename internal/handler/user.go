package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/user"
)

// UserHandler handles account endpoints.
type UserHandler struct {
	users *user.Service
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *user.Service) *UserHandler {
	return &UserHandler{users: users}
}

// List handles GET /users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	users, err := h.users.Fetch(r.Context(), ident, parsePage(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, users)
}

// Get handles GET /users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	u, err := h.users.FetchByID(r.Context(), ident, chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, u)
}

type updateUserRequest struct {
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Roles    []domain.Role `json:"roles"`
}

// Update handles PATCH /users/{id}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req updateUserRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.users.UpdateByID(r.Context(), ident, id, user.UpdateRequest{
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
	}); err != nil {
		RespondError(w, err)
		return
	}

	u, err := h.users.FetchByID(r.Context(), ident, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, u)
}

// Delete handles DELETE /users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.users.DeleteByID(r.Context(), ident, chi.URLParam(r, "id")); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
