package handler

import (
	"net/http"

	"github.com/squadmarket/platform/internal/auth"
	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/user"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	users *user.Service
	jwt   *auth.JWTManager
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *user.Service, jwt *auth.JWTManager) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	u, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondError(w, err)
		return
	}

	token, err := h.jwt.GenerateToken(u)
	if err != nil {
		RespondError(w, domain.ErrInternal("issue token", err))
		return
	}

	RespondJSON(w, http.StatusCreated, authResponse{User: u.Redacted(), Token: token})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondError(w, err)
		return
	}

	token, err := h.jwt.GenerateToken(u)
	if err != nil {
		RespondError(w, domain.ErrInternal("issue token", err))
		return
	}

	RespondJSON(w, http.StatusOK, authResponse{User: u.Redacted(), Token: token})
}
