package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/scope"
)

type contextKey string

const identityKey contextKey = "auth_identity"

// IdentityFromContext extracts the caller identity from request context.
func IdentityFromContext(ctx context.Context) (scope.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(scope.Identity)
	return ident, ok
}

// Authenticate returns middleware that validates bearer tokens and places
// the caller identity on the request context.
func Authenticate(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr)
			if err != nil {
				http.Error(w, `{"code":"INVALID_ACCESS_TOKEN","message":"missing or invalid credential"}`, http.StatusUnauthorized)
				return
			}

			roles := make([]domain.Role, len(claims.Roles))
			for i, role := range claims.Roles {
				roles[i] = domain.Role(role)
			}
			ident := scope.Identity{UserID: claims.Subject, Roles: roles}

			ctx := context.WithValue(r.Context(), identityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns middleware that rejects non-admin callers.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, `{"code":"INVALID_ACCESS_TOKEN","message":"no auth context"}`, http.StatusUnauthorized)
				return
			}
			if !ident.IsAdmin() {
				http.Error(w, `{"code":"INADEQUATE_PERMISSIONS","message":"admin role required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateToken(parts[1])
}
