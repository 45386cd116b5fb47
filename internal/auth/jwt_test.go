package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/scope"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 24*time.Hour)
}

func testUser() *domain.User {
	return &domain.User{
		ID:    "user-1",
		Email: "test@test.com",
		Roles: []domain.Role{domain.RoleRegular, domain.RoleAdmin},
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(testUser())
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "test@test.com", claims.Email)
	assert.Equal(t, []string{"REGULAR", "ADMIN"}, claims.Roles)
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", 24*time.Hour)
	mgr2 := NewJWTManager("secret-2", 24*time.Hour)

	token, err := mgr1.GenerateToken(testUser())
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", 1*time.Millisecond)

	token, err := mgr.GenerateToken(testUser())
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthenticateMiddlewarePopulatesIdentity(t *testing.T) {
	mgr := newTestJWTManager()
	token, err := mgr.GenerateToken(testUser())
	require.NoError(t, err)

	var got scope.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		got = ident
	})

	req := httptest.NewRequest("GET", "/teams", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Authenticate(mgr)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, got.IsAdmin())
}

func TestAuthenticateMiddlewareRejectsMissingToken(t *testing.T) {
	mgr := newTestJWTManager()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	req := httptest.NewRequest("GET", "/teams", nil)
	rec := httptest.NewRecorder()
	Authenticate(mgr)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	mgr := newTestJWTManager()
	regular := &domain.User{ID: "user-2", Roles: []domain.Role{domain.RoleRegular}}
	token, err := mgr.GenerateToken(regular)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	req := httptest.NewRequest("POST", "/players", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Authenticate(mgr)(RequireAdmin()(next)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
