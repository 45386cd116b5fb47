package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/store"
)

var (
	regular = Identity{UserID: "u1", Roles: []domain.Role{domain.RoleRegular}}
	admin   = Identity{UserID: "a1", Roles: []domain.Role{domain.RoleAdmin}}
)

func TestIsAdmin(t *testing.T) {
	assert.False(t, regular.IsAdmin())
	assert.True(t, admin.IsAdmin())
}

func TestAdminIsUnscoped(t *testing.T) {
	assert.Nil(t, Teams(admin))
	assert.Nil(t, Players(admin))
	assert.Nil(t, Transfers(admin))
	assert.Nil(t, Users(admin))
}

func TestRegularScopes(t *testing.T) {
	assert.Equal(t, store.Filter{"ownerId": "u1"}, Teams(regular))
	assert.Equal(t, store.Filter{"team.ownerId": "u1"}, Players(regular))
	assert.Equal(t, store.Filter{"initiatorTeam.ownerId": "u1"}, Transfers(regular))
	assert.Equal(t, store.Filter{"id": "u1"}, Users(regular))
}

func TestMergeScopeKeysWin(t *testing.T) {
	base := store.Filter{"country": "Spain", "ownerId": "someone-else"}
	merged := Merge(base, Teams(regular))
	assert.Equal(t, "Spain", merged["country"])
	// A caller cannot widen visibility by supplying its own owner filter.
	assert.Equal(t, "u1", merged["ownerId"])
}

func TestMergeEmptyScopePassesBaseThrough(t *testing.T) {
	base := store.Filter{"country": "Spain"}
	assert.Equal(t, base, Merge(base, Teams(admin)))
}
