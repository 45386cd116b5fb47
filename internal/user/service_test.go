package user

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/outbox"
	"github.com/squadmarket/platform/internal/player"
	"github.com/squadmarket/platform/internal/roster"
	"github.com/squadmarket/platform/internal/scope"
	"github.com/squadmarket/platform/internal/store"
	"github.com/squadmarket/platform/internal/team"
)

var admin = scope.Identity{UserID: "root", Roles: []domain.Role{domain.RoleAdmin}}

func newTestService(t *testing.T) (*store.Memory, *Service) {
	t.Helper()
	m := store.NewMemory()
	m.AddUniqueIndex(store.EntityUsers, "email", nil)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	gen := player.NewGenerator(func(n int) int { return 0 }, clock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := roster.NewLedger(m)
	events := outbox.NewAppender(m, clock)

	players := player.NewService(m, ledger, gen, clock, 1_000_000, logger)
	teams := team.NewService(m, ledger, players, events, team.Config{
		MaxTeamsPerUser: 5,
		StartingBudget:  5_000_000,
		Composition: map[domain.PlayerType]int{
			domain.Goalkeeper: 3,
			domain.Defender:   6,
			domain.Midfielder: 6,
			domain.Attacker:   5,
		},
	}, logger)
	return m, NewService(m, teams, gen, events, logger)
}

func identityOf(u *domain.User) scope.Identity {
	return scope.Identity{UserID: u.ID, Roles: u.Roles}
}

func TestRegisterDraftsStarterTeam(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)

	u, err := svc.Register(ctx, "alice@test.com", "password123")
	require.NoError(t, err)
	assert.Empty(t, u.PasswordHash)
	assert.Equal(t, []domain.Role{domain.RoleRegular}, u.Roles)
	require.Len(t, u.TeamIDs, 1)

	doc, err := m.Get(ctx, store.EntityTeams, store.Filter{"id": u.TeamIDs[0]})
	require.NoError(t, err)
	require.NotNil(t, doc)
	var starter domain.Team
	require.NoError(t, store.Decode(doc, &starter))
	assert.Equal(t, u.ID, starter.OwnerID)
	assert.Equal(t, int64(5_000_000), starter.Budget)
	assert.Len(t, starter.PlayerIDs, 20)
	assert.Equal(t, int64(20_000_000), starter.Value)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t)

	_, err := svc.Register(ctx, "not-an-email", "password123")
	assertCode(t, err, "INVALID_INPUT")

	_, err = svc.Register(ctx, "alice@test.com", "short")
	assertCode(t, err, "INVALID_INPUT")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t)

	_, err := svc.Register(ctx, "alice@test.com", "password123")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice@test.com", "password456")
	assertCode(t, err, "EMAIL_TAKEN")
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t)
	registered, err := svc.Register(ctx, "alice@test.com", "password123")
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "alice@test.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	_, err = svc.Authenticate(ctx, "alice@test.com", "wrong-password")
	assertCode(t, err, "INCORRECT_PASSWORD")

	_, err = svc.Authenticate(ctx, "nobody@test.com", "password123")
	assertCode(t, err, "USER_NOT_FOUND")
}

func TestFetchScoping(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t)
	alice, err := svc.Register(ctx, "alice@test.com", "password123")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "bob@test.com", "password123")
	require.NoError(t, err)

	visible, err := svc.Fetch(ctx, identityOf(alice), store.Page{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, alice.ID, visible[0].ID)
	assert.Empty(t, visible[0].PasswordHash)

	all, err := svc.Fetch(ctx, admin, store.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// A regular caller resolving another account gets not-found.
	bob, err := svc.Authenticate(ctx, "bob@test.com", "password123")
	require.NoError(t, err)
	_, err = svc.FetchByID(ctx, identityOf(alice), bob.ID)
	assertCode(t, err, "USER_NOT_FOUND")
}

func TestUpdateRoleEscalationRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t)
	alice, err := svc.Register(ctx, "alice@test.com", "password123")
	require.NoError(t, err)

	err = svc.UpdateByID(ctx, identityOf(alice), alice.ID, UpdateRequest{
		Roles: []domain.Role{domain.RoleAdmin},
	})
	assertCode(t, err, "INADEQUATE_PERMISSIONS")

	require.NoError(t, svc.UpdateByID(ctx, admin, alice.ID, UpdateRequest{
		Roles: []domain.Role{domain.RoleRegular, domain.RoleAdmin},
	}))
	updated, err := svc.FetchByID(ctx, admin, alice.ID)
	require.NoError(t, err)
	assert.True(t, updated.HasRole(domain.RoleAdmin))
}

func TestUpdatePasswordRehashes(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t)
	alice, err := svc.Register(ctx, "alice@test.com", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateByID(ctx, identityOf(alice), alice.ID, UpdateRequest{Password: "new-password"}))

	_, err = svc.Authenticate(ctx, "alice@test.com", "new-password")
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "alice@test.com", "password123")
	assertCode(t, err, "INCORRECT_PASSWORD")
}

func TestUpdateNothingToUpdate(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t)
	alice, err := svc.Register(ctx, "alice@test.com", "password123")
	require.NoError(t, err)

	err = svc.UpdateByID(ctx, identityOf(alice), alice.ID, UpdateRequest{})
	assertCode(t, err, "NOTHING_TO_UPDATE")
}

func TestDeleteTearsDownOwnedTeams(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	alice, err := svc.Register(ctx, "alice@test.com", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByID(ctx, identityOf(alice), alice.ID))

	doc, _ := m.Get(ctx, store.EntityUsers, store.Filter{"id": alice.ID})
	assert.Nil(t, doc)
	teams, _ := m.Find(ctx, store.EntityTeams, nil, store.Page{})
	assert.Empty(t, teams)

	// The drafted players survive as free agents.
	free, err := m.Find(ctx, store.EntityPlayers, store.Filter{"team": store.Missing{}}, store.Page{})
	require.NoError(t, err)
	assert.Len(t, free, 20)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}
