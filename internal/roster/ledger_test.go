package roster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/store"
)

func setup(t *testing.T) (*store.Memory, *Ledger) {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.Insert(context.Background(), store.EntityTeams, store.Document{
		"id": "t1", "budget": 1000.0, "value": 0.0, "players": []any{},
	}))
	return m, NewLedger(m)
}

func getTeam(t *testing.T, m *store.Memory) *domain.Team {
	t.Helper()
	doc, err := m.Get(context.Background(), store.EntityTeams, store.Filter{"id": "t1"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	var team domain.Team
	require.NoError(t, store.Decode(doc, &team))
	return &team
}

func TestAddPlayerCreditsValueOnce(t *testing.T) {
	ctx := context.Background()
	m, l := setup(t)
	p := &domain.Player{ID: "p1", Value: 500}

	require.NoError(t, l.AddPlayerToTeam(ctx, "t1", p))
	team := getTeam(t, m)
	assert.Equal(t, int64(500), team.Value)
	assert.Equal(t, []string{"p1"}, team.PlayerIDs)

	// Re-adding is a no-op, not a double credit.
	require.NoError(t, l.AddPlayerToTeam(ctx, "t1", p))
	team = getTeam(t, m)
	assert.Equal(t, int64(500), team.Value)
	assert.Len(t, team.PlayerIDs, 1)
}

func TestAddPlayerUnknownTeam(t *testing.T) {
	_, l := setup(t)
	err := l.AddPlayerToTeam(context.Background(), "missing", &domain.Player{ID: "p1", Value: 500})
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "TEAM_NOT_FOUND", appErr.Code)
}

func TestRemovePlayerDebitsValueOnce(t *testing.T) {
	ctx := context.Background()
	m, l := setup(t)
	p := &domain.Player{ID: "p1", Value: 500}
	require.NoError(t, l.AddPlayerToTeam(ctx, "t1", p))

	require.NoError(t, l.RemovePlayerFromTeam(ctx, "t1", p))
	team := getTeam(t, m)
	assert.Zero(t, team.Value)
	assert.Empty(t, team.PlayerIDs)

	// Removing an absent player changes nothing.
	require.NoError(t, l.RemovePlayerFromTeam(ctx, "t1", p))
	team = getTeam(t, m)
	assert.Zero(t, team.Value)
}

func TestIncrementBudgetCredit(t *testing.T) {
	ctx := context.Background()
	m, l := setup(t)

	ok, err := l.IncrementBudget(ctx, "t1", 250, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1250), getTeam(t, m).Budget)
}

func TestIncrementBudgetSolventDebit(t *testing.T) {
	ctx := context.Background()
	m, l := setup(t)

	ok, err := l.IncrementBudget(ctx, "t1", -1000, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, getTeam(t, m).Budget)
}

func TestIncrementBudgetInsolventDebitRefused(t *testing.T) {
	ctx := context.Background()
	m, l := setup(t)

	ok, err := l.IncrementBudget(ctx, "t1", -1001, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1000), getTeam(t, m).Budget)
}

func TestVerifyTeamValue(t *testing.T) {
	ctx := context.Background()
	m, l := setup(t)

	require.NoError(t, m.Insert(ctx, store.EntityPlayers, store.Document{"id": "p1", "value": 500.0}))
	require.NoError(t, l.AddPlayerToTeam(ctx, "t1", &domain.Player{ID: "p1", Value: 500}))
	assert.NoError(t, l.VerifyTeamValue(ctx, "t1"))

	// Drift the stored value and expect a mismatch report.
	_, err := m.ConditionalUpdate(ctx, store.EntityTeams, store.Filter{"id": "t1"},
		store.Mutation{Inc: map[string]int64{"value": 1}})
	require.NoError(t, err)
	assert.Error(t, l.VerifyTeamValue(ctx, "t1"))
}
