package transfer

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
	"github.com/squadmarket/platform/internal/roster"
	"github.com/squadmarket/platform/internal/scope"
	"github.com/squadmarket/platform/internal/store"
)

var (
	testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ownerA  = scope.Identity{UserID: "owner-a", Roles: []domain.Role{domain.RoleRegular}}
	ownerB  = scope.Identity{UserID: "owner-b", Roles: []domain.Role{domain.RoleRegular}}
	admin   = scope.Identity{UserID: "root", Roles: []domain.Role{domain.RoleAdmin}}
)

// newTestService pins the markup roll to the lower bound, so a sold player
// is repriced at value * 110 / 100.
func newTestService(t *testing.T) (*store.Memory, *Service) {
	t.Helper()
	m := store.NewMemory()
	m.AddUniqueIndex(store.EntityTransfers, "player.id", store.Filter{"status": string(domain.TransferOpen)})
	clock := clockwork.NewFakeClockAt(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := outbox.NewAppender(m, clock)

	svc := NewService(m, roster.NewLedger(m), clock,
		func(min, max int) int { return min },
		events, Config{MarkupMinPct: 10, MarkupMaxPct: 100}, logger)
	return m, svc
}

func seedMarket(t *testing.T, m *store.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, store.EntityTeams, store.Document{
		"id": "team-a", "name": "Sellers", "ownerId": "owner-a",
		"budget": 5_000_000.0, "value": 1_000_000.0, "players": []any{"p1"},
	}))
	require.NoError(t, m.Insert(ctx, store.EntityTeams, store.Document{
		"id": "team-b", "name": "Buyers", "ownerId": "owner-b",
		"budget": 3_000_000.0, "value": 0.0, "players": []any{},
	}))
	require.NoError(t, m.Insert(ctx, store.EntityPlayers, store.Document{
		"id": "p1", "type": "ATTACKER", "firstName": "Luca", "lastName": "Rossi",
		"value": 1_000_000.0, "team": map[string]any{"id": "team-a", "ownerId": "owner-a"},
	}))
}

func getDoc[T any](t *testing.T, m *store.Memory, entity, id string) *T {
	t.Helper()
	doc, err := m.Get(context.Background(), entity, store.Filter{"id": id})
	require.NoError(t, err)
	require.NotNil(t, doc)
	var v T
	require.NoError(t, store.Decode(doc, &v))
	return &v
}

func listPlayer(t *testing.T, svc *Service, price int64) *domain.Transfer {
	t.Helper()
	tr, err := svc.Create(context.Background(), ownerA, CreateRequest{PlayerID: "p1", BuyNowPrice: price})
	require.NoError(t, err)
	return tr
}

func TestCreateListing(t *testing.T) {
	m, svc := newTestService(t)
	seedMarket(t, m)

	tr := listPlayer(t, svc, 2_000_000)
	assert.Equal(t, domain.TransferOpen, tr.Status)
	assert.Equal(t, "p1", tr.Player.ID)
	assert.Equal(t, "team-a", tr.InitiatorTeam.ID)
	assert.Equal(t, testNow, tr.OpenedDate)
	assert.Nil(t, tr.CompletedDate)

	events, err := m.Find(context.Background(), store.EntityOutbox, store.Filter{"type": "transfer.opened"}, store.Page{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)

	_, err := svc.Create(ctx, ownerA, CreateRequest{PlayerID: "p1", BuyNowPrice: 0})
	assertCode(t, err, "INVALID_INPUT")

	_, err = svc.Create(ctx, ownerA, CreateRequest{PlayerID: "missing", BuyNowPrice: 100})
	assertCode(t, err, "PLAYER_NOT_FOUND")

	// Listing somebody else's player is a permissions failure.
	_, err = svc.Create(ctx, ownerB, CreateRequest{PlayerID: "p1", BuyNowPrice: 100})
	assertCode(t, err, "INADEQUATE_PERMISSIONS")

	// An uncapped player has no team to transfer from.
	require.NoError(t, m.Insert(ctx, store.EntityPlayers, store.Document{
		"id": "free", "type": "DEFENDER", "value": 1_000_000.0,
	}))
	_, err = svc.Create(ctx, admin, CreateRequest{PlayerID: "free", BuyNowPrice: 100})
	assertCode(t, err, "INVALID_INPUT")
}

func TestCreateRejectsSecondOpenListing(t *testing.T) {
	m, svc := newTestService(t)
	seedMarket(t, m)
	listPlayer(t, svc, 2_000_000)

	_, err := svc.Create(context.Background(), ownerA, CreateRequest{PlayerID: "p1", BuyNowPrice: 3_000_000})
	assertCode(t, err, "INVALID_TRANSFER_REQUEST")
}

func TestSettleMovesPlayerAndMoney(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	tr := listPlayer(t, svc, 2_000_000)

	done, err := svc.Settle(ctx, ownerB, tr.ID, "team-b")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferComplete, done.Status)
	require.NotNil(t, done.CompletedDate)
	require.NotNil(t, done.ToTeam)
	assert.Equal(t, "team-b", done.ToTeam.ID)

	p := getDoc[domain.Player](t, m, store.EntityPlayers, "p1")
	require.NotNil(t, p.Team)
	assert.Equal(t, "team-b", p.Team.ID)
	// Pinned markup roll: 1,000,000 * 110%.
	assert.Equal(t, int64(1_100_000), p.Value)

	seller := getDoc[domain.Team](t, m, store.EntityTeams, "team-a")
	buyer := getDoc[domain.Team](t, m, store.EntityTeams, "team-b")
	assert.Equal(t, int64(7_000_000), seller.Budget)
	assert.Zero(t, seller.Value)
	assert.Empty(t, seller.PlayerIDs)
	assert.Equal(t, int64(1_000_000), buyer.Budget)
	assert.Equal(t, int64(1_100_000), buyer.Value)
	assert.Equal(t, []string{"p1"}, buyer.PlayerIDs)

	stored := getDoc[domain.Transfer](t, m, store.EntityTransfers, tr.ID)
	assert.Equal(t, domain.TransferComplete, stored.Status)

	events, err := m.Find(ctx, store.EntityOutbox, store.Filter{"type": "transfer.completed"}, store.Page{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSettleInsufficientBudgetLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	tr := listPlayer(t, svc, 4_000_000)

	_, err := svc.Settle(ctx, ownerB, tr.ID, "team-b")
	assertCode(t, err, "INADEQUATE_BUDGET")

	p := getDoc[domain.Player](t, m, store.EntityPlayers, "p1")
	assert.Equal(t, "team-a", p.Team.ID)
	assert.Equal(t, int64(1_000_000), p.Value)

	seller := getDoc[domain.Team](t, m, store.EntityTeams, "team-a")
	buyer := getDoc[domain.Team](t, m, store.EntityTeams, "team-b")
	assert.Equal(t, int64(5_000_000), seller.Budget)
	assert.Equal(t, int64(3_000_000), buyer.Budget)

	stored := getDoc[domain.Transfer](t, m, store.EntityTransfers, tr.ID)
	assert.Equal(t, domain.TransferOpen, stored.Status)
}

func TestSettleTwiceFailsSecond(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	tr := listPlayer(t, svc, 2_000_000)

	_, err := svc.Settle(ctx, ownerB, tr.ID, "team-b")
	require.NoError(t, err)

	_, err = svc.Settle(ctx, ownerB, tr.ID, "team-b")
	assertCode(t, err, "TRANSFER_NOT_OPEN")

	// Money moved exactly once.
	buyer := getDoc[domain.Team](t, m, store.EntityTeams, "team-b")
	assert.Equal(t, int64(1_000_000), buyer.Budget)
}

func TestSettleRetryReusesLockedValuation(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	tr := listPlayer(t, svc, 2_000_000)

	// A first attempt crashed after crediting the buyer's roster and value
	// but before rewriting the player document: the roll is locked on the
	// listing, the membership edges have moved, the player doc is stale.
	locked := int64(1_100_000)
	_, err := m.ConditionalUpdate(ctx, store.EntityTransfers,
		store.Filter{"id": tr.ID},
		store.Mutation{Set: map[string]any{"resaleValue": locked}})
	require.NoError(t, err)
	_, err = m.ConditionalUpdate(ctx, store.EntityTeams,
		store.Filter{"id": "team-a"},
		store.Mutation{Pull: map[string]string{"players": "p1"}, Inc: map[string]int64{"value": -1_000_000}})
	require.NoError(t, err)
	_, err = m.ConditionalUpdate(ctx, store.EntityTeams,
		store.Filter{"id": "team-b"},
		store.Mutation{AddToSet: map[string]string{"players": "p1"}, Inc: map[string]int64{"value": locked}})
	require.NoError(t, err)

	// The retrying service rolls from the top of the markup range; the
	// settlement must reuse the locked valuation instead.
	clock := clockwork.NewFakeClockAt(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	retry := NewService(m, roster.NewLedger(m), clock,
		func(min, max int) int { return max },
		outbox.NewAppender(m, clock), Config{MarkupMinPct: 10, MarkupMaxPct: 100}, logger)

	done, err := retry.Settle(ctx, ownerB, tr.ID, "team-b")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferComplete, done.Status)

	p := getDoc[domain.Player](t, m, store.EntityPlayers, "p1")
	assert.Equal(t, locked, p.Value)

	buyer := getDoc[domain.Team](t, m, store.EntityTeams, "team-b")
	seller := getDoc[domain.Team](t, m, store.EntityTeams, "team-a")
	assert.Equal(t, locked, buyer.Value)
	assert.Equal(t, int64(1_000_000), buyer.Budget)
	assert.Equal(t, int64(7_000_000), seller.Budget)
	assert.Zero(t, seller.Value)

	ledger := roster.NewLedger(m)
	require.NoError(t, ledger.VerifyTeamValue(ctx, "team-a"))
	require.NoError(t, ledger.VerifyTeamValue(ctx, "team-b"))
}

func TestSettleGuards(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	tr := listPlayer(t, svc, 2_000_000)

	_, err := svc.Settle(ctx, ownerB, tr.ID, "missing")
	assertCode(t, err, "TEAM_NOT_FOUND")

	_, err = svc.Settle(ctx, ownerB, "missing", "team-b")
	assertCode(t, err, "TRANSFER_NOT_FOUND")

	// Buying into a team the caller does not own.
	_, err = svc.Settle(ctx, ownerA, tr.ID, "team-b")
	assertCode(t, err, "INADEQUATE_PERMISSIONS")

	// Buying from your own listing.
	_, err = svc.Settle(ctx, ownerA, tr.ID, "team-a")
	assertCode(t, err, "INVALID_TRANSFER_REQUEST")
}

func TestUpdatePriceOnOpenListing(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	tr := listPlayer(t, svc, 2_000_000)

	price := int64(3_000_000)
	require.NoError(t, svc.UpdateByID(ctx, ownerA, tr.ID, UpdateRequest{BuyNowPrice: &price}))

	stored := getDoc[domain.Transfer](t, m, store.EntityTransfers, tr.ID)
	assert.Equal(t, price, stored.BuyNowPrice)

	// Another owner cannot see, let alone edit, the listing's write path.
	err := svc.UpdateByID(ctx, ownerB, tr.ID, UpdateRequest{BuyNowPrice: &price})
	assertCode(t, err, "TRANSFER_NOT_FOUND")
}

func TestUpdateCompletedListingRejected(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	tr := listPlayer(t, svc, 2_000_000)
	_, err := svc.Settle(ctx, ownerB, tr.ID, "team-b")
	require.NoError(t, err)

	price := int64(9_000_000)
	err = svc.UpdateByID(ctx, ownerA, tr.ID, UpdateRequest{BuyNowPrice: &price})
	assertCode(t, err, "TRANSFER_NOT_OPEN")
}

func TestDeleteWithdrawsOpenListingOnly(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	tr := listPlayer(t, svc, 2_000_000)

	require.NoError(t, svc.DeleteByID(ctx, ownerA, tr.ID))
	doc, _ := m.Get(ctx, store.EntityTransfers, store.Filter{"id": tr.ID})
	assert.Nil(t, doc)

	// A completed listing stays on record.
	tr2 := listPlayer(t, svc, 2_000_000)
	_, err := svc.Settle(ctx, ownerB, tr2.ID, "team-b")
	require.NoError(t, err)
	err = svc.DeleteByID(ctx, ownerA, tr2.ID)
	assertCode(t, err, "TRANSFER_NOT_OPEN")
}

func TestFetchMarketIsGlobal(t *testing.T) {
	ctx := context.Background()
	m, svc := newTestService(t)
	seedMarket(t, m)
	listPlayer(t, svc, 2_000_000)

	all, err := svc.Fetch(ctx, Query{Status: domain.TransferOpen}, store.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	priced, err := svc.Fetch(ctx, Query{Price: []store.Cmp{{Op: "gt", Value: 2_500_000}}}, store.Page{})
	require.NoError(t, err)
	assert.Empty(t, priced)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}
