// Package roster is the ledger that keeps a team's membership set and its
// derived value consistent. Every mutation is one conditional update, so
// the membership check and the value delta land atomically on the same
// document: adding a player who is already rostered changes nothing, and
// the valuation is never counted twice.
package roster

import (
	"context"
	"fmt"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/store"
)

// Ledger provides the roster write primitives every lifecycle and
// settlement flow delegates to.
type Ledger struct {
	store store.Store
}

// NewLedger creates a roster ledger over the given store.
func NewLedger(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// AddPlayerToTeam contracts the player: one conditional update that adds
// the membership edge and credits the team value. Safe to call twice.
// Returns TeamNotFound when no team document matched (concurrent delete).
func (l *Ledger) AddPlayerToTeam(ctx context.Context, teamID string, player *domain.Player) error {
	matched, err := l.store.ConditionalUpdate(ctx, store.EntityTeams,
		store.Filter{"id": teamID},
		store.Mutation{
			AddToSet: map[string]string{"players": player.ID},
			Inc:      map[string]int64{"value": player.Value},
		})
	if err != nil {
		return domain.ErrInternal("add player to team", err)
	}
	if matched == 0 {
		return domain.ErrTeamNotFound(teamID)
	}
	return nil
}

// RemovePlayerFromTeam releases the player: symmetric membership removal
// and value debit, skipped entirely when the player is not rostered.
func (l *Ledger) RemovePlayerFromTeam(ctx context.Context, teamID string, player *domain.Player) error {
	matched, err := l.store.ConditionalUpdate(ctx, store.EntityTeams,
		store.Filter{"id": teamID},
		store.Mutation{
			Pull: map[string]string{"players": player.ID},
			Inc:  map[string]int64{"value": -player.Value},
		})
	if err != nil {
		return domain.ErrInternal("remove player from team", err)
	}
	if matched == 0 {
		return domain.ErrTeamNotFound(teamID)
	}
	return nil
}

// IncrementBudget moves money in or out of a team's budget. With
// requireSolvent the debit is conditional: the update only matches a
// team whose budget covers the debit, and the caller learns solvency from
// the matched count rather than from a stale read.
func (l *Ledger) IncrementBudget(ctx context.Context, teamID string, delta int64, requireSolvent bool) (bool, error) {
	filter := store.Filter{"id": teamID}
	if requireSolvent && delta < 0 {
		filter["budget"] = store.Cmp{Op: "gte", Value: -delta}
	}

	matched, err := l.store.ConditionalUpdate(ctx, store.EntityTeams, filter,
		store.Mutation{Inc: map[string]int64{"budget": delta}})
	if err != nil {
		return false, domain.ErrInternal("increment team budget", err)
	}
	return matched > 0, nil
}

// VerifyTeamValue re-derives a team's value from its rostered players and
// reports a mismatch. Used by tests and reconciliation.
func (l *Ledger) VerifyTeamValue(ctx context.Context, teamID string) error {
	doc, err := l.store.Get(ctx, store.EntityTeams, store.Filter{"id": teamID})
	if err != nil {
		return domain.ErrInternal("fetch team", err)
	}
	if doc == nil {
		return domain.ErrTeamNotFound(teamID)
	}
	var team domain.Team
	if err := store.Decode(doc, &team); err != nil {
		return domain.ErrInternal("decode team", err)
	}

	var sum int64
	for _, pid := range team.PlayerIDs {
		pdoc, err := l.store.Get(ctx, store.EntityPlayers, store.Filter{"id": pid})
		if err != nil {
			return domain.ErrInternal("fetch player", err)
		}
		if pdoc == nil {
			return fmt.Errorf("team %s roster references missing player %s", teamID, pid)
		}
		var p domain.Player
		if err := store.Decode(pdoc, &p); err != nil {
			return domain.ErrInternal("decode player", err)
		}
		sum += p.Value
	}

	if sum != team.Value {
		return fmt.Errorf("team %s value %d does not match roster sum %d", teamID, team.Value, sum)
	}
	return nil
}
