// Package team implements the team lifecycle: creation with an explicit
// or auto-drafted roster, partial updates including roster replacement and
// owner re-parenting, and the ordered cascade delete that keeps concurrent
// readers from ever observing a dangling reference.
package team

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/outbox"
	"github.com/squadmarket/platform/internal/player"
	"github.com/squadmarket/platform/internal/roster"
	"github.com/squadmarket/platform/internal/scope"
	"github.com/squadmarket/platform/internal/store"
)

// Config holds the lifecycle tunables.
type Config struct {
	MaxTeamsPerUser int
	StartingBudget  int64
	Composition     map[domain.PlayerType]int
}

// Service implements team operations.
type Service struct {
	store   store.Store
	ledger  *roster.Ledger
	players *player.Service
	events  *outbox.Appender
	cfg     Config
	logger  *slog.Logger
}

// NewService creates a team service. events may be nil to disable event
// emission.
func NewService(st store.Store, ledger *roster.Ledger, players *player.Service, events *outbox.Appender, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		ledger:  ledger,
		players: players,
		events:  events,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateRequest holds the fields for a new team. An empty PlayerIDs list
// triggers the auto-draft.
type CreateRequest struct {
	Name      string
	Country   string
	OwnerID   string
	PlayerIDs []string
}

// Create registers a team under its owner and contracts its roster. The
// roster steps are idempotent per player, so a retry after partial
// completion converges instead of double-counting.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Team, error) {
	if req.Name == "" || req.Country == "" {
		return nil, domain.ErrInvalidInput("name and country are required")
	}

	owner, err := s.getUser(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if len(owner.TeamIDs) >= s.cfg.MaxTeamsPerUser {
		return nil, domain.ErrMaxTeamsLimitReached(owner.ID)
	}

	teamID := uuid.New().String()

	var squad []domain.Player
	if len(req.PlayerIDs) > 0 {
		squad, err = s.players.FetchByIDs(ctx, req.PlayerIDs)
		if err != nil {
			return nil, err
		}
		if len(squad) != len(req.PlayerIDs) {
			return nil, domain.ErrPlayerNotFound(missingID(req.PlayerIDs, squad))
		}
		for _, p := range squad {
			if !p.Uncapped() && p.Team.ID != teamID {
				return nil, domain.ErrPlayerAlreadyContracted(p.ID)
			}
		}
	} else {
		squad, err = s.players.UncappedByComposition(ctx, s.cfg.Composition)
		if err != nil {
			return nil, err
		}
	}

	team := &domain.Team{
		ID:        teamID,
		Name:      req.Name,
		Country:   req.Country,
		Budget:    s.cfg.StartingBudget,
		OwnerID:   owner.ID,
		PlayerIDs: []string{},
	}
	doc, err := store.Encode(team)
	if err != nil {
		return nil, domain.ErrInternal("encode team", err)
	}
	if err := s.store.Insert(ctx, store.EntityTeams, doc); err != nil {
		return nil, domain.ErrInternal("insert team", err)
	}

	matched, err := s.store.ConditionalUpdate(ctx, store.EntityUsers,
		store.Filter{"id": owner.ID},
		store.Mutation{AddToSet: map[string]string{"teams": teamID}})
	if err != nil {
		return nil, domain.ErrInternal("register team with owner", err)
	}
	if matched == 0 {
		return nil, domain.ErrUserNotFound(owner.ID)
	}

	for i := range squad {
		if err := s.contract(ctx, team, &squad[i]); err != nil {
			return nil, err
		}
		team.Value += squad[i].Value
		team.PlayerIDs = append(team.PlayerIDs, squad[i].ID)
	}

	if s.events != nil {
		if err := s.events.Append(ctx, domain.EventTeamCreated, "team", team.ID, map[string]any{
			"teamId": team.ID, "ownerId": team.OwnerID, "players": len(team.PlayerIDs),
		}); err != nil {
			s.logger.Warn("outbox append failed", "event", domain.EventTeamCreated, "error", err)
		}
	}

	s.logger.Info("team created", "team_id", team.ID, "owner_id", team.OwnerID, "players", len(team.PlayerIDs))
	return team, nil
}

// contract signs one player: ledger edge first, then the back-reference.
func (s *Service) contract(ctx context.Context, team *domain.Team, p *domain.Player) error {
	if err := s.ledger.AddPlayerToTeam(ctx, team.ID, p); err != nil {
		return err
	}
	matched, err := s.store.ConditionalUpdate(ctx, store.EntityPlayers,
		store.Filter{"id": p.ID},
		store.Mutation{Set: map[string]any{"team": domain.TeamRef{ID: team.ID, OwnerID: team.OwnerID}}})
	if err != nil {
		return domain.ErrInternal("stamp player team", err)
	}
	if matched == 0 {
		return domain.ErrPlayerNotFound(p.ID)
	}
	return nil
}

// Query holds the supported team list filters.
type Query struct {
	ID       string
	Name     string
	Country  string
	PlayerID string
	OwnerID  string
	Value    []store.Cmp
	Budget   []store.Cmp
}

func buildFilter(q Query) store.Filter {
	f := store.Filter{}
	if q.ID != "" {
		f["id"] = q.ID
	}
	if q.Name != "" {
		f["name"] = q.Name
	}
	if q.Country != "" {
		f["country"] = q.Country
	}
	if q.PlayerID != "" {
		f["players"] = q.PlayerID
	}
	if q.OwnerID != "" {
		f["ownerId"] = q.OwnerID
	}
	if len(q.Value) > 0 {
		f["value"] = q.Value
	}
	if len(q.Budget) > 0 {
		f["budget"] = q.Budget
	}
	return f
}

// Fetch lists teams visible to the caller.
func (s *Service) Fetch(ctx context.Context, ident scope.Identity, q Query, page store.Page) ([]domain.Team, error) {
	filter := scope.Merge(buildFilter(q), scope.Teams(ident))
	docs, err := s.store.Find(ctx, store.EntityTeams, filter, page)
	if err != nil {
		return nil, domain.ErrInternal("find teams", err)
	}
	teams, err := store.DecodeAll[domain.Team](docs)
	if err != nil {
		return nil, domain.ErrInternal("decode teams", err)
	}
	return teams, nil
}

// FetchByID returns one team within the caller's scope.
func (s *Service) FetchByID(ctx context.Context, ident scope.Identity, id string) (*domain.Team, error) {
	filter := scope.Merge(store.Filter{"id": id}, scope.Teams(ident))
	doc, err := s.store.Get(ctx, store.EntityTeams, filter)
	if err != nil {
		return nil, domain.ErrInternal("fetch team", err)
	}
	if doc == nil {
		return nil, domain.ErrTeamNotFound(id)
	}
	var team domain.Team
	if err := store.Decode(doc, &team); err != nil {
		return nil, domain.ErrInternal("decode team", err)
	}
	return &team, nil
}

// UpdateRequest holds the updatable team fields. Nil pointers leave the
// field untouched.
type UpdateRequest struct {
	Name      *string
	Country   *string
	Budget    *int64
	PlayerIDs *[]string
	OwnerID   *string
}

// UpdateByID applies a partial update. Roster replacement releases removed
// players and signs added ones through the ledger, debiting the budget for
// newly contracted uncapped players; an owner change re-parents the team
// and re-stamps every denormalized back-reference.
func (s *Service) UpdateByID(ctx context.Context, ident scope.Identity, id string, req UpdateRequest) error {
	team, err := s.FetchByID(ctx, ident, id)
	if err != nil {
		return err
	}

	set := map[string]any{}
	if req.Name != nil {
		set["name"] = *req.Name
	}
	if req.Country != nil {
		set["country"] = *req.Country
	}
	if req.Budget != nil {
		if *req.Budget < 0 {
			return domain.ErrInvalidInput("budget cannot be negative")
		}
		set["budget"] = *req.Budget
	}

	if req.PlayerIDs != nil {
		if err := s.replaceRoster(ctx, team, *req.PlayerIDs, req.Budget, set); err != nil {
			return err
		}
	}

	if req.OwnerID != nil && *req.OwnerID != team.OwnerID {
		if err := s.reparent(ctx, team, *req.OwnerID, set); err != nil {
			return err
		}
	}

	if len(set) == 0 {
		return domain.ErrNothingToUpdate()
	}

	matched, err := s.store.ConditionalUpdate(ctx, store.EntityTeams,
		store.Filter{"id": team.ID}, store.Mutation{Set: set})
	if err != nil {
		return domain.ErrInternal("update team", err)
	}
	if matched == 0 {
		return domain.ErrTeamNotFound(team.ID)
	}
	return nil
}

// replaceRoster diffs the requested roster against the current one. Newly
// contracted uncapped players are bought at their current valuation out of
// the team budget.
func (s *Service) replaceRoster(ctx context.Context, team *domain.Team, requested []string, budget *int64, set map[string]any) error {
	newRoster, err := s.players.FetchByIDs(ctx, requested)
	if err != nil {
		return err
	}
	if len(newRoster) != len(requested) {
		return domain.ErrPlayerNotFound(missingID(requested, newRoster))
	}

	var expense int64
	inNew := make(map[string]bool, len(newRoster))
	for _, p := range newRoster {
		inNew[p.ID] = true
		if !p.Uncapped() && p.Team.ID != team.ID {
			return domain.ErrPlayerAlreadyContracted(p.ID)
		}
		if p.Uncapped() {
			expense += p.Value
		}
	}

	base := team.Budget
	if budget != nil {
		base = *budget
	}
	if expense > base {
		return domain.ErrInadequateBudget(team.ID)
	}
	set["budget"] = base - expense

	// Release first so a removed-then-readded player never double-counts.
	for _, pid := range team.PlayerIDs {
		if inNew[pid] {
			continue
		}
		released, err := s.players.FetchByIDs(ctx, []string{pid})
		if err != nil {
			return err
		}
		if len(released) == 0 {
			continue
		}
		if err := s.release(ctx, team.ID, &released[0]); err != nil {
			return err
		}
	}

	for i := range newRoster {
		if err := s.contract(ctx, team, &newRoster[i]); err != nil {
			return err
		}
	}
	return nil
}

// release detaches one player: cancel its open transfer, debit the ledger
// edge, clear the back-reference.
func (s *Service) release(ctx context.Context, teamID string, p *domain.Player) error {
	if _, err := s.store.Delete(ctx, store.EntityTransfers,
		store.Filter{"player.id": p.ID, "status": string(domain.TransferOpen)}); err != nil {
		return domain.ErrInternal("cancel open transfer", err)
	}
	if err := s.ledger.RemovePlayerFromTeam(ctx, teamID, p); err != nil {
		return err
	}
	if _, err := s.store.ConditionalUpdate(ctx, store.EntityPlayers,
		store.Filter{"id": p.ID},
		store.Mutation{Unset: []string{"team"}}); err != nil {
		return domain.ErrInternal("detach player", err)
	}
	return nil
}

// reparent moves the team to a new owner and re-stamps the ownerId
// back-references on rostered players and open transfers.
func (s *Service) reparent(ctx context.Context, team *domain.Team, newOwnerID string, set map[string]any) error {
	newOwner, err := s.getUser(ctx, newOwnerID)
	if err != nil {
		return err
	}
	if len(newOwner.TeamIDs) >= s.cfg.MaxTeamsPerUser {
		return domain.ErrMaxTeamsLimitReached(newOwner.ID)
	}

	if _, err := s.store.ConditionalUpdate(ctx, store.EntityUsers,
		store.Filter{"id": team.OwnerID},
		store.Mutation{Pull: map[string]string{"teams": team.ID}}); err != nil {
		return domain.ErrInternal("unregister team from owner", err)
	}
	matched, err := s.store.ConditionalUpdate(ctx, store.EntityUsers,
		store.Filter{"id": newOwner.ID},
		store.Mutation{AddToSet: map[string]string{"teams": team.ID}})
	if err != nil {
		return domain.ErrInternal("register team with new owner", err)
	}
	if matched == 0 {
		return domain.ErrUserNotFound(newOwner.ID)
	}

	if _, err := s.store.ConditionalUpdate(ctx, store.EntityPlayers,
		store.Filter{"team.id": team.ID},
		store.Mutation{Set: map[string]any{"team.ownerId": newOwner.ID}}); err != nil {
		return domain.ErrInternal("restamp players", err)
	}
	if _, err := s.store.ConditionalUpdate(ctx, store.EntityTransfers,
		store.Filter{"initiatorTeam.id": team.ID, "status": string(domain.TransferOpen)},
		store.Mutation{Set: map[string]any{"initiatorTeam.ownerId": newOwner.ID}}); err != nil {
		return domain.ErrInternal("restamp open transfers", err)
	}

	set["ownerId"] = newOwner.ID
	return nil
}

// Delete tears a team down in an order no concurrent reader can observe a
// dangling reference through: open transfers first, then player
// detachment, then owner unregistration, then the record itself.
func (s *Service) Delete(ctx context.Context, ident scope.Identity, id string) error {
	team, err := s.FetchByID(ctx, ident, id)
	if err != nil {
		return err
	}

	if _, err := s.store.Delete(ctx, store.EntityTransfers,
		store.Filter{"initiatorTeam.id": team.ID, "status": string(domain.TransferOpen)}); err != nil {
		return domain.ErrInternal("cancel open transfers", err)
	}

	if _, err := s.store.ConditionalUpdate(ctx, store.EntityPlayers,
		store.Filter{"team.id": team.ID},
		store.Mutation{Unset: []string{"team"}}); err != nil {
		return domain.ErrInternal("detach players", err)
	}

	if _, err := s.store.ConditionalUpdate(ctx, store.EntityUsers,
		store.Filter{"id": team.OwnerID},
		store.Mutation{Pull: map[string]string{"teams": team.ID}}); err != nil {
		return domain.ErrInternal("unregister team from owner", err)
	}

	if _, err := s.store.Delete(ctx, store.EntityTeams, store.Filter{"id": team.ID}); err != nil {
		return domain.ErrInternal("delete team", err)
	}

	if s.events != nil {
		if err := s.events.Append(ctx, domain.EventTeamDeleted, "team", team.ID, map[string]any{
			"teamId": team.ID, "ownerId": team.OwnerID,
		}); err != nil {
			s.logger.Warn("outbox append failed", "event", domain.EventTeamDeleted, "error", err)
		}
	}

	s.logger.Info("team deleted", "team_id", team.ID, "owner_id", team.OwnerID)
	return nil
}

func (s *Service) getUser(ctx context.Context, id string) (*domain.User, error) {
	doc, err := s.store.Get(ctx, store.EntityUsers, store.Filter{"id": id})
	if err != nil {
		return nil, domain.ErrInternal("fetch user", err)
	}
	if doc == nil {
		return nil, domain.ErrUserNotFound(id)
	}
	var user domain.User
	if err := store.Decode(doc, &user); err != nil {
		return nil, domain.ErrInternal("decode user", err)
	}
	return &user, nil
}

func missingID(requested []string, found []domain.Player) string {
	have := make(map[string]bool, len(found))
	for _, p := range found {
		have[p.ID] = true
	}
	for _, id := range requested {
		if !have[id] {
			return id
		}
	}
	return fmt.Sprintf("%d requested", len(requested))
}
