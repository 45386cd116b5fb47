// Package player manages player records: creation with generated
// defaults, owner-scoped queries, team moves that keep the roster ledger
// and open transfers consistent, and the uncapped pool used by team
// auto-drafting.
package player

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/roster"
	"github.com/squadmarket/platform/internal/scope"
	"github.com/squadmarket/platform/internal/store"
)

// Service implements player operations over the document store.
type Service struct {
	store     store.Store
	ledger    *roster.Ledger
	gen       *Generator
	clock     clockwork.Clock
	baseValue int64
	logger    *slog.Logger
}

// NewService creates a player service. baseValue is the valuation assigned
// to newly created and synthesized players.
func NewService(st store.Store, ledger *roster.Ledger, gen *Generator, clock clockwork.Clock, baseValue int64, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		ledger:    ledger,
		gen:       gen,
		clock:     clock,
		baseValue: baseValue,
		logger:    logger,
	}
}

// CreateRequest holds the fields for a new player. Birthdate and value
// default when omitted; TeamID contracts the player immediately.
type CreateRequest struct {
	Type      domain.PlayerType
	FirstName string
	LastName  string
	Country   string
	Birthdate *time.Time
	TeamID    string
}

// Create inserts a new player, contracting it to a team when requested.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Player, error) {
	if !domain.ValidPlayerType(req.Type) {
		return nil, domain.ErrInvalidInput("unknown player type")
	}
	if req.FirstName == "" || req.LastName == "" {
		return nil, domain.ErrInvalidInput("firstName and lastName are required")
	}

	p := &domain.Player{
		ID:        uuid.New().String(),
		Type:      req.Type,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   req.Country,
		Value:     s.baseValue,
	}
	if req.Birthdate != nil {
		p.Birthdate = req.Birthdate.UTC()
	} else {
		p.Birthdate = s.gen.Birthdate()
	}

	if req.TeamID != "" {
		doc, err := s.store.Get(ctx, store.EntityTeams, store.Filter{"id": req.TeamID})
		if err != nil {
			return nil, domain.ErrInternal("fetch team", err)
		}
		if doc == nil {
			return nil, domain.ErrTeamNotFound(req.TeamID)
		}
		var team domain.Team
		if err := store.Decode(doc, &team); err != nil {
			return nil, domain.ErrInternal("decode team", err)
		}
		p.Team = &domain.TeamRef{ID: team.ID, OwnerID: team.OwnerID}
	}

	doc, err := store.Encode(p)
	if err != nil {
		return nil, domain.ErrInternal("encode player", err)
	}
	if err := s.store.Insert(ctx, store.EntityPlayers, doc); err != nil {
		return nil, domain.ErrInternal("insert player", err)
	}

	if p.Team != nil {
		if err := s.ledger.AddPlayerToTeam(ctx, p.Team.ID, p); err != nil {
			return nil, err
		}
	}

	s.logger.Info("player created", "player_id", p.ID, "type", p.Type, "team_id", req.TeamID)
	return p, nil
}

// Query holds the supported player list filters. Age comparisons are
// translated into birthdate bounds.
type Query struct {
	ID        string
	Type      domain.PlayerType
	FirstName string
	LastName  string
	Country   string
	TeamID    string
	OwnerID   string
	Uncapped  bool
	Value     []store.Cmp
	Age       []store.Cmp
}

func (s *Service) buildFilter(q Query) store.Filter {
	f := store.Filter{}
	if q.ID != "" {
		f["id"] = q.ID
	}
	if q.Type != "" {
		f["type"] = string(q.Type)
	}
	if q.FirstName != "" {
		f["firstName"] = q.FirstName
	}
	if q.LastName != "" {
		f["lastName"] = q.LastName
	}
	if q.Country != "" {
		f["country"] = q.Country
	}
	if q.TeamID != "" {
		f["team.id"] = q.TeamID
	}
	if q.OwnerID != "" {
		f["team.ownerId"] = q.OwnerID
	}
	if q.Uncapped {
		f["team"] = store.Missing{}
	}
	if len(q.Value) > 0 {
		f["value"] = q.Value
	}
	if len(q.Age) > 0 {
		now := s.clock.Now().UTC()
		bounds := make([]store.Cmp, 0, len(q.Age))
		for _, c := range q.Age {
			years := int(asInt(c.Value))
			cutoff := now.AddDate(-years, 0, 0).Format(time.RFC3339)
			// An age bound inverts into the opposite birthdate bound.
			bounds = append(bounds, store.Cmp{Op: invertOp(c.Op), Value: cutoff})
		}
		f["birthdate"] = bounds
	}
	return f
}

func invertOp(op string) string {
	switch op {
	case "lte":
		return "gte"
	case "gte":
		return "lte"
	case "lt":
		return "gt"
	case "gt":
		return "lt"
	}
	return op
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// Fetch lists players visible to the caller.
func (s *Service) Fetch(ctx context.Context, ident scope.Identity, q Query, page store.Page) ([]domain.Player, error) {
	filter := scope.Merge(s.buildFilter(q), scope.Players(ident))
	docs, err := s.store.Find(ctx, store.EntityPlayers, filter, page)
	if err != nil {
		return nil, domain.ErrInternal("find players", err)
	}
	players, err := store.DecodeAll[domain.Player](docs)
	if err != nil {
		return nil, domain.ErrInternal("decode players", err)
	}
	return players, nil
}

// FetchByID returns one player within the caller's scope.
func (s *Service) FetchByID(ctx context.Context, ident scope.Identity, id string) (*domain.Player, error) {
	filter := scope.Merge(store.Filter{"id": id}, scope.Players(ident))
	doc, err := s.store.Get(ctx, store.EntityPlayers, filter)
	if err != nil {
		return nil, domain.ErrInternal("fetch player", err)
	}
	if doc == nil {
		return nil, domain.ErrPlayerNotFound(id)
	}
	var p domain.Player
	if err := store.Decode(doc, &p); err != nil {
		return nil, domain.ErrInternal("decode player", err)
	}
	return &p, nil
}

// getByID fetches without scoping, for internal cross-entity steps.
func (s *Service) getByID(ctx context.Context, id string) (*domain.Player, error) {
	doc, err := s.store.Get(ctx, store.EntityPlayers, store.Filter{"id": id})
	if err != nil {
		return nil, domain.ErrInternal("fetch player", err)
	}
	if doc == nil {
		return nil, domain.ErrPlayerNotFound(id)
	}
	var p domain.Player
	if err := store.Decode(doc, &p); err != nil {
		return nil, domain.ErrInternal("decode player", err)
	}
	return &p, nil
}

// FetchByIDs bulk-loads players unscoped. Used by lifecycle validation.
func (s *Service) FetchByIDs(ctx context.Context, ids []string) ([]domain.Player, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := s.store.Find(ctx, store.EntityPlayers, store.Filter{"id": store.In(ids)}, store.Page{})
	if err != nil {
		return nil, domain.ErrInternal("find players", err)
	}
	players, err := store.DecodeAll[domain.Player](docs)
	if err != nil {
		return nil, domain.ErrInternal("decode players", err)
	}
	return players, nil
}

// UpdateRequest holds the updatable player fields. A non-empty TeamID
// moves the player; Value re-prices it.
type UpdateRequest struct {
	FirstName string
	LastName  string
	Country   string
	Birthdate *time.Time
	Value     int64
	TeamID    string
}

// UpdateByID applies a partial update. Team moves release the player from
// its old team, contract it to the new one at the effective valuation and
// cancel the player's open transfer, all via single-document steps.
func (s *Service) UpdateByID(ctx context.Context, ident scope.Identity, id string, req UpdateRequest) error {
	// Visibility check before any side effect.
	if _, err := s.FetchByID(ctx, ident, id); err != nil {
		return err
	}

	set := map[string]any{}
	if req.FirstName != "" {
		set["firstName"] = req.FirstName
	}
	if req.LastName != "" {
		set["lastName"] = req.LastName
	}
	if req.Country != "" {
		set["country"] = req.Country
	}
	if req.Birthdate != nil {
		set["birthdate"] = req.Birthdate.UTC().Format(time.RFC3339)
	}
	if req.Value != 0 {
		if err := domain.ValidatePositiveAmount("value", req.Value); err != nil {
			return domain.ErrInvalidInput(err.Error())
		}
		set["value"] = req.Value
	}

	if req.TeamID != "" || req.Value != 0 {
		if err := s.movePlayer(ctx, id, req.TeamID, req.Value, set); err != nil {
			return err
		}
	}

	if len(set) == 0 {
		return domain.ErrNothingToUpdate()
	}

	filter := scope.Merge(store.Filter{"id": id}, scope.Players(ident))
	matched, err := s.store.ConditionalUpdate(ctx, store.EntityPlayers, filter, store.Mutation{Set: set})
	if err != nil {
		return domain.ErrInternal("update player", err)
	}
	if matched == 0 {
		return domain.ErrPlayerNotFound(id)
	}
	return nil
}

// movePlayer re-seats the ledger edges around a team or valuation change.
func (s *Service) movePlayer(ctx context.Context, id, newTeamID string, newValue int64, set map[string]any) error {
	p, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}

	targetTeamID := newTeamID
	if targetTeamID == "" && p.Team != nil {
		targetTeamID = p.Team.ID
	}
	if targetTeamID == "" {
		// Uncapped player being re-priced: nothing to re-seat.
		return nil
	}

	if p.Team != nil && p.Team.ID != "" {
		if err := s.ledger.RemovePlayerFromTeam(ctx, p.Team.ID, p); err != nil {
			return err
		}
	}

	doc, err := s.store.Get(ctx, store.EntityTeams, store.Filter{"id": targetTeamID})
	if err != nil {
		return domain.ErrInternal("fetch team", err)
	}
	if doc == nil {
		return domain.ErrTeamNotFound(targetTeamID)
	}
	var team domain.Team
	if err := store.Decode(doc, &team); err != nil {
		return domain.ErrInternal("decode team", err)
	}

	effective := *p
	if newValue != 0 {
		effective.Value = newValue
	}
	if err := s.ledger.AddPlayerToTeam(ctx, team.ID, &effective); err != nil {
		return err
	}

	if _, err := s.store.Delete(ctx, store.EntityTransfers,
		store.Filter{"player.id": id, "status": string(domain.TransferOpen)}); err != nil {
		return domain.ErrInternal("cancel open transfer", err)
	}

	set["team"] = domain.TeamRef{ID: team.ID, OwnerID: team.OwnerID}
	return nil
}

// DeleteByID cancels the player's open transfer, detaches it from its
// team and removes the record, in that order.
func (s *Service) DeleteByID(ctx context.Context, ident scope.Identity, id string) error {
	p, err := s.FetchByID(ctx, ident, id)
	if err != nil {
		return err
	}

	if _, err := s.store.Delete(ctx, store.EntityTransfers,
		store.Filter{"player.id": id, "status": string(domain.TransferOpen)}); err != nil {
		return domain.ErrInternal("cancel open transfer", err)
	}

	if p.Team != nil && p.Team.ID != "" {
		if err := s.ledger.RemovePlayerFromTeam(ctx, p.Team.ID, p); err != nil {
			return err
		}
	}

	if _, err := s.store.Delete(ctx, store.EntityPlayers, store.Filter{"id": id}); err != nil {
		return domain.ErrInternal("delete player", err)
	}

	s.logger.Info("player deleted", "player_id", id)
	return nil
}

// UncappedByComposition assembles an uncapped squad: existing uncapped
// players of each position first, synthesized players for any shortfall.
// Aside from inserting the synthesized records it has no side effects.
func (s *Service) UncappedByComposition(ctx context.Context, composition map[domain.PlayerType]int) ([]domain.Player, error) {
	var squad []domain.Player
	for _, ptype := range domain.PlayerTypes {
		needed := composition[ptype]
		if needed == 0 {
			continue
		}

		docs, err := s.store.Find(ctx, store.EntityPlayers,
			store.Filter{"type": string(ptype), "team": store.Missing{}},
			store.Page{Limit: needed})
		if err != nil {
			return nil, domain.ErrInternal("find uncapped players", err)
		}
		existing, err := store.DecodeAll[domain.Player](docs)
		if err != nil {
			return nil, domain.ErrInternal("decode players", err)
		}
		squad = append(squad, existing...)

		for i := len(existing); i < needed; i++ {
			p := domain.Player{
				ID:        uuid.New().String(),
				Type:      ptype,
				FirstName: s.gen.FirstName(),
				LastName:  s.gen.LastName(),
				Country:   s.gen.Country(),
				Birthdate: s.gen.Birthdate(),
				Value:     s.baseValue,
			}
			doc, err := store.Encode(p)
			if err != nil {
				return nil, domain.ErrInternal("encode player", err)
			}
			if err := s.store.Insert(ctx, store.EntityPlayers, doc); err != nil {
				return nil, domain.ErrInternal("insert synthesized player", err)
			}
			squad = append(squad, p)
		}
	}
	return squad, nil
}
