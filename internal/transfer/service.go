// Package transfer implements the buy-now marketplace: listing players,
// editing and withdrawing open listings, and the ordered settlement that
// moves a player and its money between teams. Settlement steps are each
// idempotent and the conditional status flip runs last, so a crashed or
// raced settlement either converges on retry or loses cleanly to the
// concurrent winner.
package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/outbox"
	"github.com/squadmarket/platform/internal/roster"
	"github.com/squadmarket/platform/internal/scope"
	"github.com/squadmarket/platform/internal/store"
)

// Config holds the settlement tunables. The markup bounds are the
// inclusive percentage range a sold player's valuation is raised by.
type Config struct {
	MarkupMinPct int
	MarkupMaxPct int
}

// Service implements transfer operations.
type Service struct {
	store   store.Store
	ledger  *roster.Ledger
	clock   clockwork.Clock
	randInt func(min, max int) int
	events  *outbox.Appender
	cfg     Config
	logger  *slog.Logger
}

// NewService creates a transfer service. randInt supplies the markup roll;
// events may be nil to disable event emission.
func NewService(st store.Store, ledger *roster.Ledger, clock clockwork.Clock, randInt func(min, max int) int, events *outbox.Appender, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		ledger:  ledger,
		clock:   clock,
		randInt: randInt,
		events:  events,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateRequest holds the fields for a new listing.
type CreateRequest struct {
	PlayerID        string
	InitiatorTeamID string
	BuyNowPrice     int64
}

// Create opens a listing for a rostered player. The partial unique index
// on open listings per player is the backstop behind the advisory
// pending-listing check, so two concurrent creates cannot both land.
func (s *Service) Create(ctx context.Context, ident scope.Identity, req CreateRequest) (*domain.Transfer, error) {
	if err := domain.ValidatePositiveAmount("buyNowPrice", req.BuyNowPrice); err != nil {
		return nil, domain.ErrInvalidInput(err.Error())
	}

	p, err := s.getPlayer(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}
	if p.Uncapped() {
		return nil, domain.ErrInvalidInput("player has no team to transfer from")
	}
	if !ident.IsAdmin() && p.Team.OwnerID != ident.UserID {
		return nil, domain.ErrInadequatePermissions()
	}
	if req.InitiatorTeamID != "" && p.Team.ID != req.InitiatorTeamID {
		return nil, domain.ErrInadequatePermissions()
	}

	pending, err := s.store.Find(ctx, store.EntityTransfers,
		store.Filter{"player.id": p.ID, "status": string(domain.TransferOpen)},
		store.Page{Limit: 1})
	if err != nil {
		return nil, domain.ErrInternal("check pending listings", err)
	}
	if len(pending) > 0 {
		return nil, domain.ErrInvalidTransferRequest("player already has an open listing")
	}

	team, err := s.getTeam(ctx, p.Team.ID)
	if err != nil {
		return nil, err
	}

	tr := &domain.Transfer{
		ID: uuid.New().String(),
		Player: domain.PlayerRef{
			ID:        p.ID,
			Type:      p.Type,
			FirstName: p.FirstName,
			LastName:  p.LastName,
		},
		InitiatorTeam: domain.TeamRef{ID: team.ID, OwnerID: team.OwnerID},
		BuyNowPrice:   req.BuyNowPrice,
		Status:        domain.TransferOpen,
		OpenedDate:    s.clock.Now().UTC(),
	}
	doc, err := store.Encode(tr)
	if err != nil {
		return nil, domain.ErrInternal("encode transfer", err)
	}
	if err := s.store.Insert(ctx, store.EntityTransfers, doc); err != nil {
		if err == store.ErrConflict {
			return nil, domain.ErrInvalidTransferRequest("player already has an open listing")
		}
		return nil, domain.ErrInternal("insert transfer", err)
	}

	if s.events != nil {
		if err := s.events.Append(ctx, domain.EventTransferOpened, "transfer", tr.ID, domain.TransferOpenedPayload{
			TransferID:  tr.ID,
			PlayerID:    p.ID,
			FromTeamID:  team.ID,
			BuyNowPrice: tr.BuyNowPrice,
		}); err != nil {
			s.logger.Warn("outbox append failed", "event", domain.EventTransferOpened, "error", err)
		}
	}

	s.logger.Info("transfer opened", "transfer_id", tr.ID, "player_id", p.ID, "price", tr.BuyNowPrice)
	return tr, nil
}

// Settle executes a buy: the player moves to the buying team at a marked-up
// valuation, the price moves between budgets, and the listing flips to
// COMPLETE. The flip is the last step and the linearization point: it only
// matches an OPEN listing, so of any concurrent settlements exactly one
// completes and the rest observe TransferNotOpen. Earlier steps are safe to
// re-run because the roster ledger skips edges that already hold and the
// buyer debit carries its own solvency condition.
func (s *Service) Settle(ctx context.Context, ident scope.Identity, transferID, toTeamID string) (*domain.Transfer, error) {
	toTeam, err := s.getTeam(ctx, toTeamID)
	if err != nil {
		return nil, err
	}
	if !ident.IsAdmin() && toTeam.OwnerID != ident.UserID {
		return nil, domain.ErrInadequatePermissions()
	}

	tr, err := s.getTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if tr.Status != domain.TransferOpen {
		return nil, domain.ErrTransferNotOpen(tr.ID)
	}
	if toTeam.ID == tr.InitiatorTeam.ID {
		return nil, domain.ErrInvalidTransferRequest("cannot buy a player from your own listing")
	}
	// Advisory check for a clean early failure; the conditional debit below
	// is the authoritative one.
	if toTeam.Budget < tr.BuyNowPrice {
		return nil, domain.ErrInadequateBudget(toTeam.ID)
	}

	p, err := s.getPlayer(ctx, tr.Player.ID)
	if err != nil {
		return nil, err
	}

	// Skip the move on a retry that already landed it.
	if p.Team == nil || p.Team.ID != toTeam.ID {
		resale, err := s.lockResaleValue(ctx, tr, p)
		if err != nil {
			return nil, err
		}
		if p.Team != nil && p.Team.ID != "" {
			if err := s.ledger.RemovePlayerFromTeam(ctx, p.Team.ID, p); err != nil {
				return nil, err
			}
		}
		repriced := *p
		repriced.Value = resale
		if err := s.ledger.AddPlayerToTeam(ctx, toTeam.ID, &repriced); err != nil {
			return nil, err
		}
		if _, err := s.store.ConditionalUpdate(ctx, store.EntityPlayers,
			store.Filter{"id": p.ID},
			store.Mutation{Set: map[string]any{
				"team":  domain.TeamRef{ID: toTeam.ID, OwnerID: toTeam.OwnerID},
				"value": repriced.Value,
			}}); err != nil {
			return nil, domain.ErrInternal("move player", err)
		}
	}

	if _, err := s.ledger.IncrementBudget(ctx, tr.InitiatorTeam.ID, tr.BuyNowPrice, false); err != nil {
		return nil, err
	}
	solvent, err := s.ledger.IncrementBudget(ctx, toTeam.ID, -tr.BuyNowPrice, true)
	if err != nil {
		return nil, err
	}
	if !solvent {
		return nil, domain.ErrInadequateBudget(toTeam.ID)
	}

	completedAt := s.clock.Now().UTC()
	toRef := domain.TeamRef{ID: toTeam.ID, OwnerID: toTeam.OwnerID}
	matched, err := s.store.ConditionalUpdate(ctx, store.EntityTransfers,
		store.Filter{"id": tr.ID, "status": string(domain.TransferOpen)},
		store.Mutation{Set: map[string]any{
			"status":        string(domain.TransferComplete),
			"completedDate": completedAt.Format(time.RFC3339Nano),
			"toTeam":        toRef,
		}})
	if err != nil {
		return nil, domain.ErrInternal("complete transfer", err)
	}
	if matched == 0 {
		return nil, domain.ErrTransferNotOpen(tr.ID)
	}

	tr.Status = domain.TransferComplete
	tr.CompletedDate = &completedAt
	tr.ToTeam = &toRef

	if s.events != nil {
		if err := s.events.Append(ctx, domain.EventTransferComplete, "transfer", tr.ID, domain.TransferCompletedPayload{
			TransferID:  tr.ID,
			PlayerID:    tr.Player.ID,
			FromTeamID:  tr.InitiatorTeam.ID,
			ToTeamID:    toTeam.ID,
			BuyNowPrice: tr.BuyNowPrice,
		}); err != nil {
			s.logger.Warn("outbox append failed", "event", domain.EventTransferComplete, "error", err)
		}
	}

	s.logger.Info("transfer completed",
		"transfer_id", tr.ID, "player_id", tr.Player.ID,
		"from_team", tr.InitiatorTeam.ID, "to_team", toTeam.ID, "price", tr.BuyNowPrice)
	return tr, nil
}

// lockResaleValue fixes the marked-up valuation for a settlement. The
// roll is persisted on the listing before any roster effect, conditional
// on no earlier attempt having persisted one, so the valuation credited
// to the buying team and the valuation written onto the player are always
// the same number no matter how many times the settlement is re-driven.
func (s *Service) lockResaleValue(ctx context.Context, tr *domain.Transfer, p *domain.Player) (int64, error) {
	if tr.ResaleValue > 0 {
		return tr.ResaleValue, nil
	}

	rolled := markup(p.Value, s.randInt(s.cfg.MarkupMinPct, s.cfg.MarkupMaxPct))
	matched, err := s.store.ConditionalUpdate(ctx, store.EntityTransfers,
		store.Filter{"id": tr.ID, "status": string(domain.TransferOpen), "resaleValue": store.Missing{}},
		store.Mutation{Set: map[string]any{"resaleValue": rolled}})
	if err != nil {
		return 0, domain.ErrInternal("lock resale value", err)
	}
	if matched > 0 {
		tr.ResaleValue = rolled
		return rolled, nil
	}

	// A concurrent attempt locked a roll first, or the listing closed.
	cur, err := s.getTransfer(ctx, tr.ID)
	if err != nil {
		return 0, err
	}
	if cur.ResaleValue == 0 {
		return 0, domain.ErrTransferNotOpen(tr.ID)
	}
	tr.ResaleValue = cur.ResaleValue
	return cur.ResaleValue, nil
}

// Query holds the supported transfer list filters.
type Query struct {
	ID              string
	PlayerID        string
	FirstName       string
	LastName        string
	Status          domain.TransferStatus
	InitiatorTeamID string
	OwnerID         string
	Price           []store.Cmp
}

func buildFilter(q Query) store.Filter {
	f := store.Filter{}
	if q.ID != "" {
		f["id"] = q.ID
	}
	if q.PlayerID != "" {
		f["player.id"] = q.PlayerID
	}
	if q.FirstName != "" {
		f["player.firstName"] = q.FirstName
	}
	if q.LastName != "" {
		f["player.lastName"] = q.LastName
	}
	if q.Status != "" {
		f["status"] = string(q.Status)
	}
	if q.InitiatorTeamID != "" {
		f["initiatorTeam.id"] = q.InitiatorTeamID
	}
	if q.OwnerID != "" {
		f["initiatorTeam.ownerId"] = q.OwnerID
	}
	if len(q.Price) > 0 {
		f["buyNowPrice"] = q.Price
	}
	return f
}

// Fetch lists the open market. Every authenticated caller sees all
// listings; the scope narrows writes, not market reads.
func (s *Service) Fetch(ctx context.Context, q Query, page store.Page) ([]domain.Transfer, error) {
	docs, err := s.store.Find(ctx, store.EntityTransfers, buildFilter(q), page)
	if err != nil {
		return nil, domain.ErrInternal("find transfers", err)
	}
	transfers, err := store.DecodeAll[domain.Transfer](docs)
	if err != nil {
		return nil, domain.ErrInternal("decode transfers", err)
	}
	return transfers, nil
}

// FetchByID returns one listing, visible to any authenticated caller.
func (s *Service) FetchByID(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.getTransfer(ctx, id)
}

// UpdateRequest holds the editable listing fields.
type UpdateRequest struct {
	PlayerID    string
	BuyNowPrice *int64
}

// UpdateByID edits an open listing the caller initiated. The update filter
// re-checks OPEN so an edit racing a settlement cannot resurrect a
// completed listing.
func (s *Service) UpdateByID(ctx context.Context, ident scope.Identity, id string, req UpdateRequest) error {
	tr, err := s.fetchScoped(ctx, ident, id)
	if err != nil {
		return err
	}
	if tr.Status != domain.TransferOpen {
		return domain.ErrTransferNotOpen(tr.ID)
	}

	set := map[string]any{}
	if req.BuyNowPrice != nil {
		if err := domain.ValidatePositiveAmount("buyNowPrice", *req.BuyNowPrice); err != nil {
			return domain.ErrInvalidInput(err.Error())
		}
		set["buyNowPrice"] = *req.BuyNowPrice
	}

	if req.PlayerID != "" && req.PlayerID != tr.Player.ID {
		p, err := s.getPlayer(ctx, req.PlayerID)
		if err != nil {
			return err
		}
		if p.Uncapped() || p.Team.ID != tr.InitiatorTeam.ID {
			return domain.ErrInvalidTransferRequest("replacement player is not on the initiating team")
		}
		pending, err := s.store.Find(ctx, store.EntityTransfers,
			store.Filter{"player.id": p.ID, "status": string(domain.TransferOpen)},
			store.Page{Limit: 1})
		if err != nil {
			return domain.ErrInternal("check pending listings", err)
		}
		if len(pending) > 0 {
			return domain.ErrInvalidTransferRequest("player already has an open listing")
		}
		set["player"] = domain.PlayerRef{
			ID:        p.ID,
			Type:      p.Type,
			FirstName: p.FirstName,
			LastName:  p.LastName,
		}
	}

	if len(set) == 0 {
		return domain.ErrNothingToUpdate()
	}

	filter := scope.Merge(
		store.Filter{"id": tr.ID, "status": string(domain.TransferOpen)},
		scope.Transfers(ident))
	matched, err := s.store.ConditionalUpdate(ctx, store.EntityTransfers, filter, store.Mutation{Set: set})
	if err != nil {
		if err == store.ErrConflict {
			return domain.ErrInvalidTransferRequest("player already has an open listing")
		}
		return domain.ErrInternal("update transfer", err)
	}
	if matched == 0 {
		return domain.ErrTransferNotOpen(tr.ID)
	}
	return nil
}

// DeleteByID withdraws an open listing the caller initiated.
func (s *Service) DeleteByID(ctx context.Context, ident scope.Identity, id string) error {
	tr, err := s.fetchScoped(ctx, ident, id)
	if err != nil {
		return err
	}
	if tr.Status != domain.TransferOpen {
		return domain.ErrTransferNotOpen(tr.ID)
	}

	deleted, err := s.store.Delete(ctx, store.EntityTransfers,
		store.Filter{"id": tr.ID, "status": string(domain.TransferOpen)})
	if err != nil {
		return domain.ErrInternal("delete transfer", err)
	}
	if deleted == 0 {
		return domain.ErrTransferNotOpen(tr.ID)
	}
	s.logger.Info("transfer withdrawn", "transfer_id", tr.ID)
	return nil
}

func (s *Service) fetchScoped(ctx context.Context, ident scope.Identity, id string) (*domain.Transfer, error) {
	filter := scope.Merge(store.Filter{"id": id}, scope.Transfers(ident))
	doc, err := s.store.Get(ctx, store.EntityTransfers, filter)
	if err != nil {
		return nil, domain.ErrInternal("fetch transfer", err)
	}
	if doc == nil {
		return nil, domain.ErrTransferNotFound(id)
	}
	var tr domain.Transfer
	if err := store.Decode(doc, &tr); err != nil {
		return nil, domain.ErrInternal("decode transfer", err)
	}
	return &tr, nil
}

func (s *Service) getTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	doc, err := s.store.Get(ctx, store.EntityTransfers, store.Filter{"id": id})
	if err != nil {
		return nil, domain.ErrInternal("fetch transfer", err)
	}
	if doc == nil {
		return nil, domain.ErrTransferNotFound(id)
	}
	var tr domain.Transfer
	if err := store.Decode(doc, &tr); err != nil {
		return nil, domain.ErrInternal("decode transfer", err)
	}
	return &tr, nil
}

func (s *Service) getPlayer(ctx context.Context, id string) (*domain.Player, error) {
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

func (s *Service) getTeam(ctx context.Context, id string) (*domain.Team, error) {
	doc, err := s.store.Get(ctx, store.EntityTeams, store.Filter{"id": id})
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

func markup(value int64, pct int) int64 {
	return value * int64(100+pct) / 100
}
