// Package user implements account registration, credential verification
// and account lifecycle. Registration drafts a starter team so a new
// account is playable immediately.
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/outbox"
	"github.com/squadmarket/platform/internal/player"
	"github.com/squadmarket/platform/internal/scope"
	"github.com/squadmarket/platform/internal/store"
	"github.com/squadmarket/platform/internal/team"
)

// Service implements user operations.
type Service struct {
	store  store.Store
	teams  *team.Service
	gen    *player.Generator
	events *outbox.Appender
	logger *slog.Logger
}

// NewService creates a user service. events may be nil to disable event
// emission.
func NewService(st store.Store, teams *team.Service, gen *player.Generator, events *outbox.Appender, logger *slog.Logger) *Service {
	return &Service{store: st, teams: teams, gen: gen, events: events, logger: logger}
}

// Register creates an account and drafts its starter team. The unique
// email index is the backstop behind the advisory existence check.
func (s *Service) Register(ctx context.Context, email, password string) (*domain.User, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, domain.ErrInvalidInput(err.Error())
	}
	if err := domain.ValidatePassword(password); err != nil {
		return nil, domain.ErrInvalidInput(err.Error())
	}

	existing, err := s.store.Get(ctx, store.EntityUsers, store.Filter{"email": email})
	if err != nil {
		return nil, domain.ErrInternal("check email", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailTaken(email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Roles:        []domain.Role{domain.RoleRegular},
		TeamIDs:      []string{},
	}
	doc, err := store.Encode(u)
	if err != nil {
		return nil, domain.ErrInternal("encode user", err)
	}
	if err := s.store.Insert(ctx, store.EntityUsers, doc); err != nil {
		if err == store.ErrConflict {
			return nil, domain.ErrEmailTaken(email)
		}
		return nil, domain.ErrInternal("insert user", err)
	}

	if _, err := s.teams.Create(ctx, team.CreateRequest{
		Name:    fmt.Sprintf("%s's Team", u.ID),
		Country: s.gen.Country(),
		OwnerID: u.ID,
	}); err != nil {
		return nil, err
	}

	if s.events != nil {
		if err := s.events.Append(ctx, domain.EventUserRegistered, "user", u.ID, map[string]any{
			"userId": u.ID, "email": u.Email,
		}); err != nil {
			s.logger.Warn("outbox append failed", "event", domain.EventUserRegistered, "error", err)
		}
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return s.getByID(ctx, u.ID)
}

// Authenticate verifies an email/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	doc, err := s.store.Get(ctx, store.EntityUsers, store.Filter{"email": email})
	if err != nil {
		return nil, domain.ErrInternal("fetch user", err)
	}
	if doc == nil {
		return nil, domain.ErrUserNotFound(email)
	}
	var u domain.User
	if err := store.Decode(doc, &u); err != nil {
		return nil, domain.ErrInternal("decode user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrIncorrectPassword()
	}
	return &u, nil
}

// Fetch lists accounts visible to the caller: admins see everyone, a
// regular caller only itself.
func (s *Service) Fetch(ctx context.Context, ident scope.Identity, page store.Page) ([]domain.User, error) {
	docs, err := s.store.Find(ctx, store.EntityUsers, scope.Users(ident), page)
	if err != nil {
		return nil, domain.ErrInternal("find users", err)
	}
	users, err := store.DecodeAll[domain.User](docs)
	if err != nil {
		return nil, domain.ErrInternal("decode users", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// FetchByID returns one account within the caller's scope.
func (s *Service) FetchByID(ctx context.Context, ident scope.Identity, id string) (*domain.User, error) {
	filter := scope.Merge(store.Filter{"id": id}, scope.Users(ident))
	doc, err := s.store.Get(ctx, store.EntityUsers, filter)
	if err != nil {
		return nil, domain.ErrInternal("fetch user", err)
	}
	if doc == nil {
		return nil, domain.ErrUserNotFound(id)
	}
	var u domain.User
	if err := store.Decode(doc, &u); err != nil {
		return nil, domain.ErrInternal("decode user", err)
	}
	return u.Redacted(), nil
}

func (s *Service) getByID(ctx context.Context, id string) (*domain.User, error) {
	return s.FetchByID(ctx, scope.Identity{Roles: []domain.Role{domain.RoleAdmin}}, id)
}

// UpdateRequest holds the updatable account fields. Roles may only be
// widened by an admin.
type UpdateRequest struct {
	Email    string
	Password string
	Roles    []domain.Role
}

// UpdateByID applies a partial update within the caller's scope.
func (s *Service) UpdateByID(ctx context.Context, ident scope.Identity, id string, req UpdateRequest) error {
	set := map[string]any{}
	if req.Email != "" {
		if err := domain.ValidateEmail(req.Email); err != nil {
			return domain.ErrInvalidInput(err.Error())
		}
		set["email"] = req.Email
	}
	if req.Password != "" {
		if err := domain.ValidatePassword(req.Password); err != nil {
			return domain.ErrInvalidInput(err.Error())
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.ErrInternal("hash password", err)
		}
		set["passwordHash"] = string(hash)
	}
	if len(req.Roles) > 0 {
		if err := domain.ValidateRoles(req.Roles); err != nil {
			return domain.ErrInvalidInput(err.Error())
		}
		if !ident.IsAdmin() {
			for _, r := range req.Roles {
				if r == domain.RoleAdmin {
					return domain.ErrInadequatePermissions()
				}
			}
		}
		set["roles"] = req.Roles
	}

	if len(set) == 0 {
		return domain.ErrNothingToUpdate()
	}

	filter := scope.Merge(store.Filter{"id": id}, scope.Users(ident))
	matched, err := s.store.ConditionalUpdate(ctx, store.EntityUsers, filter, store.Mutation{Set: set})
	if err != nil {
		if err == store.ErrConflict {
			return domain.ErrEmailTaken(req.Email)
		}
		return domain.ErrInternal("update user", err)
	}
	if matched == 0 {
		return domain.ErrUserNotFound(id)
	}
	return nil
}

// DeleteByID removes an account and tears down everything it owns: each
// owned team goes through the team cascade, then the record itself.
func (s *Service) DeleteByID(ctx context.Context, ident scope.Identity, id string) error {
	u, err := s.FetchByID(ctx, ident, id)
	if err != nil {
		return err
	}

	// Teams are deleted as the owner so scoping stays consistent even when
	// an admin performs the delete.
	ownerIdent := scope.Identity{UserID: u.ID, Roles: u.Roles}
	for _, teamID := range u.TeamIDs {
		if err := s.teams.Delete(ctx, ownerIdent, teamID); err != nil {
			return err
		}
	}

	if _, err := s.store.Delete(ctx, store.EntityUsers, store.Filter{"id": u.ID}); err != nil {
		return domain.ErrInternal("delete user", err)
	}

	s.logger.Info("user deleted", "user_id", u.ID)
	return nil
}
