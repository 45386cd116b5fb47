// Package scope is the authorization guard: a pure mapping from a caller
// identity to the query-filter fragment every store access is narrowed by.
// It never rejects on its own — an empty result set is the caller's
// "not found", not a permissions error.
package scope

import (
	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/store"
)

// Identity is the authenticated caller claim produced by the token issuer.
// The core trusts it verbatim.
type Identity struct {
	UserID string
	Roles  []domain.Role
}

// IsAdmin reports whether the identity carries the ADMIN role.
func (i Identity) IsAdmin() bool {
	for _, r := range i.Roles {
		if r == domain.RoleAdmin {
			return true
		}
	}
	return false
}

// Teams scopes team queries to teams the caller owns.
func Teams(i Identity) store.Filter {
	if i.IsAdmin() {
		return nil
	}
	return store.Filter{"ownerId": i.UserID}
}

// Players scopes player queries through the denormalized team-owner chain.
func Players(i Identity) store.Filter {
	if i.IsAdmin() {
		return nil
	}
	return store.Filter{"team.ownerId": i.UserID}
}

// Transfers scopes transfer queries to listings initiated by the caller's
// teams.
func Transfers(i Identity) store.Filter {
	if i.IsAdmin() {
		return nil
	}
	return store.Filter{"initiatorTeam.ownerId": i.UserID}
}

// Users scopes user queries to the caller's own record.
func Users(i Identity) store.Filter {
	if i.IsAdmin() {
		return nil
	}
	return store.Filter{"id": i.UserID}
}

// Merge overlays the scope fragment onto a base filter. Scope keys win so
// a caller cannot widen its visibility by supplying its own owner filter.
func Merge(base, scoped store.Filter) store.Filter {
	if len(scoped) == 0 {
		return base
	}
	out := make(store.Filter, len(base)+len(scoped))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range scoped {
		out[k] = v
	}
	return out
}
