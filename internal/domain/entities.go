// Package domain holds the marketplace entities and the error vocabulary
// shared across services. Documents are stored denormalized: ownership is
// stamped onto players and transfers so authorization filters never need a
// join.
package domain

import "time"

// Role grants a capability class to a user.
type Role string

const (
	RoleRegular Role = "REGULAR"
	RoleAdmin   Role = "ADMIN"
)

// User is a registered account. TeamIDs lists the teams the user owns.
type User struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"passwordHash,omitempty"`
	Roles        []Role   `json:"roles"`
	TeamIDs      []string `json:"teams"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe to serialize to clients.
func (u *User) Redacted() *User {
	out := *u
	out.PasswordHash = ""
	return &out
}

// Team aggregates a roster. Value is the derived sum of rostered player
// valuations; Budget is spendable money.
type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Country   string   `json:"country"`
	Budget    int64    `json:"budget"`
	Value     int64    `json:"value"`
	OwnerID   string   `json:"ownerId"`
	PlayerIDs []string `json:"players"`
}

// HasPlayer reports roster membership.
func (t *Team) HasPlayer(playerID string) bool {
	for _, id := range t.PlayerIDs {
		if id == playerID {
			return true
		}
	}
	return false
}

// PlayerType is a squad position.
type PlayerType string

const (
	Goalkeeper PlayerType = "GOALKEEPER"
	Defender   PlayerType = "DEFENDER"
	Midfielder PlayerType = "MIDFIELDER"
	Attacker   PlayerType = "ATTACKER"
)

// PlayerTypes lists positions in squad order.
var PlayerTypes = []PlayerType{Goalkeeper, Defender, Midfielder, Attacker}

// ValidPlayerType reports whether t is a known position.
func ValidPlayerType(t PlayerType) bool {
	for _, pt := range PlayerTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// TeamRef is the ownership stamp denormalized onto players and transfers.
type TeamRef struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
}

// Player is a contracted or uncapped athlete. Team is nil while uncapped.
type Player struct {
	ID        string     `json:"id"`
	Type      PlayerType `json:"type"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Country   string     `json:"country"`
	Birthdate time.Time  `json:"birthdate"`
	Value     int64      `json:"value"`
	Team      *TeamRef   `json:"team,omitempty"`
}

// Uncapped reports whether the player has no contract.
func (p *Player) Uncapped() bool {
	return p.Team == nil || p.Team.ID == ""
}

// TransferStatus is the listing lifecycle state.
type TransferStatus string

const (
	TransferOpen     TransferStatus = "OPEN"
	TransferComplete TransferStatus = "COMPLETE"
)

// PlayerRef is the player snapshot embedded in a transfer listing.
type PlayerRef struct {
	ID        string     `json:"id"`
	Type      PlayerType `json:"type"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
}

// Transfer is a buy-now listing. InitiatorTeam carries the seller's
// ownership stamp; ToTeam is set when the transfer completes.
// ResaleValue is the marked-up valuation locked onto the listing before
// any roster effect of a settlement, so every settlement attempt prices
// the player identically.
type Transfer struct {
	ID            string         `json:"id"`
	Player        PlayerRef      `json:"player"`
	InitiatorTeam TeamRef        `json:"initiatorTeam"`
	BuyNowPrice   int64          `json:"buyNowPrice"`
	ResaleValue   int64          `json:"resaleValue,omitempty"`
	Status        TransferStatus `json:"status"`
	OpenedDate    time.Time      `json:"openedDate"`
	CompletedDate *time.Time     `json:"completedDate,omitempty"`
	ToTeam        *TeamRef       `json:"toTeam,omitempty"`
}
