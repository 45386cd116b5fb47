package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies a domain event carried through the outbox.
type EventType string

const (
	EventTransferOpened   EventType = "transfer.opened"
	EventTransferComplete EventType = "transfer.completed"
	EventTeamCreated      EventType = "team.created"
	EventTeamDeleted      EventType = "team.deleted"
	EventUserRegistered   EventType = "user.registered"
)

// Event is an outbox row awaiting publication. Losing one never affects
// core invariants; the store documents stay authoritative.
type Event struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// TransferCompletedPayload is the payload of EventTransferComplete.
type TransferCompletedPayload struct {
	TransferID  string `json:"transferId"`
	PlayerID    string `json:"playerId"`
	FromTeamID  string `json:"fromTeamId"`
	ToTeamID    string `json:"toTeamId"`
	BuyNowPrice int64  `json:"buyNowPrice"`
}

// TransferOpenedPayload is the payload of EventTransferOpened.
type TransferOpenedPayload struct {
	TransferID  string `json:"transferId"`
	PlayerID    string `json:"playerId"`
	FromTeamID  string `json:"fromTeamId"`
	BuyNowPrice int64  `json:"buyNowPrice"`
}
