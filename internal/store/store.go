// Package store is the persistent-store seam of the engine: per-entity
// CRUD plus a conditional update that is the only atomicity primitive the
// core may rely on. Filters encode preconditions; the matched count of a
// conditional update, not any preceding read, is the authoritative answer
// to whether a precondition held.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Entity collection names.
const (
	EntityUsers     = "users"
	EntityTeams     = "teams"
	EntityPlayers   = "players"
	EntityTransfers = "transfers"
	EntityOutbox    = "outbox"
)

// ErrConflict reports a unique-index violation on insert.
var ErrConflict = errors.New("store: unique index conflict")

var (
	errMissingID     = errors.New("store: document has no id")
	errEmptyMutation = errors.New("store: empty mutation")
)

// Document is a stored record in JSON shape: numbers are float64, nested
// records are maps, arrays are []any.
type Document = map[string]any

// Cmp is a numeric or lexicographic comparison on an indexed field.
type Cmp struct {
	Op    string // lte, gte, lt, gt, eq
	Value any
}

// In matches a scalar field against a set of values.
type In []string

// Missing matches a field that is absent or null.
type Missing struct{}

// Filter maps dotted field paths to conditions. A plain value means
// equality; matching an array field means containment.
type Filter map[string]any

// Page bounds a Find.
type Page struct {
	Skip  int
	Limit int
}

// Mutation is a single-document update. Set/Unset/Inc apply field writes;
// AddToSet and Pull edit array membership. When an AddToSet element is
// already present, or a Pull element is absent, the whole mutation is a
// no-op for that document while the document still counts as matched —
// this is what lets a roster ledger combine "add to set" and "increment
// value" without ever double-counting.
type Mutation struct {
	Set      map[string]any
	Unset    []string
	Inc      map[string]int64
	AddToSet map[string]string
	Pull     map[string]string
}

func (m Mutation) empty() bool {
	return len(m.Set) == 0 && len(m.Unset) == 0 && len(m.Inc) == 0 &&
		len(m.AddToSet) == 0 && len(m.Pull) == 0
}

// Store is the narrow persistence interface the core consumes. Every
// implementation guarantees per-document atomicity of ConditionalUpdate
// and nothing beyond it.
type Store interface {
	// Get returns the first document matching filter, or nil when none does.
	Get(ctx context.Context, entity string, filter Filter) (Document, error)

	// Find returns matching documents in stable id order.
	Find(ctx context.Context, entity string, filter Filter, page Page) ([]Document, error)

	// Insert stores a document; the document must carry a string "id".
	Insert(ctx context.Context, entity string, doc Document) error

	// ConditionalUpdate applies the mutation to every document matching
	// filter, each atomically, and returns how many matched.
	ConditionalUpdate(ctx context.Context, entity string, filter Filter, m Mutation) (int64, error)

	// Delete removes matching documents and returns how many were removed.
	Delete(ctx context.Context, entity string, filter Filter) (int64, error)
}

// Encode converts a domain value into its document shape.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode converts a document back into a domain value.
func Decode(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// DecodeAll decodes a Find result into a slice of T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := Decode(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
