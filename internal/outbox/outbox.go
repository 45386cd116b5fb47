// Package outbox carries domain events out of the engine. Events are
// appended to the store after an operation's terminal step and relayed to
// Kafka by a polling worker; losing one never affects core invariants.
package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/store"
)

// Appender writes event documents to the outbox entity.
type Appender struct {
	store store.Store
	clock clockwork.Clock
}

// NewAppender creates an outbox appender.
func NewAppender(st store.Store, clock clockwork.Clock) *Appender {
	return &Appender{store: st, clock: clock}
}

// Append stores an event. Callers treat failures as best-effort: log and
// move on, the store documents stay authoritative.
func (a *Appender) Append(ctx context.Context, evType domain.EventType, aggregateType, aggregateID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := domain.Event{
		ID:            uuid.New().String(),
		Type:          evType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       raw,
		OccurredAt:    a.clock.Now().UTC(),
	}
	doc, err := store.Encode(ev)
	if err != nil {
		return err
	}
	return a.store.Insert(ctx, store.EntityOutbox, doc)
}

// Publisher is the messaging seam the worker publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Worker polls the outbox and relays events to the publisher, deleting
// rows only after a successful publish (at-least-once delivery).
type Worker struct {
	store     store.Store
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewWorker creates a relay worker.
func NewWorker(st store.Store, publisher Publisher, topic string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Worker {
	return &Worker{
		store:     st,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		batchSize: 100,
		clock:     clock,
		logger:    logger,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := w.Drain(ctx); err != nil {
				w.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of pending events.
func (w *Worker) Drain(ctx context.Context) error {
	docs, err := w.store.Find(ctx, store.EntityOutbox, nil, store.Page{Limit: w.batchSize})
	if err != nil {
		return err
	}

	for _, doc := range docs {
		var ev domain.Event
		if err := store.Decode(doc, &ev); err != nil {
			return err
		}
		value, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := w.publisher.Publish(ctx, w.topic, []byte(ev.AggregateID), value); err != nil {
			return err
		}
		if _, err := w.store.Delete(ctx, store.EntityOutbox, store.Filter{"id": ev.ID}); err != nil {
			return err
		}
	}
	return nil
}
