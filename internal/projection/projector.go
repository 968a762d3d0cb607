package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/metrics"
)

// Projector applies committed events to one family of read models. Project
// must be idempotent: an event it has already applied is skipped, and an event
// whose predecessor is missing is refused with ErrVersionGap.
type Projector interface {
	Name() string
	Project(ctx context.Context, event store.Event) error
}

// ErrVersionGap means an event arrived before the one preceding it in its
// stream was projected. Nothing is written; replaying the stream with Rebuild
// fills the hole.
var ErrVersionGap = errors.New("version gap")

// checkVersion decides what to do with the event at version given the last
// version applied for its stream. It returns store.ErrNoChange for a
// redelivery.
func checkVersion(streamID string, last, version int) error {
	switch {
	case version <= last:
		return store.ErrNoChange
	case version > last+1:
		return fmt.Errorf("%w: stream %s at version %d, got %d", ErrVersionGap, streamID, last, version)
	}
	return nil
}

// Dispatcher fans each event out to every registered projector in order.
type Dispatcher struct {
	projectors []Projector
	log        *slog.Logger
	metrics    *metrics.Metrics
}

func NewDispatcher(log *slog.Logger, m *metrics.Metrics, projectors ...Projector) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		projectors: projectors,
		log:        log.With(slog.String("component", "projector")),
		metrics:    m,
	}
}

// Project runs every projector even when one fails and returns the joined
// failures.
func (d *Dispatcher) Project(ctx context.Context, event store.Event) error {
	var errs []error
	for _, p := range d.projectors {
		if err := p.Project(ctx, event); err != nil {
			d.metrics.ProjectionFailed(p.Name())
			d.log.Error("projection failed",
				slog.String("projector", p.Name()),
				slog.String("stream", event.AggregateID),
				slog.Int("version", event.Version),
				slog.String("event_type", event.EventType),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ProjectAll projects events in order.
func (d *Dispatcher) ProjectAll(ctx context.Context, events []store.Event) error {
	var errs []error
	for _, event := range events {
		if err := d.Project(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleEvent decodes a published event and projects it. It matches the Kafka
// consumer's message handler.
func (d *Dispatcher) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to decode event %s: %w", key, err)
	}

	d.log.Debug("received event",
		slog.String("event_type", event.EventType),
		slog.String("aggregate_type", event.AggregateType),
		slog.String("stream", event.AggregateID),
	)
	return d.Project(ctx, event)
}

// Rebuild re-projects streams from the event log. Projectors skip what they
// have already applied and pick up from the first missing version, so
// rebuilding over live read models is safe.
func Rebuild(ctx context.Context, eventStore store.EventStoreInterface, dispatcher *Dispatcher, streamIDs ...string) error {
	for _, id := range streamIDs {
		events, err := eventStore.LoadEvents(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load stream %s: %w", id, err)
		}
		if err := dispatcher.ProjectAll(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

// EventScanner lists the committed events of one aggregate type, each stream in
// version order. The memory and Postgres event stores implement it.
type EventScanner interface {
	LoadEventsByType(ctx context.Context, aggregateType string) ([]store.Event, error)
}

// RebuildTypes re-projects every stream of the given aggregate types. A type
// that fails to load is reported and the rest still run.
func RebuildTypes(ctx context.Context, scanner EventScanner, dispatcher *Dispatcher, aggregateTypes ...string) error {
	var errs []error
	for _, aggregateType := range aggregateTypes {
		events, err := scanner.LoadEventsByType(ctx, aggregateType)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load %s events: %w", aggregateType, err))
			continue
		}
		if err := dispatcher.ProjectAll(ctx, events); err != nil {
			errs = append(errs, err)
			continue
		}
		dispatcher.log.Info("read models rebuilt", slog.String("aggregate_type", aggregateType), slog.Int("events", len(events)))
	}
	return errors.Join(errs...)
}

// insertOnce inserts the document for a creation event. A document that already
// exists means the event was delivered before.
func insertOnce[T any](ctx context.Context, rs store.ReadStoreInterface, collection, id string, doc *T) error {
	err := store.InsertDocument(ctx, rs, collection, id, doc)
	if errors.Is(err, store.ErrDocumentExists) {
		return nil
	}
	return err
}

// updateDashboard applies a non-creation event to a per-aggregate read model.
// A missing document means the creation event has not been projected yet,
// which is reported as a gap.
func updateDashboard[T any](ctx context.Context, rs store.ReadStoreInterface, collection string, event store.Event, fn func(doc *T) error) error {
	err := store.UpdateDocument(ctx, rs, collection, event.AggregateID, fn)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return fmt.Errorf("%w: stream %s has no read model, got version %d: %w", ErrVersionGap, event.AggregateID, event.Version, err)
	}
	return err
}
