package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/es-saga-course/internal/infrastructure/store"
)

var (
	ErrEmptyHistory     = errors.New("empty event history")
	ErrNotFound         = errors.New("aggregate not found")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrVersionGap       = errors.New("event version gap")
)

// Aggregate defines the interface for event-sourced aggregates. Implementations
// embed Base, which carries the version and the uncommitted buffer.
type Aggregate interface {
	GetID() string
	GetVersion() int
	AggregateType() string
	// ApplyEvent folds one event into state. It must not touch the version.
	ApplyEvent(store.Event) error
	Uncommitted() []store.Event
	ClearUncommitted()
	root() *Base
}

// Base is embedded by every aggregate.
type Base struct {
	Version int `json:"version"`

	uncommitted     []store.Event
	snapshotVersion int
}

func (b *Base) GetVersion() int { return b.Version }

// Uncommitted returns events recorded since the last ClearUncommitted.
func (b *Base) Uncommitted() []store.Event {
	out := make([]store.Event, len(b.uncommitted))
	copy(out, b.uncommitted)
	return out
}

func (b *Base) ClearUncommitted() { b.uncommitted = nil }

// SnapshotVersion is the version of the snapshot this instance was loaded from
// or last saved, 0 if none.
func (b *Base) SnapshotVersion() int { return b.snapshotVersion }

func (b *Base) root() *Base { return b }

// DomainStateError is returned when a command is invalid in the aggregate's
// current state. Nothing is recorded when it is returned.
type DomainStateError struct {
	AggregateType string
	AggregateID   string
	Command       string
	Err           error
}

func (e *DomainStateError) Error() string {
	return fmt.Sprintf("%s %s: %s rejected: %v", e.AggregateType, e.AggregateID, e.Command, e.Err)
}

func (e *DomainStateError) Unwrap() error { return e.Err }

// Reject builds a DomainStateError for agg.
func Reject(agg Aggregate, command string, err error) error {
	return &DomainStateError{
		AggregateType: agg.AggregateType(),
		AggregateID:   agg.GetID(),
		Command:       command,
		Err:           err,
	}
}

// Record builds the next event for agg, applies it and buffers it.
func Record(agg Aggregate, eventType string, payload any) error {
	return record(agg, agg.GetID(), eventType, payload)
}

// RecordNew is Record for creation events, where the aggregate has no id until
// the event is applied.
func RecordNew(agg Aggregate, id, eventType string, payload any) error {
	return record(agg, id, eventType, payload)
}

func record(agg Aggregate, id, eventType string, payload any) error {
	b := agg.root()
	event, err := store.NewEvent(id, agg.AggregateType(), eventType, b.Version+1, payload)
	if err != nil {
		return err
	}
	if err := Apply(agg, event); err != nil {
		return err
	}
	b.uncommitted = append(b.uncommitted, event)
	return nil
}

// Apply folds one committed event into agg, enforcing gapless versions.
func Apply(agg Aggregate, event store.Event) error {
	b := agg.root()
	if event.Version != b.Version+1 {
		return fmt.Errorf("%w: %s at version %d received v%d", ErrVersionGap, event.AggregateID, b.Version, event.Version)
	}
	if err := agg.ApplyEvent(event); err != nil {
		return err
	}
	b.Version = event.Version
	return nil
}

// Replay folds events into agg in order.
func Replay(agg Aggregate, events []store.Event) error {
	for _, event := range events {
		if err := Apply(agg, event); err != nil {
			return err
		}
	}
	return nil
}

// ReplayFrom rebuilds a fresh aggregate from its full history.
func ReplayFrom[T Aggregate](events []store.Event, newAggregate func() T) (T, error) {
	var zero T
	if len(events) == 0 {
		return zero, ErrEmptyHistory
	}
	agg := newAggregate()
	if err := Replay(agg, events); err != nil {
		return zero, err
	}
	return agg, nil
}

// Load rebuilds an aggregate from its latest snapshot plus the events after it.
// An undecodable or inconsistent snapshot is ignored with a warning on log and
// the full stream is replayed instead. A nil log uses slog.Default().
func Load[T Aggregate](ctx context.Context, eventStore store.EventStoreInterface, id string, newAggregate func() T, log *slog.Logger) (T, error) {
	var zero T
	if log == nil {
		log = slog.Default()
	}

	snapshot, err := eventStore.LoadLatestSnapshot(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if snapshot != nil {
		agg, err := fromSnapshot(snapshot, id, newAggregate)
		if err == nil {
			events, err := eventStore.LoadEventsFromVersion(ctx, id, snapshot.Version)
			if err != nil {
				return zero, fmt.Errorf("failed to load events: %w", err)
			}
			if err := Replay(agg, events); err != nil {
				return zero, fmt.Errorf("failed to apply event: %w", err)
			}
			return agg, nil
		}
		log.Warn("ignoring snapshot, replaying full stream",
			slog.String("aggregate_id", id),
			slog.Int("snapshot_version", snapshot.Version),
			slog.Any("error", err),
		)
	}

	events, err := eventStore.LoadEvents(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("failed to load events: %w", err)
	}
	if len(events) == 0 {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	agg, err := ReplayFrom(events, newAggregate)
	if err != nil {
		return zero, fmt.Errorf("failed to apply event: %w", err)
	}
	return agg, nil
}

func fromSnapshot[T Aggregate](snapshot *store.Snapshot, id string, newAggregate func() T) (T, error) {
	agg := newAggregate()
	if err := json.Unmarshal(snapshot.State, agg); err != nil {
		return agg, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if agg.GetID() != id || agg.GetVersion() != snapshot.Version {
		return agg, fmt.Errorf("%w: state is %s v%d", store.ErrInvalidSnapshot, agg.GetID(), agg.GetVersion())
	}
	agg.root().snapshotVersion = snapshot.Version
	return agg, nil
}

// MaybeCreateSnapshot saves a snapshot once threshold events have accumulated
// since the last one. It reports whether a snapshot was written.
func MaybeCreateSnapshot(ctx context.Context, eventStore store.EventStoreInterface, agg Aggregate, threshold int) (bool, error) {
	b := agg.root()
	if threshold <= 0 || b.Version-b.snapshotVersion < threshold {
		return false, nil
	}

	state, err := json.Marshal(agg)
	if err != nil {
		return false, fmt.Errorf("failed to marshal aggregate state: %w", err)
	}

	snapshot := &store.Snapshot{
		AggregateID:   agg.GetID(),
		AggregateType: agg.AggregateType(),
		Version:       b.Version,
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}
	if err := eventStore.SaveSnapshot(ctx, snapshot); err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}
	b.snapshotVersion = b.Version
	return true, nil
}
