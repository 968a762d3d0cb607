package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// NewEvent encodes payload and stamps a fresh event for the given stream position.
func NewEvent(aggregateID, aggregateType, eventType string, version int, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
		Timestamp:     time.Now().UTC(),
		Version:       version,
	}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s v%d: %w", e.EventType, e.Version, err)
	}
	return nil
}

// CommitResult describes a successfully appended batch.
type CommitResult struct {
	StreamID    string
	FromVersion int
	ToVersion   int
	Events      []Event
}

// EventStore is the in-memory event store. Committed events are optionally
// handed to a Publisher after the write lock is released.
type EventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	snapshots map[string]Snapshot
	publisher Publisher
	log       *slog.Logger
}

func NewEventStore(publisher Publisher, log *slog.Logger) *EventStore {
	if log == nil {
		log = slog.Default()
	}
	return &EventStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string]Snapshot),
		publisher: publisher,
		log:       log.With(slog.String("component", "event-store"), slog.String("backend", "memory")),
	}
}

// Append stores the batch if the stream head equals expectedVersion.
func (es *EventStore) Append(ctx context.Context, streamID string, expectedVersion int, events []Event) (*CommitResult, error) {
	if err := validateBatch(streamID, expectedVersion, events); err != nil {
		return nil, err
	}

	es.mu.Lock()
	head := len(es.events[streamID])
	if head != expectedVersion {
		es.mu.Unlock()
		return nil, &ConcurrencyError{StreamID: streamID, Expected: expectedVersion, Actual: head}
	}
	committed := make([]Event, len(events))
	copy(committed, events)
	es.events[streamID] = append(es.events[streamID], committed...)
	es.mu.Unlock()

	es.log.Debug("appended",
		slog.String("stream", streamID),
		slog.Int("from_version", expectedVersion+1),
		slog.Int("to_version", expectedVersion+len(committed)),
	)

	publishCommitted(ctx, es.publisher, es.log, committed)

	return newCommitResult(streamID, committed), nil
}

// LoadEvents returns all events for a stream, version ascending.
func (es *EventStore) LoadEvents(ctx context.Context, streamID string) ([]Event, error) {
	return es.LoadEventsFromVersion(ctx, streamID, 0)
}

// LoadEventsFromVersion returns the events whose version is greater than afterVersion.
func (es *EventStore) LoadEventsFromVersion(_ context.Context, streamID string, afterVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	stream := es.events[streamID]
	if afterVersion >= len(stream) {
		return []Event{}, nil
	}
	if afterVersion < 0 {
		afterVersion = 0
	}
	out := make([]Event, len(stream)-afterVersion)
	copy(out, stream[afterVersion:])
	return out, nil
}

// CountEvents returns the number of events in a stream.
func (es *EventStore) CountEvents(_ context.Context, streamID string) (int, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.events[streamID]), nil
}

// LoadLatestSnapshot returns the stored snapshot or nil.
func (es *EventStore) LoadLatestSnapshot(_ context.Context, streamID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	snap, ok := es.snapshots[streamID]
	if !ok {
		return nil, nil
	}
	snap.State = append(json.RawMessage(nil), snap.State...)
	return &snap, nil
}

// SaveSnapshot replaces the stream's snapshot unless the stored one is newer.
func (es *EventStore) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if current, ok := es.snapshots[snapshot.AggregateID]; ok && current.Version > snapshot.Version {
		return nil
	}
	saved := *snapshot
	saved.State = append(json.RawMessage(nil), snapshot.State...)
	es.snapshots[snapshot.AggregateID] = saved
	return nil
}

// LoadEventsByType returns every event of an aggregate type, stream by stream
// in id order, each stream in version order.
func (es *EventStore) LoadEventsByType(_ context.Context, aggregateType string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var all []Event
	for _, id := range slices.Sorted(maps.Keys(es.events)) {
		stream := es.events[id]
		if len(stream) == 0 || stream[0].AggregateType != aggregateType {
			continue
		}
		all = append(all, stream...)
	}
	return all, nil
}

var _ EventStoreInterface = (*EventStore)(nil)
