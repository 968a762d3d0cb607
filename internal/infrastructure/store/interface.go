package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrNoEvents            = errors.New("no events to append")
	ErrInvalidBatch        = errors.New("invalid event batch")
)

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	// Append persists events atomically if the stream head equals expectedVersion.
	// A mismatch returns an error matching ErrConcurrencyConflict and writes nothing.
	Append(ctx context.Context, streamID string, expectedVersion int, events []Event) (*CommitResult, error)

	// LoadEvents returns the full stream ordered by version. An empty slice means
	// the stream does not exist.
	LoadEvents(ctx context.Context, streamID string) ([]Event, error)

	// LoadEventsFromVersion returns events with a version greater than afterVersion.
	LoadEventsFromVersion(ctx context.Context, streamID string, afterVersion int) ([]Event, error)

	// LoadLatestSnapshot returns nil, nil when the stream has no snapshot.
	LoadLatestSnapshot(ctx context.Context, streamID string) (*Snapshot, error)

	// SaveSnapshot overwrites the stream's latest snapshot; an older snapshot
	// than the stored one is ignored.
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	CountEvents(ctx context.Context, streamID string) (int, error)
}

// Publisher receives committed events. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ConcurrencyError is returned by Append when the expected version is stale.
type ConcurrencyError struct {
	StreamID string
	Expected int
	Actual   int // -1 when the backend cannot tell
}

func (e *ConcurrencyError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("concurrency conflict on stream %s: expected version %d", e.StreamID, e.Expected)
	}
	return fmt.Sprintf("concurrency conflict on stream %s: expected version %d, got %d", e.StreamID, e.Expected, e.Actual)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrencyConflict }

// validateBatch checks that events form the contiguous run
// expectedVersion+1..expectedVersion+len(events) of a single stream.
func validateBatch(streamID string, expectedVersion int, events []Event) error {
	if streamID == "" {
		return fmt.Errorf("%w: stream id is empty", ErrInvalidBatch)
	}
	if len(events) == 0 {
		return ErrNoEvents
	}
	if expectedVersion < 0 {
		return fmt.Errorf("%w: negative expected version %d", ErrInvalidBatch, expectedVersion)
	}
	for i, e := range events {
		if e.AggregateID != streamID {
			return fmt.Errorf("%w: event %d belongs to stream %q, not %q", ErrInvalidBatch, i, e.AggregateID, streamID)
		}
		if want := expectedVersion + i + 1; e.Version != want {
			return fmt.Errorf("%w: event %d has version %d, want %d", ErrInvalidBatch, i, e.Version, want)
		}
		if e.EventType == "" {
			return fmt.Errorf("%w: event %d has no type", ErrInvalidBatch, i)
		}
	}
	return nil
}

func newCommitResult(streamID string, events []Event) *CommitResult {
	return &CommitResult{
		StreamID:    streamID,
		FromVersion: events[0].Version,
		ToVersion:   events[len(events)-1].Version,
		Events:      events,
	}
}

// publishCommitted forwards committed events. The commit already happened, so a
// publish failure is logged and left to the downstream consumer's catch-up.
func publishCommitted(ctx context.Context, publisher Publisher, log *slog.Logger, events []Event) {
	if publisher == nil {
		return
	}
	for _, event := range events {
		if err := publisher.Publish(ctx, event.AggregateID, event); err != nil {
			log.Error("publish failed",
				slog.String("stream", event.AggregateID),
				slog.Int("version", event.Version),
				slog.String("event_type", event.EventType),
				slog.Any("error", err),
			)
		}
	}
}
