package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/es-saga-course/internal/infrastructure/store"
)

// MockEventStore wraps the in-memory EventStore and records calls. Errors set
// on the exported fields are returned instead of touching the store.
type MockEventStore struct {
	mu    sync.Mutex
	inner *store.EventStore

	AppendCalls       []AppendCall
	AppendErr         error
	LoadErr           error
	SnapshotLoadErr   error
	SaveSnapshotErr   error
	SaveSnapshotCalls []store.Snapshot

	// BeforeAppend runs before the version check; tests use it to race a
	// concurrent writer in between load and append.
	BeforeAppend func(streamID string, expectedVersion int)
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	StreamID        string
	ExpectedVersion int
	EventTypes      []string
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{inner: store.NewEventStore(nil, nil)}
}

func (m *MockEventStore) Append(ctx context.Context, streamID string, expectedVersion int, events []store.Event) (*store.CommitResult, error) {
	m.mu.Lock()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	m.AppendCalls = append(m.AppendCalls, AppendCall{StreamID: streamID, ExpectedVersion: expectedVersion, EventTypes: types})
	err := m.AppendErr
	hook := m.BeforeAppend
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook(streamID, expectedVersion)
	}
	return m.inner.Append(ctx, streamID, expectedVersion, events)
}

func (m *MockEventStore) LoadEvents(ctx context.Context, streamID string) ([]store.Event, error) {
	if err := m.loadErr(); err != nil {
		return nil, err
	}
	return m.inner.LoadEvents(ctx, streamID)
}

func (m *MockEventStore) LoadEventsFromVersion(ctx context.Context, streamID string, afterVersion int) ([]store.Event, error) {
	if err := m.loadErr(); err != nil {
		return nil, err
	}
	return m.inner.LoadEventsFromVersion(ctx, streamID, afterVersion)
}

func (m *MockEventStore) CountEvents(ctx context.Context, streamID string) (int, error) {
	return m.inner.CountEvents(ctx, streamID)
}

func (m *MockEventStore) LoadLatestSnapshot(ctx context.Context, streamID string) (*store.Snapshot, error) {
	m.mu.Lock()
	err := m.SnapshotLoadErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.LoadLatestSnapshot(ctx, streamID)
}

func (m *MockEventStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	err := m.SaveSnapshotErr
	if snapshot != nil {
		m.SaveSnapshotCalls = append(m.SaveSnapshotCalls, *snapshot)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.SaveSnapshot(ctx, snapshot)
}

// SetEvents seeds a stream, bypassing the version check.
func (m *MockEventStore) SetEvents(streamID string, events []store.Event) {
	ctx := context.Background()
	head, _ := m.inner.CountEvents(ctx, streamID)
	for i := range events {
		events[i].AggregateID = streamID
		events[i].Version = head + i + 1
	}
	if len(events) > 0 {
		_, _ = m.inner.Append(ctx, streamID, head, events)
	}
}

// SetSnapshot stores state as the stream's snapshot at version.
func (m *MockEventStore) SetSnapshot(streamID, aggregateType string, version int, state json.RawMessage) {
	_ = m.inner.SaveSnapshot(context.Background(), &store.Snapshot{
		AggregateID:   streamID,
		AggregateType: aggregateType,
		Version:       version,
		State:         state,
	})
}

// Events returns the committed stream.
func (m *MockEventStore) Events(streamID string) []store.Event {
	events, _ := m.inner.LoadEvents(context.Background(), streamID)
	return events
}

func (m *MockEventStore) LoadEventsByType(ctx context.Context, aggregateType string) ([]store.Event, error) {
	if err := m.loadErr(); err != nil {
		return nil, err
	}
	return m.inner.LoadEventsByType(ctx, aggregateType)
}

func (m *MockEventStore) loadErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LoadErr
}

var _ store.EventStoreInterface = (*MockEventStore)(nil)
