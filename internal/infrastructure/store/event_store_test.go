package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.err
}

func mustEvents(t *testing.T, streamID string, from int, types ...string) []Event {
	t.Helper()
	out := make([]Event, 0, len(types))
	for i, typ := range types {
		e, err := NewEvent(streamID, "Test", typ, from+i, map[string]int{"n": from + i})
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

// =============================================================================
// Append
// =============================================================================

func TestEventStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)

	res, err := es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "A", "B"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.FromVersion)
	assert.Equal(t, 2, res.ToVersion)

	res, err = es.Append(ctx, "s-1", 2, mustEvents(t, "s-1", 3, "C"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.ToVersion)

	events, err := es.LoadEvents(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Version)
	}

	n, err := es.CountEvents(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestEventStore_AppendStaleVersion(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	_, err := es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "A", "B", "C"))
	require.NoError(t, err)

	_, err = es.Append(ctx, "s-1", 2, mustEvents(t, "s-1", 3, "D"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConcurrencyConflict))

	var ce *ConcurrencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Expected)
	assert.Equal(t, 3, ce.Actual)

	events, _ := es.LoadEvents(ctx, "s-1")
	assert.Len(t, events, 3, "a rejected batch writes nothing")
}

func TestEventStore_AppendCreationTwice(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	_, err := es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "Created"))
	require.NoError(t, err)

	_, err = es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "Created"))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestEventStore_AppendInvalidBatch(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)

	gap := mustEvents(t, "s-1", 1, "A", "B")
	gap[1].Version = 3
	foreign := mustEvents(t, "other", 1, "A")
	untyped := mustEvents(t, "s-1", 1, "A")
	untyped[0].EventType = ""

	tests := []struct {
		name     string
		streamID string
		expected int
		events   []Event
		wantErr  error
	}{
		{"empty batch", "s-1", 0, nil, ErrNoEvents},
		{"empty stream id", "", 0, mustEvents(t, "", 1, "A"), ErrInvalidBatch},
		{"version gap", "s-1", 0, gap, ErrInvalidBatch},
		{"wrong stream", "s-1", 0, foreign, ErrInvalidBatch},
		{"missing type", "s-1", 0, untyped, ErrInvalidBatch},
		{"negative expected", "s-1", -1, mustEvents(t, "s-1", 0, "A"), ErrInvalidBatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := es.Append(ctx, tt.streamID, tt.expected, tt.events)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	n, _ := es.CountEvents(ctx, "s-1")
	assert.Zero(t, n)
}

func TestEventStore_ConcurrentAppendsOneWins(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	_, err := es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "Created"))
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, _ := NewEvent("s-1", "Test", "Changed", 2, nil)
			_, err := es.Append(ctx, "s-1", 1, []Event{e})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, ErrConcurrencyConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}

func TestEventStore_PublishesAfterCommit(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	es := NewEventStore(pub, nil)

	_, err := es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "A", "B"))
	require.NoError(t, err, "publish failures do not fail the commit")
	assert.Equal(t, []string{"s-1", "s-1"}, pub.keys)
}

func TestEventStore_LoadEventsFromVersion(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	_, err := es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "A", "B", "C", "D"))
	require.NoError(t, err)

	tail, err := es.LoadEventsFromVersion(ctx, "s-1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 3, tail[0].Version)

	none, err := es.LoadEventsFromVersion(ctx, "s-1", 4)
	require.NoError(t, err)
	assert.Empty(t, none)

	missing, err := es.LoadEvents(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestEventStore_LoadedEventsAreCopies(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	_, err := es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "A"))
	require.NoError(t, err)

	events, _ := es.LoadEvents(ctx, "s-1")
	events[0].EventType = "Mutated"

	again, _ := es.LoadEvents(ctx, "s-1")
	assert.Equal(t, "A", again[0].EventType)
}

func TestEventStore_LoadEventsByType(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	_, err := es.Append(ctx, "s-2", 0, mustEvents(t, "s-2", 1, "A", "B"))
	require.NoError(t, err)
	_, err = es.Append(ctx, "s-1", 0, mustEvents(t, "s-1", 1, "A"))
	require.NoError(t, err)
	other, err := NewEvent("o-1", "Other", "A", 1, nil)
	require.NoError(t, err)
	_, err = es.Append(ctx, "o-1", 0, []Event{other})
	require.NoError(t, err)

	events, err := es.LoadEventsByType(ctx, "Test")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"s-1", "s-2", "s-2"}, []string{events[0].AggregateID, events[1].AggregateID, events[2].AggregateID})
	assert.Equal(t, []int{1, 1, 2}, []int{events[0].Version, events[1].Version, events[2].Version})

	none, err := es.LoadEventsByType(ctx, "Missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// Snapshots
// =============================================================================

func TestEventStore_SnapshotNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)

	snap, err := es.LoadLatestSnapshot(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{AggregateID: "s-1", Version: 10, State: json.RawMessage(`{"v":10}`)}))
	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{AggregateID: "s-1", Version: 5, State: json.RawMessage(`{"v":5}`)}))

	snap, err = es.LoadLatestSnapshot(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 10, snap.Version)
	assert.JSONEq(t, `{"v":10}`, string(snap.State))

	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{AggregateID: "s-1", Version: 15, State: json.RawMessage(`{"v":15}`)}))
	snap, _ = es.LoadLatestSnapshot(ctx, "s-1")
	assert.Equal(t, 15, snap.Version)
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
		ok   bool
	}{
		{"valid", &Snapshot{AggregateID: "a", Version: 1, State: json.RawMessage(`{}`)}, true},
		{"nil", nil, false},
		{"no id", &Snapshot{Version: 1, State: json.RawMessage(`{}`)}, false},
		{"zero version", &Snapshot{AggregateID: "a", State: json.RawMessage(`{}`)}, false},
		{"bad state", &Snapshot{AggregateID: "a", Version: 1, State: json.RawMessage(`{`)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSnapshot)
			}
		})
	}
}

func TestSnapshotThreshold(t *testing.T) {
	assert.Equal(t, 5, DefaultSnapshotThreshold)
}
