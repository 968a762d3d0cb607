package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/es-saga-course/internal/infrastructure/store"
)

func eventImage(id, aggregateID string, version string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute(id),
		"aggregate_id":   events.NewStringAttribute(aggregateID),
		"aggregate_type": events.NewStringAttribute("Account"),
		"event_type":     events.NewStringAttribute("MoneyDeposited"),
		"data":           events.NewStringAttribute(`{"amount":1000}`),
		"created_at":     events.NewStringAttribute("2024-01-15T10:30:00.123456789Z"),
		"version":        events.NewNumberAttribute(version),
	}
}

func kinesisRecord(t *testing.T, seq string, rec events.DynamoDBEventRecord) events.KinesisEventRecord {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return events.KinesisEventRecord{
		EventID: "shard-0:" + seq,
		Kinesis: events.KinesisRecord{Data: data, SequenceNumber: seq},
	}
}

func insert(image map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{EventName: "INSERT", Change: events.DynamoDBStreamRecord{NewImage: image}}
}

// ============================================
// Conversion Tests
// ============================================

func TestConvertDynamoDBImage(t *testing.T) {
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		wantErr bool
	}{
		{name: "valid event", image: eventImage("event-123", "acc-1", "2")},
		{name: "nil image", image: nil, wantErr: true},
		{name: "missing required fields", image: map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("event-123")}, wantErr: true},
		{name: "version zero", image: eventImage("event-123", "acc-1", "0"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := convertDynamoDBImage(tt.image)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncompleteImage)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "event-123", event.ID)
			assert.Equal(t, "acc-1", event.AggregateID)
			assert.Equal(t, "Account", event.AggregateType)
			assert.Equal(t, "MoneyDeposited", event.EventType)
			assert.Equal(t, 2, event.Version)
			assert.JSONEq(t, `{"amount":1000}`, string(event.Data))
			assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC), event.Timestamp)
		})
	}
}

func TestConvertFromDynamoDBStreamRecord(t *testing.T) {
	event, ok, err := ConvertFromDynamoDBStreamRecord(insert(eventImage("event-123", "acc-1", "1")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "event-123", event.ID)

	for _, name := range []string{"MODIFY", "REMOVE"} {
		_, ok, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{EventName: name})
		require.NoError(t, err, name)
		assert.False(t, ok, name)
	}
}

func TestConvertFromKinesisRecord(t *testing.T) {
	event, ok, err := ConvertFromKinesisRecord(kinesisRecord(t, "1", insert(eventImage("event-123", "acc-1", "1"))))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "event-123", event.ID)

	_, _, err = ConvertFromKinesisRecord(events.KinesisEventRecord{Kinesis: events.KinesisRecord{Data: []byte("invalid json")}})
	assert.Error(t, err)
}

// ============================================
// Handler Tests
// ============================================

type projectorFunc func(ctx context.Context, event store.Event) error

func (f projectorFunc) Project(ctx context.Context, event store.Event) error { return f(ctx, event) }

func TestHandler_ProjectsInsertsInOrder(t *testing.T) {
	var seen []string
	h := NewHandler(projectorFunc(func(_ context.Context, e store.Event) error {
		seen = append(seen, e.ID)
		return nil
	}), nil)

	resp, err := h.Handle(context.Background(), events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", insert(eventImage("e-1", "acc-1", "1"))),
		kinesisRecord(t, "2", events.DynamoDBEventRecord{EventName: "MODIFY"}),
		kinesisRecord(t, "3", insert(eventImage("e-2", "acc-1", "2"))),
	}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, []string{"e-1", "e-2"}, seen)
}

func TestHandler_StopsAtFirstFailure(t *testing.T) {
	var seen []string
	h := NewHandler(projectorFunc(func(_ context.Context, e store.Event) error {
		seen = append(seen, e.ID)
		if e.ID == "e-2" {
			return errors.New("read store down")
		}
		return nil
	}), nil)

	resp, err := h.Handle(context.Background(), events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", insert(eventImage("e-1", "acc-1", "1"))),
		kinesisRecord(t, "2", insert(eventImage("e-2", "acc-1", "2"))),
		kinesisRecord(t, "3", insert(eventImage("e-3", "acc-1", "3"))),
	}})

	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "2", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, []string{"e-1", "e-2"}, seen)
}

func TestHandler_UndecodableRecordIsReported(t *testing.T) {
	h := NewHandler(projectorFunc(func(context.Context, store.Event) error { return nil }), nil)

	resp, err := h.Handle(context.Background(), events.KinesisEvent{Records: []events.KinesisEventRecord{
		{EventID: "bad", Kinesis: events.KinesisRecord{Data: []byte("{"), SequenceNumber: "7"}},
	}})

	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "7", resp.BatchItemFailures[0].ItemIdentifier)
}
