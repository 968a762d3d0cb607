// Package kinesis turns DynamoDB event-table change records, delivered through
// a Kinesis stream, back into store events for the projectors.
package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/example/es-saga-course/internal/infrastructure/store"
)

var ErrIncompleteImage = errors.New("stream image is missing event fields")

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams format)
// to an event. It returns ok=false for records that are not event inserts.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (store.Event, bool, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return store.Event{}, false, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record. Events are
// append-only, so only INSERT carries anything to project.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (store.Event, bool, error) {
	if record.EventName != "INSERT" {
		return store.Event{}, false, nil
	}
	event, err := convertDynamoDBImage(record.Change.NewImage)
	if err != nil {
		return store.Event{}, false, err
	}
	return event, true, nil
}

// convertDynamoDBImage reads the attributes DynamoEventStore writes.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (store.Event, error) {
	if image == nil {
		return store.Event{}, fmt.Errorf("%w: image is nil", ErrIncompleteImage)
	}

	var event store.Event
	str := func(key string) string {
		if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}
	event.ID = str("id")
	event.AggregateID = str("aggregate_id")
	event.AggregateType = str("aggregate_type")
	event.EventType = str("event_type")
	event.Data = json.RawMessage(str("data"))

	if raw := str("created_at"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return store.Event{}, fmt.Errorf("failed to parse created_at: %w", err)
		}
		event.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return store.Event{}, fmt.Errorf("failed to parse version: %w", err)
		}
		event.Version = int(version)
	}

	if event.ID == "" || event.AggregateID == "" || event.EventType == "" || event.Version < 1 {
		return store.Event{}, fmt.Errorf("%w: id=%q aggregate_id=%q event_type=%q version=%d",
			ErrIncompleteImage, event.ID, event.AggregateID, event.EventType, event.Version)
	}
	return event, nil
}

// EventProjector applies one event to the read side.
type EventProjector interface {
	Project(ctx context.Context, event store.Event) error
}

// Handler is the Lambda entry point for a Kinesis batch.
type Handler struct {
	projector EventProjector
	log       *slog.Logger
}

func NewHandler(projector EventProjector, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{projector: projector, log: log.With(slog.String("component", "kinesis"))}
}

// Handle projects records in shard order. On the first failure it reports that
// record and stops: Lambda retries from the lowest failed sequence number, and
// projecting later records of the same stream first would make the dashboards
// skip the failed version.
func (h *Handler) Handle(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	var resp events.KinesisEventResponse
	processed := 0

	for _, record := range batch.Records {
		event, ok, err := ConvertFromKinesisRecord(record)
		if err == nil && ok {
			err = h.projector.Project(ctx, event)
		}
		if err != nil {
			h.log.Error("record failed, retrying from here",
				slog.String("record", record.EventID),
				slog.String("sequence", record.Kinesis.SequenceNumber),
				slog.Any("error", err),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			break
		}
		processed++
	}

	h.log.Info("batch processed", slog.Int("records", len(batch.Records)), slog.Int("succeeded", processed))
	return resp, nil
}
