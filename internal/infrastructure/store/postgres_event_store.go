package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgresEventStore stores events in PostgreSQL. The UNIQUE(aggregate_id, version)
// constraint on the events table is what makes concurrent appends safe.
type PostgresEventStore struct {
	db        *sql.DB
	publisher Publisher
	log       *slog.Logger
}

func NewPostgresEventStore(db *sql.DB, publisher Publisher, log *slog.Logger) *PostgresEventStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresEventStore{
		db:        db,
		publisher: publisher,
		log:       log.With(slog.String("component", "event-store"), slog.String("backend", "postgres")),
	}
}

// Append stores the batch in one transaction and publishes it after commit.
func (es *PostgresEventStore) Append(ctx context.Context, streamID string, expectedVersion int, events []Event) (*CommitResult, error) {
	if err := validateBatch(streamID, expectedVersion, events); err != nil {
		return nil, err
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var head int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1",
		streamID,
	).Scan(&head); err != nil {
		return nil, fmt.Errorf("failed to read stream head: %w", err)
	}
	if head != expectedVersion {
		return nil, &ConcurrencyError{StreamID: streamID, Expected: expectedVersion, Actual: head}
	}

	for _, event := range events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.EventType,
			[]byte(event.Data),
			event.Version,
			event.Timestamp,
		)
		if err != nil {
			if isUniqueViolation(err) {
				// Lost the race between the head read and the insert.
				return nil, &ConcurrencyError{StreamID: streamID, Expected: expectedVersion, Actual: -1}
			}
			return nil, fmt.Errorf("failed to insert event v%d: %w", event.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, &ConcurrencyError{StreamID: streamID, Expected: expectedVersion, Actual: -1}
		}
		return nil, fmt.Errorf("failed to commit append: %w", err)
	}

	publishCommitted(ctx, es.publisher, es.log, events)

	return newCommitResult(streamID, events), nil
}

// LoadEvents returns all events for an aggregate from PostgreSQL
func (es *PostgresEventStore) LoadEvents(ctx context.Context, streamID string) ([]Event, error) {
	return es.LoadEventsFromVersion(ctx, streamID, 0)
}

// LoadEventsFromVersion returns events after the given version.
func (es *PostgresEventStore) LoadEventsFromVersion(ctx context.Context, streamID string, afterVersion int) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events
		 WHERE aggregate_id = $1 AND version > $2
		 ORDER BY version ASC`,
		streamID, afterVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadEventsByType returns every event of an aggregate type, stream by stream,
// each stream in version order. Used to rebuild read models from the log.
func (es *PostgresEventStore) LoadEventsByType(ctx context.Context, aggregateType string) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events
		 WHERE aggregate_type = $1
		 ORDER BY aggregate_id ASC, version ASC`,
		aggregateType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by type: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (es *PostgresEventStore) CountEvents(ctx context.Context, streamID string) (int, error) {
	var n int
	if err := es.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE aggregate_id = $1",
		streamID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// SaveSnapshot upserts the stream's snapshot row; the WHERE clause keeps a newer row.
func (es *PostgresEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE
		 SET aggregate_type = EXCLUDED.aggregate_type,
		     version = EXCLUDED.version,
		     state = EXCLUDED.state,
		     created_at = EXCLUDED.created_at
		 WHERE snapshots.version <= EXCLUDED.version`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		[]byte(snapshot.State),
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (es *PostgresEventStore) LoadLatestSnapshot(ctx context.Context, streamID string) (*Snapshot, error) {
	var (
		s     Snapshot
		state []byte
	)
	err := es.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at
		 FROM snapshots WHERE aggregate_id = $1`,
		streamID,
	).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &state, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	s.State = state
	return &s, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	events := make([]Event, 0)
	for rows.Next() {
		var (
			e    Event
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Data = data
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Schema creates every table used by the Postgres backends.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id             UUID PRIMARY KEY,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	data           JSONB NOT NULL,
	version        INTEGER NOT NULL CHECK (version > 0),
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (aggregate_id, version)
);
CREATE INDEX IF NOT EXISTS events_aggregate_type_idx ON events (aggregate_type, created_at);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	state          JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS read_models (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	document   JSONB NOT NULL,
	revision   BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS saga_logs (
	saga_id    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

var _ EventStoreInterface = (*PostgresEventStore)(nil)
