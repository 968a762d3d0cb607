package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// maxCASAttempts bounds the compare-and-swap loop of Update and Upsert.
const maxCASAttempts = 16

// PostgresReadStore implements ReadStoreInterface on the read_models table.
// Mutations are compare-and-swap on the revision column, so concurrent
// projector instances never lose an increment.
type PostgresReadStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewPostgresReadStore creates a new PostgreSQL-based read store
func NewPostgresReadStore(db *sql.DB, log *slog.Logger) *PostgresReadStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresReadStore{db: db, log: log.With(slog.String("component", "read-store"))}
}

func (rs *PostgresReadStore) Insert(ctx context.Context, collection, id string, doc json.RawMessage) error {
	res, err := rs.db.ExecContext(ctx,
		`INSERT INTO read_models (collection, id, document, revision, updated_at)
		 VALUES ($1, $2, $3, 1, now())
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, []byte(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentExists
	}
	return nil
}

func (rs *PostgresReadStore) Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error) {
	doc, _, ok, err := rs.load(ctx, collection, id)
	return doc, ok, err
}

func (rs *PostgresReadStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := rs.db.QueryContext(ctx,
		"SELECT document FROM read_models WHERE collection = $1 ORDER BY id",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	items := make([]json.RawMessage, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan %s document: %w", collection, err)
		}
		items = append(items, doc)
	}
	return items, rows.Err()
}

func (rs *PostgresReadStore) Update(ctx context.Context, collection, id string, fn MutateFunc) error {
	return rs.mutate(ctx, collection, id, fn, false)
}

func (rs *PostgresReadStore) Upsert(ctx context.Context, collection, id string, fn MutateFunc) error {
	return rs.mutate(ctx, collection, id, fn, true)
}

func (rs *PostgresReadStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := rs.db.ExecContext(ctx,
		"DELETE FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// mutate runs fn against the current revision and writes only if the revision
// is unchanged, retrying from a fresh read otherwise.
func (rs *PostgresReadStore) mutate(ctx context.Context, collection, id string, fn MutateFunc, upsert bool) error {
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		current, revision, ok, err := rs.load(ctx, collection, id)
		if err != nil {
			return err
		}
		if !ok && !upsert {
			return ErrDocumentNotFound
		}

		next, err := fn(current)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}

		var res sql.Result
		if !ok {
			res, err = rs.db.ExecContext(ctx,
				`INSERT INTO read_models (collection, id, document, revision, updated_at)
				 VALUES ($1, $2, $3, 1, now())
				 ON CONFLICT (collection, id) DO NOTHING`,
				collection, id, []byte(next),
			)
		} else {
			res, err = rs.db.ExecContext(ctx,
				`UPDATE read_models
				 SET document = $3, revision = revision + 1, updated_at = now()
				 WHERE collection = $1 AND id = $2 AND revision = $4`,
				collection, id, []byte(next), revision,
			)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}

		rs.log.Debug("revision conflict, retrying",
			slog.String("collection", collection),
			slog.String("id", id),
			slog.Int("attempt", attempt),
		)
	}
	return fmt.Errorf("%s/%s: %w", collection, id, ErrCASExhausted)
}

func (rs *PostgresReadStore) load(ctx context.Context, collection, id string) (json.RawMessage, int64, bool, error) {
	var (
		doc      []byte
		revision int64
	)
	err := rs.db.QueryRowContext(ctx,
		"SELECT document, revision FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	).Scan(&doc, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
	}
	return doc, revision, true, nil
}

var _ ReadStoreInterface = (*PostgresReadStore)(nil)
