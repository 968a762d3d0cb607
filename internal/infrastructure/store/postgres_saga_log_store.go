package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/es-saga-course/internal/saga"
)

// PostgresSagaLogStore persists saga logs as JSONB documents in saga_logs.
type PostgresSagaLogStore struct {
	db *sql.DB
}

func NewPostgresSagaLogStore(db *sql.DB) *PostgresSagaLogStore {
	return &PostgresSagaLogStore{db: db}
}

// Save upserts the log. The WHERE clause keeps a terminal row immutable.
func (s *PostgresSagaLogStore) Save(ctx context.Context, log *saga.Log) error {
	doc, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode saga log: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO saga_logs (saga_id, name, status, document, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (saga_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     document = EXCLUDED.document,
		     updated_at = EXCLUDED.updated_at
		 WHERE saga_logs.status NOT IN ($6, $7, $8)`,
		log.SagaID,
		log.Name,
		string(log.Status),
		doc,
		log.UpdatedAt,
		string(saga.StatusCompleted),
		string(saga.StatusCompensated),
		string(saga.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("failed to save saga log %s: %w", log.SagaID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return saga.ErrLogTerminal
	}
	return nil
}

func (s *PostgresSagaLogStore) Get(ctx context.Context, sagaID string) (*saga.Log, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM saga_logs WHERE saga_id = $1",
		sagaID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load saga log %s: %w", sagaID, err)
	}

	var log saga.Log
	if err := json.Unmarshal(doc, &log); err != nil {
		return nil, fmt.Errorf("failed to decode saga log %s: %w", sagaID, err)
	}
	return &log, nil
}

var _ saga.LogStore = (*PostgresSagaLogStore)(nil)
