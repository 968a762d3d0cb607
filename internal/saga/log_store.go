package saga

import (
	"context"
	"sync"
)

// LogStore persists saga logs keyed by SagaID. Save replaces the stored log
// and must refuse to overwrite a log whose stored status is terminal.
type LogStore interface {
	Save(ctx context.Context, log *Log) error
	Get(ctx context.Context, sagaID string) (*Log, error)
}

// MemoryLogStore keeps logs in memory.
type MemoryLogStore struct {
	mu   sync.RWMutex
	logs map[string]*Log
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{logs: make(map[string]*Log)}
}

func (s *MemoryLogStore) Save(_ context.Context, log *Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.logs[log.SagaID]; ok && current.Status.IsTerminal() {
		return ErrLogTerminal
	}
	s.logs[log.SagaID] = log.Clone()
	return nil
}

func (s *MemoryLogStore) Get(_ context.Context, sagaID string) (*Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[sagaID]
	if !ok {
		return nil, ErrLogNotFound
	}
	return log.Clone(), nil
}

var _ LogStore = (*MemoryLogStore)(nil)
