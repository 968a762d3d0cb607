package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/es-saga-course/internal/infrastructure/store"
)

// MockReadStore wraps the in-memory ReadStore, records mutations and can be
// told to fail them.
type MockReadStore struct {
	mu    sync.Mutex
	inner *store.ReadStore

	MutateCalls []MutateCall
	MutateErr   error
}

// MutateCall records an Insert, Update, Upsert or Delete.
type MutateCall struct {
	Op         string
	Collection string
	ID         string
}

func NewMockReadStore() *MockReadStore {
	return &MockReadStore{inner: store.NewReadStore()}
}

func (m *MockReadStore) Insert(ctx context.Context, collection, id string, doc json.RawMessage) error {
	if err := m.record("insert", collection, id); err != nil {
		return err
	}
	return m.inner.Insert(ctx, collection, id, doc)
}

func (m *MockReadStore) Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error) {
	return m.inner.Get(ctx, collection, id)
}

func (m *MockReadStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	return m.inner.List(ctx, collection)
}

func (m *MockReadStore) Update(ctx context.Context, collection, id string, fn store.MutateFunc) error {
	if err := m.record("update", collection, id); err != nil {
		return err
	}
	return m.inner.Update(ctx, collection, id, fn)
}

func (m *MockReadStore) Upsert(ctx context.Context, collection, id string, fn store.MutateFunc) error {
	if err := m.record("upsert", collection, id); err != nil {
		return err
	}
	return m.inner.Upsert(ctx, collection, id, fn)
}

func (m *MockReadStore) Delete(ctx context.Context, collection, id string) error {
	if err := m.record("delete", collection, id); err != nil {
		return err
	}
	return m.inner.Delete(ctx, collection, id)
}

func (m *MockReadStore) record(op, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MutateCalls = append(m.MutateCalls, MutateCall{Op: op, Collection: collection, ID: id})
	return m.MutateErr
}

var _ store.ReadStoreInterface = (*MockReadStore)(nil)
