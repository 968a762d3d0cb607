package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// ReadStore is an in-memory read model store. Documents are kept as encoded JSON
// so callers never share memory with the stored copy.
type ReadStore struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage // collection -> id -> document
}

func NewReadStore() *ReadStore {
	return &ReadStore{
		data: make(map[string]map[string]json.RawMessage),
	}
}

func (rs *ReadStore) Insert(_ context.Context, collection, id string, doc json.RawMessage) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.data[collection][id]; ok {
		return ErrDocumentExists
	}
	rs.put(collection, id, doc)
	return nil
}

func (rs *ReadStore) Get(_ context.Context, collection, id string) (json.RawMessage, bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	doc, ok := rs.data[collection][id]
	if !ok {
		return nil, false, nil
	}
	return clone(doc), true, nil
}

// List returns documents ordered by id.
func (rs *ReadStore) List(_ context.Context, collection string) ([]json.RawMessage, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	ids := make([]string, 0, len(rs.data[collection]))
	for id := range rs.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		items = append(items, clone(rs.data[collection][id]))
	}
	return items, nil
}

func (rs *ReadStore) Update(_ context.Context, collection, id string, fn MutateFunc) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	current, ok := rs.data[collection][id]
	if !ok {
		return ErrDocumentNotFound
	}
	return rs.apply(collection, id, clone(current), fn)
}

func (rs *ReadStore) Upsert(_ context.Context, collection, id string, fn MutateFunc) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var current json.RawMessage
	if doc, ok := rs.data[collection][id]; ok {
		current = clone(doc)
	}
	return rs.apply(collection, id, current, fn)
}

func (rs *ReadStore) Delete(_ context.Context, collection, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	delete(rs.data[collection], id)
	return nil
}

func (rs *ReadStore) apply(collection, id string, current json.RawMessage, fn MutateFunc) error {
	next, err := fn(current)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	rs.put(collection, id, next)
	return nil
}

func (rs *ReadStore) put(collection, id string, doc json.RawMessage) {
	if rs.data[collection] == nil {
		rs.data[collection] = make(map[string]json.RawMessage)
	}
	rs.data[collection][id] = clone(doc)
}

func clone(doc json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), doc...)
}

var _ ReadStoreInterface = (*ReadStore)(nil)
