package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrDocumentExists   = errors.New("document already exists")
	ErrDocumentNotFound = errors.New("document not found")
	// ErrNoChange returned from a MutateFunc leaves the document untouched.
	ErrNoChange = errors.New("no change")
	// ErrCASExhausted is returned when a compare-and-swap update keeps losing.
	ErrCASExhausted = errors.New("compare-and-swap retries exhausted")
)

// MutateFunc receives the current document (nil when Upsert creates it) and
// returns the replacement.
type MutateFunc func(current json.RawMessage) (json.RawMessage, error)

// ReadStoreInterface defines atomic single-document mutations for read models.
// Every operation on one (collection, id) is linearizable.
type ReadStoreInterface interface {
	// Insert stores a new document or fails with ErrDocumentExists.
	Insert(ctx context.Context, collection, id string, doc json.RawMessage) error

	// Get returns the document and whether it exists.
	Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error)

	// List returns every document in a collection.
	List(ctx context.Context, collection string) ([]json.RawMessage, error)

	// Update atomically replaces an existing document with fn's result.
	Update(ctx context.Context, collection, id string, fn MutateFunc) error

	// Upsert is Update that passes nil to fn when the document does not exist.
	Upsert(ctx context.Context, collection, id string, fn MutateFunc) error

	Delete(ctx context.Context, collection, id string) error
}

// InsertDocument encodes doc and inserts it.
func InsertDocument[T any](ctx context.Context, rs ReadStoreInterface, collection, id string, doc *T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	return rs.Insert(ctx, collection, id, data)
}

// GetDocument loads and decodes a document.
func GetDocument[T any](ctx context.Context, rs ReadStoreInterface, collection, id string) (*T, bool, error) {
	data, ok, err := rs.Get(ctx, collection, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return &doc, true, nil
}

// ListDocuments decodes every document of a collection.
func ListDocuments[T any](ctx context.Context, rs ReadStoreInterface, collection string) ([]*T, error) {
	items, err := rs.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(items))
	for _, item := range items {
		var doc T
		if err := json.Unmarshal(item, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", collection, err)
		}
		out = append(out, &doc)
	}
	return out, nil
}

// UpdateDocument decodes the stored document, lets fn mutate it and stores it back.
func UpdateDocument[T any](ctx context.Context, rs ReadStoreInterface, collection, id string, fn func(doc *T) error) error {
	return rs.Update(ctx, collection, id, typedMutation(fn, nil))
}

// UpsertDocument is UpdateDocument starting from newDoc() when the document is missing.
func UpsertDocument[T any](ctx context.Context, rs ReadStoreInterface, collection, id string, newDoc func() *T, fn func(doc *T) error) error {
	return rs.Upsert(ctx, collection, id, typedMutation(fn, newDoc))
}

func typedMutation[T any](fn func(doc *T) error, newDoc func() *T) MutateFunc {
	return func(current json.RawMessage) (json.RawMessage, error) {
		var doc *T
		if current == nil {
			if newDoc == nil {
				return nil, ErrDocumentNotFound
			}
			doc = newDoc()
		} else {
			doc = new(T)
			if err := json.Unmarshal(current, doc); err != nil {
				return nil, err
			}
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	}
}
