package command

import (
	"context"
	"errors"
	"time"

	"github.com/example/es-saga-course/internal/infrastructure/store"
)

const retryBackoff = 10 * time.Millisecond

// WithRetry runs fn up to attempts times while it fails with a concurrency
// conflict. fn must reload the aggregate on every call; the command handlers
// do. Any other error is returned immediately.
func WithRetry[T any](ctx context.Context, attempts int, fn func(context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		result, err = fn(ctx)
		if err == nil || !errors.Is(err, store.ErrConcurrencyConflict) {
			return result, err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return result, errors.Join(err, ctx.Err())
		case <-time.After(retryBackoff * time.Duration(i+1)):
		}
	}
	return result, err
}
