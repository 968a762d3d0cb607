package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/es-saga-course/internal/domain/aggregate"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/metrics"
	"github.com/example/es-saga-course/internal/payment"
	"github.com/example/es-saga-course/internal/projection"
	"github.com/example/es-saga-course/internal/saga"
)

// EventProjector receives events right after they are committed.
// *projection.Dispatcher satisfies it.
type EventProjector interface {
	Project(ctx context.Context, event store.Event) error
}

// Handler runs commands against event-sourced aggregates. Each command loads
// one aggregate, invokes one business method and appends the result with the
// version it loaded.
type Handler struct {
	eventStore        store.EventStoreInterface
	projector         EventProjector
	sagas             *saga.Orchestrator
	payments          payment.Gateway
	log               *slog.Logger
	metrics           *metrics.Metrics
	snapshotThreshold int
	timeout           time.Duration
}

type Option func(*Handler)

func WithSnapshotThreshold(n int) Option {
	return func(h *Handler) { h.snapshotThreshold = n }
}

// WithCommandTimeout bounds a single command from load to append.
func WithCommandTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(
	eventStore store.EventStoreInterface,
	projector EventProjector,
	sagas *saga.Orchestrator,
	payments payment.Gateway,
	log *slog.Logger,
	opts ...Option,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		eventStore:        eventStore,
		projector:         projector,
		sagas:             sagas,
		payments:          payments,
		log:               log.With(slog.String("component", "command")),
		snapshotThreshold: store.DefaultSnapshotThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type loadMode int

const (
	mustExist loadMode = iota
	mustCreate
	createIfMissing
)

// execute loads the aggregate, applies fn and commits whatever fn recorded.
// fn must leave the aggregate untouched when it returns an error.
func execute[T aggregate.Aggregate](ctx context.Context, h *Handler, name, id string, mode loadMode, newAggregate func() T, fn func(T) error) (T, error) {
	var zero T
	defer h.metrics.ObserveCommand(name, time.Now())

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var (
		agg T
		err error
	)
	switch mode {
	case mustCreate:
		agg = newAggregate()
	default:
		agg, err = aggregate.Load(ctx, h.eventStore, id, newAggregate, h.log)
		if mode == createIfMissing && errors.Is(err, aggregate.ErrNotFound) {
			agg, err = newAggregate(), nil
		}
		if err != nil {
			return zero, err
		}
	}

	expected := agg.GetVersion()
	if err := fn(agg); err != nil {
		var dse *aggregate.DomainStateError
		if errors.As(err, &dse) {
			h.metrics.CommandRejected(name)
		}
		return zero, err
	}

	if err := h.commit(ctx, agg, expected); err != nil {
		return zero, err
	}
	return agg, nil
}

// commit appends the uncommitted events, then projects them and snapshots.
// Projection and snapshot failures are logged; the events are already durable.
// project applies freshly committed events. A version gap left by an earlier
// failed projection is filled by replaying the whole stream.
func (h *Handler) project(ctx context.Context, events []store.Event) {
	for _, event := range events {
		err := h.projector.Project(ctx, event)
		if errors.Is(err, projection.ErrVersionGap) {
			err = h.replay(ctx, event.AggregateID)
			if err == nil {
				return
			}
		}
		if err != nil {
			h.log.Warn("read model lagging behind commit",
				slog.String("stream", event.AggregateID),
				slog.Int("version", event.Version),
				slog.Any("error", err),
			)
		}
	}
}

func (h *Handler) replay(ctx context.Context, streamID string) error {
	events, err := h.eventStore.LoadEvents(ctx, streamID)
	if err != nil {
		return err
	}
	h.log.Info("replaying stream into read models", slog.String("stream", streamID), slog.Int("events", len(events)))
	var errs []error
	for _, event := range events {
		if err := h.projector.Project(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) commit(ctx context.Context, agg aggregate.Aggregate, expectedVersion int) error {
	events := agg.Uncommitted()
	if len(events) == 0 {
		return nil
	}

	res, err := h.eventStore.Append(ctx, agg.GetID(), expectedVersion, events)
	if err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			h.metrics.ConcurrencyConflict(agg.AggregateType())
		}
		return fmt.Errorf("failed to append %s events: %w", agg.AggregateType(), err)
	}
	agg.ClearUncommitted()
	h.metrics.EventsAppended(agg.AggregateType(), len(res.Events))

	after := context.WithoutCancel(ctx)
	if h.projector != nil {
		h.project(after, res.Events)
	}

	saved, err := aggregate.MaybeCreateSnapshot(after, h.eventStore, agg, h.snapshotThreshold)
	if err != nil {
		h.log.Warn("snapshot failed", slog.String("stream", agg.GetID()), slog.Any("error", err))
		return nil
	}
	if saved {
		h.metrics.SnapshotSaved(agg.AggregateType())
		h.log.Debug("snapshot saved", slog.String("stream", agg.GetID()), slog.Int("version", agg.GetVersion()))
	}
	return nil
}
