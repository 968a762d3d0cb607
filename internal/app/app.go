// Package app is the composition root: it builds the event store, read store,
// saga log, projectors and handlers for the configured backend once and hands
// them to the binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/example/es-saga-course/internal/command"
	"github.com/example/es-saga-course/internal/config"
	"github.com/example/es-saga-course/internal/infrastructure/kafka"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/metrics"
	"github.com/example/es-saga-course/internal/payment"
	"github.com/example/es-saga-course/internal/projection"
	"github.com/example/es-saga-course/internal/query"
	"github.com/example/es-saga-course/internal/saga"
)

type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	EventStore store.EventStoreInterface
	ReadStore  store.ReadStoreInterface
	SagaLogs   saga.LogStore
	Projector  *projection.Dispatcher
	Payments   *payment.LimitGateway

	Commands *command.Handler
	Queries  *query.Handler

	closers []func() error
}

// New wires every component for cfg.StoreBackend.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}

	var publisher store.Publisher
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, producer.Close)
		publisher = producer
	}

	if err := a.openStores(ctx, publisher); err != nil {
		a.Close()
		return nil, err
	}

	a.Projector = NewDispatcher(a.ReadStore, log, a.Metrics)
	a.Payments = payment.NewLimitGateway(cfg.PaymentLimit, log)

	orchestrator := saga.NewOrchestrator(a.SagaLogs, log,
		saga.WithStepTimeout(cfg.SagaStepTimeout),
		saga.WithCompensationTimeout(cfg.SagaCompensationTimeout),
		saga.WithMetrics(a.Metrics),
	)

	var inline command.EventProjector
	if cfg.InlineProjection {
		inline = a.Projector
	}
	a.Commands = command.NewHandler(a.EventStore, inline, orchestrator, a.Payments, log,
		command.WithSnapshotThreshold(cfg.SnapshotThreshold),
		command.WithCommandTimeout(cfg.CommandTimeout),
		command.WithMetrics(a.Metrics),
	)
	a.Queries = query.NewHandler(a.ReadStore, a.SagaLogs, log)

	log.Info("application wired",
		slog.String("backend", cfg.StoreBackend),
		slog.Bool("kafka", cfg.KafkaEnabled()),
		slog.Bool("inline_projection", cfg.InlineProjection),
		slog.Int("snapshot_threshold", cfg.SnapshotThreshold),
	)
	return a, nil
}

func (a *App) openStores(ctx context.Context, publisher store.Publisher) error {
	cfg := a.Config
	switch cfg.StoreBackend {
	case config.BackendMemory:
		a.EventStore = store.NewEventStore(publisher, a.Log)
		a.ReadStore = store.NewReadStore()
		a.SagaLogs = saga.NewMemoryLogStore()
		return nil

	case config.BackendPostgres:
		db, err := a.openPostgres(ctx)
		if err != nil {
			return err
		}
		a.EventStore = store.NewPostgresEventStore(db, publisher, a.Log)
		a.ReadStore = store.NewPostgresReadStore(db, a.Log)
		a.SagaLogs = store.NewPostgresSagaLogStore(db)
		return nil

	case config.BackendDynamoDB:
		// Events go to DynamoDB and reach Kafka-less projectors through the
		// table stream. Read models and saga logs stay in Postgres.
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		db, err := a.openPostgres(ctx)
		if err != nil {
			return err
		}
		a.EventStore = store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoEventsTable, cfg.DynamoSnapshotsTable, a.Log)
		a.ReadStore = store.NewPostgresReadStore(db, a.Log)
		a.SagaLogs = store.NewPostgresSagaLogStore(db)
		return nil
	}
	return fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.StoreBackend)
}

func (a *App) openPostgres(ctx context.Context) (*sql.DB, error) {
	db, err := store.ConnectPostgres(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := store.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewDispatcher builds the dispatcher with every read model projector. The
// out-of-process projectors use it too.
func NewDispatcher(readStore store.ReadStoreInterface, log *slog.Logger, m *metrics.Metrics) *projection.Dispatcher {
	return projection.NewDispatcher(log, m,
		projection.NewAccountDashboardProjector(readStore),
		projection.NewClaimDashboardProjector(readStore),
		projection.NewOrderDashboardProjector(readStore),
		projection.NewInventoryProjector(readStore),
		projection.NewClaimStatisticsProjector(readStore),
	)
}
