package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/es-saga-course/internal/app"
	"github.com/example/es-saga-course/internal/config"
	"github.com/example/es-saga-course/internal/domain/account"
	"github.com/example/es-saga-course/internal/domain/claim"
	"github.com/example/es-saga-course/internal/domain/inventory"
	"github.com/example/es-saga-course/internal/domain/order"
	"github.com/example/es-saga-course/internal/infrastructure/kafka"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/logger"
	"github.com/example/es-saga-course/internal/metrics"
	"github.com/example/es-saga-course/internal/projection"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("[Projector] invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel)
	if !cfg.KafkaEnabled() {
		log.Error("[Projector] KAFKA_BROKERS is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("[Projector] CQRS projector starting",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumerGroup),
	)

	db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("[Projector] failed to connect to PostgreSQL", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Error("[Projector] failed to apply schema", slog.Any("error", err))
		os.Exit(1)
	}

	readStore := store.NewPostgresReadStore(db, log)
	dispatcher := app.NewDispatcher(readStore, log, metrics.New(nil))

	// With the Postgres event store the log lives in the same database, so
	// catch up from it before following the topic.
	if cfg.StoreBackend == config.BackendPostgres {
		catchUp(ctx, store.NewPostgresEventStore(db, nil, log), dispatcher, log)
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaConsumerGroup, log)
	defer consumer.Close()

	log.Info("[Projector] consuming")
	if err := consumer.Consume(ctx, dispatcher.HandleEvent); err != nil && ctx.Err() == nil {
		log.Error("[Projector] consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("[Projector] shutting down")
}

func catchUp(ctx context.Context, es projection.EventScanner, dispatcher *projection.Dispatcher, log *slog.Logger) {
	aggregateTypes := []string{account.AggregateType, claim.AggregateType, order.AggregateType, inventory.AggregateType}
	if err := projection.RebuildTypes(ctx, es, dispatcher, aggregateTypes...); err != nil {
		log.Warn("[Projector] catch-up incomplete", slog.Any("error", err))
		return
	}
	log.Info("[Projector] caught up")
}
