package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/example/es-saga-course/internal/app"
	"github.com/example/es-saga-course/internal/config"
	"github.com/example/es-saga-course/internal/infrastructure/kinesis"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/logger"
	"github.com/example/es-saga-course/internal/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("[Lambda Projector] invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel)

	db, err := store.ConnectPostgres(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Error("[Lambda Projector] failed to connect to PostgreSQL", slog.Any("error", err))
		os.Exit(1)
	}

	readStore := store.NewPostgresReadStore(db, log)
	handler := kinesis.NewHandler(app.NewDispatcher(readStore, log, metrics.New(nil)), log)

	log.Info("[Lambda Projector] initialized")
	lambda.Start(handler.Handle)
}
