package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"stockmeta/internal/cache"
	"stockmeta/internal/config"
	"stockmeta/internal/database"
	"stockmeta/internal/events"
	"stockmeta/internal/log"
	"stockmeta/internal/queue"
	"stockmeta/internal/repository"
	"stockmeta/internal/service"
	"stockmeta/internal/storage"
	"stockmeta/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	sink := events.Multi{
		events.NewRedisPublisher(client, cfg.Redis.EventsPrefix),
		events.NewLogSink(logger),
	}
	generator, err := service.BuildGenerator(cfg, sink, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generator")
	}

	processor := tasks.NewProcessor(
		repository.NewBatchRepository(dbPool),
		objectStore,
		generator,
		cfg.Generation.Retention,
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Queues.ClaimInterval,
		cfg.Queues.VisibilityTimeout,
		logger,
		processor,
	)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("create consumer group failed")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
