package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stockmeta/internal/cache"
	"stockmeta/internal/config"
	"stockmeta/internal/database"
	"stockmeta/internal/events"
	"stockmeta/internal/handlers"
	"stockmeta/internal/jobs"
	"stockmeta/internal/log"
	"stockmeta/internal/queue"
	"stockmeta/internal/repository"
	"stockmeta/internal/server"
	"stockmeta/internal/service"
	"stockmeta/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, dbPool, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate postgres")
		}
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	sink := events.Multi{
		events.NewRedisPublisher(redisClient, cfg.Redis.EventsPrefix),
		events.NewLogSink(logger),
	}
	generator, err := service.BuildGenerator(cfg, sink, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generator")
	}
	if !generator.HasKeys() {
		logger.Warn().Msg("no vision api keys configured, generation requests will fail")
	}

	producer := queue.NewProducer(redisClient, cfg.Redis.Stream)
	batches := service.NewBatchService(
		repository.NewBatchRepository(dbPool),
		objectStore,
		producer,
		generator,
		cfg.Generation.AutoKeywordCap,
		logger,
	)

	handlerSet := handlers.NewHandlerSet(
		logger,
		cfg,
		dbPool,
		handlers.PingFunc(func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }),
		batches,
	)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(producer, cfg.Generation.CleanupSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
