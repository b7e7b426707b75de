package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/escalation-engine/internal/config"
	"github.com/kursadbilgin/escalation-engine/internal/handler"
	"github.com/kursadbilgin/escalation-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/escalation-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/escalation-engine/internal/infra/redis"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/provider"
	"github.com/kursadbilgin/escalation-engine/internal/queue"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"github.com/kursadbilgin/escalation-engine/internal/service"
	"github.com/kursadbilgin/escalation-engine/internal/sla"
	"github.com/kursadbilgin/escalation-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 10 * time.Second
	consumerPrefetch = 32
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	items := repository.NewGormItemRepo(db)
	prefs := repository.NewGormPreferenceRepo(db)
	deliveries := repository.NewGormDeliveryRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	runs := repository.NewGormRunRepo(db)

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	notifier, err := provider.NewWebhookNotifier(cfg.WebhookURL)
	if err != nil {
		logger.Fatal("webhook notifier initialization failed", zap.Error(err))
	}

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, consumerPrefetch, logger)

	metrics := observability.NewMetrics()

	catalog := sla.DefaultCatalog()

	resolver := service.NewAnchorResolver(cfg.DefaultTimezone, logger)
	selector, err := service.NewCandidateSelector(items, catalog, resolver, cfg.BatchLimit, logger)
	if err != nil {
		logger.Fatal("candidate selector initialization failed", zap.Error(err))
	}

	trigger := service.NewLogTrigger(logger)
	registry := service.NewRegistry(trigger, cfg.BaseURL, logger)
	gate := service.NewPreferenceGate(prefs, logger)

	emitter, err := service.NewDeliveryEmitter(items, deliveries, gate, publisher, logger)
	if err != nil {
		logger.Fatal("delivery emitter initialization failed", zap.Error(err))
	}
	emitter.SetMetrics(metrics)

	engine, err := service.NewEngine(
		selector,
		registry,
		emitter,
		items,
		runs,
		time.Duration(cfg.TickIntervalSec)*time.Second,
		logger,
	)
	if err != nil {
		logger.Fatal("engine initialization failed", zap.Error(err))
	}
	engine.SetMetrics(metrics)

	worker, err := service.NewDeliveryWorker(
		deliveries,
		attempts,
		consumer,
		notifier,
		rateLimiter,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("delivery worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	retryScanner, err := service.NewRetryScanner(deliveries, publisher, 0, 0, logger)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Start(groupCtx)
	})

	g.Go(func() error {
		return worker.Start(groupCtx)
	})

	g.Go(func() error {
		return retryScanner.Start(groupCtx)
	})

	g.Go(func() error {
		logger.Info("ops server started", zap.Int("port", cfg.OpsPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.OpsPort))
	})

	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("escalation engine stopped with error", zap.Error(err))
	}

	logger.Info("escalation engine shut down")
}
