package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/changefeed"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/engine"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository/postgresql"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/server"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/syncer"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	database, err := db.NewDb(ctx, cfg.DB)
	if err != nil {
		log.Fatal("database init error", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		log.Fatal("database migration error", zap.Error(err))
	}

	outboxRepo := postgresql.NewOutboxTaskRepo()
	stg := storage.NewStorage(
		database,
		postgresql.NewProductRepo(database),
		postgresql.NewUnitRepo(database),
		postgresql.NewOrderRepo(database),
		postgresql.NewLineRepo(database),
		postgresql.NewHistoryRepo(database),
		outboxRepo,
		cfg.Kafka.HistoryTopic,
	)

	store := cache.NewStore(log)
	eng := engine.New(store, stg, log, cfg.ActorName)

	feed := changefeed.New(changefeed.PoolDialer(database.GetPool(), db.ChangeChannel), cfg.Sync.ReconnectDelay, log)
	coordinator := syncer.New(store, stg, feed, cfg.Sync, log)
	if err := coordinator.Bootstrap(ctx); err != nil {
		log.Fatal("initial load failed", zap.Error(err))
	}
	coordinator.Start(ctx)

	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("change feed stopped", zap.Error(err))
		}
	}()

	var producer kafka.Producer
	if cfg.Kafka.Producer == "console" || len(cfg.Kafka.Brokers) == 0 {
		producer = kafka.NewConsoleProducer(log)
	} else {
		producer = kafka.NewWriterProducer(cfg.Kafka.Brokers)
	}
	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, log)
	go publisher.Run(ctx)

	srv := server.New(eng, coordinator, log)
	go func() {
		if err := srv.Run(ctx, cfg.HTTPPort); err != nil {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	log.Info("rentaldesk started",
		zap.String("port", cfg.HTTPPort),
		zap.Int("products", len(eng.InventorySummary())),
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	coordinator.Close()
	publisher.Shutdown()

	log.Info("rentaldesk gracefully stopped")
}
