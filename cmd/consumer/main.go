package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

// consumer tails the item history topic and logs every audit event.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel).With(zap.String("component", "history_consumer"))
	defer func() { _ = log.Sync() }()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		Topic:          cfg.Kafka.HistoryTopic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		log.Info("closing kafka reader")
		if err := r.Close(); err != nil {
			log.Error("error closing kafka reader", zap.Error(err))
		}
	}()

	log.Info("consumer connected",
		zap.String("topic", cfg.Kafka.HistoryTopic),
		zap.String("brokers", strings.Join(cfg.Kafka.Brokers, ",")),
	)

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("shutdown signal received, stopping consumer")
				return
			}
			log.Error("error reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		var ev repository.HistoryEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Warn("undecodable history event",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.ByteString("value", m.Value),
				zap.Error(err),
			)
			continue
		}

		log.Info("unit history",
			zap.String("unit_id", ev.UnitID),
			zap.String("action", string(ev.Action)),
			zap.String("from", string(ev.FromStatus)),
			zap.String("to", string(ev.ToStatus)),
			zap.String("actor", ev.Actor),
			zap.String("at", ev.Timestamp),
			zap.Any("metadata", ev.Metadata),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
	}
}
