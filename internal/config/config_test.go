package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SYNC_FULL_INTERVAL", "")
	t.Setenv("OUTBOX_BATCH_SIZE", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_PRODUCER", "")
	t.Setenv("SYNC_CATCHUP_OVERLAP", "")

	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.Sync.FullInterval)
	assert.Equal(t, time.Minute, cfg.Sync.CatchUpOverlap)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "kafka", cfg.Kafka.Producer)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYNC_FULL_INTERVAL", "6h")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ACTOR_NAME", "warehouse-bot")
	t.Setenv("KAFKA_PRODUCER", "console")

	cfg := Load()

	assert.Equal(t, 6*time.Hour, cfg.Sync.FullInterval)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "warehouse-bot", cfg.ActorName)
	assert.Equal(t, "console", cfg.Kafka.Producer)
}

func TestGetDuration_RejectsGarbage(t *testing.T) {
	t.Setenv("SOME_INTERVAL", "soon")
	assert.Equal(t, time.Minute, getDuration("SOME_INTERVAL", time.Minute))

	t.Setenv("SOME_INTERVAL", "-5s")
	assert.Equal(t, time.Minute, getDuration("SOME_INTERVAL", time.Minute))
}
