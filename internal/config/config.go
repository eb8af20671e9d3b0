package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB       DBConfig
	Kafka    KafkaConfig
	Sync     SyncConfig
	Outbox   OutboxConfig
	HTTPPort string
	LogLevel string
	// ActorName attributes engine calls made without a session.
	ActorName string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type KafkaConfig struct {
	Brokers      []string
	HistoryTopic string
	GroupID      string
	// Producer is "kafka" or "console"; console logs audit events instead
	// of sending them.
	Producer string
}

type SyncConfig struct {
	FullInterval   time.Duration
	CheckInterval  time.Duration
	ReconnectDelay time.Duration
	// CatchUpOverlap is re-read before the last sync time, for transactions
	// that started before it but committed after the previous catch-up.
	CatchUpOverlap time.Duration
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Load reads .env (or .example.env) from the working directory or one of its
// two parents, then resolves every key against the process environment.
func Load() Config {
	loadEnv()

	return Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getInt("DB_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Name:     getEnv("POSTGRES_DB", "rentaldesk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getInt("DB_MAX_CONNS", 10)),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			HistoryTopic: getEnv("KAFKA_HISTORY_TOPIC", "item_history"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "item-history-consumer-group"),
			Producer:     getEnv("KAFKA_PRODUCER", "kafka"),
		},
		Sync: SyncConfig{
			FullInterval:   getDuration("SYNC_FULL_INTERVAL", 24*time.Hour),
			CheckInterval:  getDuration("SYNC_CHECK_INTERVAL", 15*time.Minute),
			ReconnectDelay: getDuration("SYNC_RECONNECT_DELAY", 5*time.Second),
			CatchUpOverlap: getDuration("SYNC_CATCHUP_OVERLAP", time.Minute),
		},
		Outbox: OutboxConfig{
			PollInterval: getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  getInt("OUTBOX_MAX_ATTEMPTS", 5),
		},
		HTTPPort:  getEnv("HTTP_PORT", "9000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		ActorName: getEnv("ACTOR_NAME", "system"),
	}
}

func loadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("config: cannot resolve working directory: %v", err)
		return
	}

	dirs := []string{
		wd,
		filepath.Join(wd, ".."),
		filepath.Join(wd, "..", ".."),
	}

	for _, name := range []string{".env", ".example.env"} {
		for _, dir := range dirs {
			path := filepath.Join(dir, name)
			if err := godotenv.Load(path); err == nil {
				log.Printf("Loaded environment variables from %s", path)
				return
			}
		}
	}

	log.Println("No .env file found, using environment variables")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
