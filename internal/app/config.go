package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StorageDriver выбирает хранилище приложения.
type StorageDriver string

const (
	// StorageDriverMemory — in-memory хранилище для локальной разработки.
	StorageDriverMemory StorageDriver = "memory"
	// StorageDriverPostgres — PostgreSQL, включается заданием DSN.
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	RedisAddr    string
	KafkaBrokers string

	WebhookSecret    string
	WebhookRetention time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без
// внешних зависимостей: in-memory store, без Kafka и Redis.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		WebhookRetention:    48 * time.Hour,
		OutboxPollInterval:  2 * time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   5,
		OutboxRetryDelay:    200 * time.Millisecond,
		ShutdownTimeout:     5 * time.Second,
	}
}

// LoadConfig читает конфигурацию из окружения поверх дефолтов.
// .env подхватывается, если присутствует; переменные окружения важнее.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("PCSHOP_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("PCSHOP_METRICS_ADDR", cfg.MetricsAddr)

	cfg.PostgresDSN = envString("PCSHOP_POSTGRES_DSN", "")
	if cfg.PostgresDSN != "" {
		cfg.StorageDriver = StorageDriverPostgres
	}
	cfg.PostgresAutoMigrate = envBool("PCSHOP_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.RedisAddr = envString("PCSHOP_REDIS_ADDR", "")
	cfg.KafkaBrokers = envString("KAFKA_BROKERS", "")
	cfg.WebhookSecret = envString("PCSHOP_WEBHOOK_SECRET", "")
	cfg.WebhookRetention = envDuration("PCSHOP_WEBHOOK_RETENTION", cfg.WebhookRetention)

	cfg.OutboxPollInterval = envDuration("PCSHOP_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("PCSHOP_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("PCSHOP_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("PCSHOP_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	cfg.ShutdownTimeout = envDuration("PCSHOP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	return cfg
}

func envString(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
