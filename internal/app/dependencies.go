package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/cache"
	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/pcshop/internal/storage/postgres"
)

// Dependencies собирает хранилища и внешние клиенты приложения.
type Dependencies struct {
	Stock   domain.StockRepository
	Orders  domain.OrderRepository
	Configs domain.ConfigurationRepository
	Audit   domain.AuditRepository
	Events  domain.WebhookEventRepository
	Outbox  domain.OutboxRepository

	// Store не nil только при postgres-хранилище.
	Store *postgres.Store
	// Redis не nil только при заданном адресе кэша.
	Redis *redis.Client

	Logger *log.Entry
}

// NewDependencies инициализирует хранилище по конфигурации.
// Redis опционален: недоступность кэша не мешает запуску.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.Store = store
		deps.Stock = postgres.NewStockRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Configs = postgres.NewConfigurationRepository(store)
		deps.Audit = postgres.NewAuditRepository(store)
		deps.Events = postgres.NewWebhookEventRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		logger.Info("postgres storage initialized")

	case StorageDriverMemory:
		stock := memory.NewStockRepository()
		deps.Stock = stock
		deps.Orders = memory.NewOrderRepository(stock)
		deps.Configs = memory.NewConfigurationRepository()
		deps.Audit = memory.NewAuditRepository()
		deps.Events = memory.NewWebhookEventRepository()
		deps.Outbox = memory.NewOutboxRepository()
		logger.Warn("using in-memory storage, data is not persisted")

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(cfg.RedisAddr)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, continuing without cache")
		} else {
			deps.Redis = client
			logger.WithField("addr", cfg.RedisAddr).Info("redis cache initialized")
		}
	}

	return deps, nil
}

// Close освобождает подключения в обратном порядке инициализации.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
