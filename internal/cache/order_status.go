package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

// OrderStatusCache кэширует статус заказа для частых опросов клиентами.
// Запись инвалидируется по TTL и при смене статуса, источник истины — БД.
type OrderStatusCache struct {
	client *redis.Client
}

// NewOrderStatusCache создает кэш статусов заказов.
func NewOrderStatusCache(client *redis.Client) *OrderStatusCache {
	return &OrderStatusCache{client: client}
}

// CachedStatus — закэшированный статус заказа. UserID хранится рядом,
// чтобы проверка доступа не требовала похода в базу.
type CachedStatus struct {
	UserID    string             `json:"user_id,omitempty"`
	Status    domain.OrderStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Get возвращает закэшированный статус заказа. При промахе или любой
// ошибке Redis возвращает ok=false: вызывающий идёт в базу.
func (c *OrderStatusCache) Get(orderID string) (CachedStatus, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, keyOrderStatus+orderID).Bytes()
	if err != nil {
		// redis.Nil — обычный промах; остальное тоже трактуем как промах.
		return CachedStatus{}, false
	}

	var cached CachedStatus
	if err := json.Unmarshal(raw, &cached); err != nil {
		return CachedStatus{}, false
	}
	return cached, true
}

// Set записывает статус заказа в кэш. Ошибки Redis игнорируются:
// кэш best-effort.
func (c *OrderStatusCache) Set(order domain.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := json.Marshal(CachedStatus{
		UserID:    order.UserID,
		Status:    order.Status,
		UpdatedAt: order.UpdatedAt,
	})
	if err != nil {
		return
	}
	c.client.Set(ctx, keyOrderStatus+order.ID, raw, statusCacheTTL)
}

// Invalidate сбрасывает запись после смены статуса.
func (c *OrderStatusCache) Invalidate(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	c.client.Del(ctx, keyOrderStatus+orderID)
}
