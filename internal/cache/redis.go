package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ключи и TTL кэша.
const (
	keyDedup       = "pcshop:dedup:webhook:"
	keyOrderStatus = "pcshop:order:status:"

	dedupTTL       = 48 * time.Hour
	statusCacheTTL = 5 * time.Minute

	opTimeout = 2 * time.Second
)

// NewClient создает Redis client с проверкой соединения.
func NewClient(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
