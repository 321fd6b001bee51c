package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/pcshop/internal/service/payment"
)

// WebhookDeduper отсекает повторные доставки webhook-событий по event_id.
// Быстрый путь перед обращением к базе: Redis может потерять ключ
// (рестарт, eviction), поэтому уникальный индекс в Postgres остаётся
// источником истины. Ключ ставится только после успешного применения
// события: иначе ретрай после сбоя хранилища упирался бы в дубль.
type WebhookDeduper struct {
	client *redis.Client
}

// NewWebhookDeduper создает deduper поверх Redis client.
func NewWebhookDeduper(client *redis.Client) *WebhookDeduper {
	return &WebhookDeduper{client: client}
}

// Seen возвращает true, если событие с таким id уже было применено.
func (d *WebhookDeduper) Seen(eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := d.client.Get(ctx, keyDedup+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remember помечает событие применённым на срок dedupTTL.
func (d *WebhookDeduper) Remember(eventID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return d.client.Set(ctx, keyDedup+eventID, "1", dedupTTL).Err()
}

var _ payment.EventDeduper = (*WebhookDeduper)(nil)
