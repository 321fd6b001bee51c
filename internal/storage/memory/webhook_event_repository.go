package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

// webhookEventRepositoryInMemory хранит обработанные события шлюза в памяти.
type webhookEventRepositoryInMemory struct {
	mu     sync.Mutex
	events map[string]domain.ProcessedEvent
}

// NewWebhookEventRepository возвращает in-memory реализацию дедупликации событий.
func NewWebhookEventRepository() domain.WebhookEventRepository {
	return &webhookEventRepositoryInMemory{
		events: make(map[string]domain.ProcessedEvent),
	}
}

// Seen отвечает, фиксировалось ли событие раньше.
func (r *webhookEventRepositoryInMemory) Seen(eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, seen := r.events[eventID]
	return seen, nil
}

// MarkProcessed фиксирует событие; false означает повторную доставку.
func (r *webhookEventRepositoryInMemory) MarkProcessed(event domain.ProcessedEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.events[event.EventID]; seen {
		return false, nil
	}
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	r.events[event.EventID] = event
	return true, nil
}

// DeleteProcessedBefore удаляет события старше cutoff, не больше limit за вызов.
func (r *webhookEventRepositoryInMemory) DeleteProcessedBefore(cutoff time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, event := range r.events {
		if limit > 0 && deleted >= limit {
			break
		}
		if event.ProcessedAt.Before(cutoff) {
			delete(r.events, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepositoryInMemory)(nil)
