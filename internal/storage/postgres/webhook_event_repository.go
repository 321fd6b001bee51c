package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

type webhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository создаёт PostgreSQL-реализацию WebhookEventRepository.
func NewWebhookEventRepository(store *Store) domain.WebhookEventRepository {
	return &webhookEventRepository{db: store.DB()}
}

// Seen отвечает, фиксировалось ли событие раньше.
func (r *webhookEventRepository) Seen(eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var seen bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)
	`, eventID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check webhook event seen: %w", err)
	}
	return seen, nil
}

// MarkProcessed вставляет событие с ON CONFLICT DO NOTHING: уникальность
// первичного ключа по event_id делает дедупликацию атомарной даже при
// конкурентной доставке одного события в два инстанса.
func (r *webhookEventRepository) MarkProcessed(event domain.ProcessedEvent) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, order_id, processed_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.EventType, event.OrderID, event.ProcessedAt)
	if err != nil {
		return false, fmt.Errorf("mark webhook event processed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("webhook event rows affected: %w", err)
	}

	return affected == 1, nil
}

// DeleteProcessedBefore удаляет события старше cutoff порциями по limit строк.
func (r *webhookEventRepository) DeleteProcessedBefore(cutoff time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE event_id IN (
			SELECT event_id FROM webhook_events
			WHERE processed_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete processed webhook events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("webhook event cleanup rows affected: %w", err)
	}

	return int(affected), nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepository)(nil)
