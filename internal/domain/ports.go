package domain

import "time"

// ReceiptNotifier отправляет клиенту чек по заказу. Вызов best-effort:
// сбой отправки логируется и никогда не роняет пользовательскую операцию.
type ReceiptNotifier interface {
	SendReceipt(orderID, locale string) error
}

// OutboxPublisher доводит записи transactional outbox до брокера.
type OutboxPublisher interface {
	// Publish обязан быть идемпотентным: воркер может повторить доставку.
	Publish(event OutboxMessage) error
}

// OutboxRepository хранит события, ожидающие публикации. Запись в outbox
// идёт в одной транзакции с изменением заказа.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage — одна запись transactional outbox.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает backlog outbox для метрик.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
