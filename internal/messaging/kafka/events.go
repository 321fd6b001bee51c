package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События жизненного цикла заказа
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderPaid      EventType = "order.paid"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderCompleted EventType = "order.completed"

	// События отправки чеков
	EventTypeReceiptRequested EventType = "receipt.requested"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "pcshop.order.events"
	TopicReceiptRequests = "pcshop.receipt.requests"
	TopicDeadLetterQueue = "pcshop.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType  EventType      `json:"event_type"`
	OrderID    string         `json:"order_id"`
	UserID     string         `json:"user_id,omitempty"`
	Status     string         `json:"status"`
	TotalMinor int64          `json:"total_minor"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ReceiptEvent представляет запрос на отправку чека покупателю.
type ReceiptEvent struct {
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	Locale    string    `json:"locale,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, userID, status string, totalMinor int64) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		UserID:     userID,
		Status:     status,
		TotalMinor: totalMinor,
		Timestamp:  time.Now(),
	}
}

// NewReceiptEvent создает запрос на отправку чека
func NewReceiptEvent(orderID, locale string) *ReceiptEvent {
	return &ReceiptEvent{
		EventType: EventTypeReceiptRequested,
		OrderID:   orderID,
		Locale:    locale,
		Timestamp: time.Now(),
	}
}
