package domain

import "time"

// Типы событий платёжного шлюза. Шлюз доставляет события минимум один раз,
// поэтому обработчик обязан быть идемпотентным.
const (
	PaymentEventCheckoutCompleted = "checkout_completed"
	PaymentEventSucceeded         = "payment_succeeded"
	PaymentEventCheckoutExpired   = "checkout_expired"
	PaymentEventFailed            = "payment_failed"
)

// PaymentEvent — разобранное событие платёжного шлюза.
type PaymentEvent struct {
	ID          string
	Type        string
	OrderID     string
	AmountMinor int64
}

// Validate проверяет обязательные поля события.
func (e *PaymentEvent) Validate() []error {
	var errs []error

	if e.ID == "" {
		errs = append(errs, ErrEventIDRequired)
	}
	if e.Type == "" {
		errs = append(errs, ErrEventTypeRequired)
	}

	return errs
}

// ProcessedEvent фиксирует уже обработанное событие шлюза.
// Уникальная запись по EventID — первый рубеж дедупликации
// при повторной доставке.
type ProcessedEvent struct {
	EventID     string
	EventType   string
	OrderID     string
	ProcessedAt time.Time
}
