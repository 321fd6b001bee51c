package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в магазине.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сток списан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing — оплата подтверждена шлюзом, заказ в обработке.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusCompleted — заказ исполнен и закрыт.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled — заказ отменён; списанный сток возвращён на склад.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// CanTransitionTo проверяет допустимость перехода статуса.
// Переходы однонаправленные; единственный «боковой» переход — PENDING→CANCELLED.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusProcessing || next == OrderStatusCancelled
	case OrderStatusProcessing:
		return next == OrderStatusCompleted
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
// PriceMinor — снапшот цены на момент покупки; последующие изменения
// каталога на уже созданные заказы не влияют.
type OrderItem struct {
	ID         string
	ProductID  string
	Kind       ProductKind
	Qty        int32
	PriceMinor int64
	CreatedAt  time.Time
}

// Order агрегирует состояние заказа и его позиции.
// UserID пуст для гостевого оформления.
type Order struct {
	ID            string
	UserID        string
	Status        OrderStatus
	TotalMinor    int64
	PaymentMethod string
	Locale        string
	Items         []OrderItem
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Guest сообщает, оформлен ли заказ без аккаунта.
func (o *Order) Guest() bool {
	return o.UserID == ""
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.PaymentMethod == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if !item.Kind.Valid() {
			errs = append(errs, ErrProductKindInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
