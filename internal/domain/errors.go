package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора складской позиции.
	ErrStockItemIDRequired = errors.New("stock item id is required")
	// Ошибка недопустимого вида складской позиции.
	ErrStockItemKindInvalid = errors.New("stock item kind must be COMPONENT or PERIPHERAL")
	// Ошибка отрицательного остатка на складе.
	ErrStockNegative = errors.New("stock quantity must be non-negative")
	// Ошибка отсутствующего способа оплаты.
	ErrPaymentMethodRequired = errors.New("payment_method is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе/корзине.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы.
	ErrAmountNegative = errors.New("total_minor must be non-negative")
	// Ошибка при некорректном количестве (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка отрицательной цены позиции.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка недопустимого вида товара в позиции.
	ErrProductKindInvalid = errors.New("item product kind is invalid")
	// Ошибка несоответствия суммы и сумм позиций.
	ErrAmountMismatch = errors.New("total does not match items sum")
	// Ошибка отсутствующего владельца сборки.
	ErrOwnerRequired = errors.New("user_id is required")
	// Ошибка отсутствующей причины отклонения сборки.
	ErrRejectReasonRequired = errors.New("reject reason is required")
	// Ошибка отсутствующего действия в записи аудита.
	ErrAuditActionRequired = errors.New("audit action is required")
	// Ошибка отсутствующей сущности в записи аудита.
	ErrAuditEntityRequired = errors.New("audit entity is required")
	// Ошибка отсутствующего идентификатора события шлюза.
	ErrEventIDRequired = errors.New("event id is required")
	// Ошибка отсутствующего типа события шлюза.
	ErrEventTypeRequired = errors.New("event type is required")

	// ErrStockItemNotFound возвращается, если позиция каталога не найдена.
	ErrStockItemNotFound = errors.New("stock item not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrConfigurationNotFound возвращается, если сборка не найдена.
	ErrConfigurationNotFound = errors.New("configuration not found")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrStatusConflict — CAS-переход не применён: текущий статус не совпал с ожидаемым.
	ErrStatusConflict = errors.New("status precondition failed")
	// ErrForbidden — актору не хватает прав либо он не владелец ресурса.
	ErrForbidden = errors.New("forbidden")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError возвращается, когда остатка не хватает
// хотя бы по одной позиции корзины. Заказ при этом не создаётся целиком.
type InsufficientStockError struct {
	ItemID    string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %s (requested %d, available %d)", e.ItemID, e.Requested, e.Available)
}

// IsInsufficientStock проверяет, что ошибка вызвана нехваткой стока.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// IllegalTransitionError описывает недопустимый переход статуса,
// называя текущее и запрошенное состояния.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition: %s -> %s", e.Entity, e.From, e.To)
}

// IsIllegalTransition проверяет, что ошибка вызвана недопустимым переходом.
func IsIllegalTransition(err error) bool {
	var target *IllegalTransitionError
	return errors.As(err, &target)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound объединяет ошибки отсутствия ресурса для транспортного слоя.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrStockItemNotFound) ||
		errors.Is(err, ErrConfigurationNotFound)
}
