package domain

import "time"

// ProductKind разделяет виды товарных позиций в каталоге и заказах.
type ProductKind string

const (
	// ProductKindComponent — комплектующее для сборки ПК (CPU, GPU и т.д.).
	ProductKindComponent ProductKind = "COMPONENT"
	// ProductKindPeripheral — периферия (клавиатуры, мониторы и т.д.).
	ProductKindPeripheral ProductKind = "PERIPHERAL"
	// ProductKindConfiguration — готовая сборка; складской учёт по ней не ведётся.
	ProductKindConfiguration ProductKind = "CONFIGURATION"
)

// Stocked сообщает, ведётся ли по данному виду позиции складской учёт.
func (k ProductKind) Stocked() bool {
	return k == ProductKindComponent || k == ProductKindPeripheral
}

// Valid проверяет, что вид позиции относится к поддерживаемым значениям.
func (k ProductKind) Valid() bool {
	switch k {
	case ProductKindComponent, ProductKindPeripheral, ProductKindConfiguration:
		return true
	default:
		return false
	}
}

// StockItem описывает складскую позицию каталога.
// Инвариант Quantity >= 0 обязано поддерживать хранилище:
// списание выполняется атомарно вместе с созданием заказа.
type StockItem struct {
	ID         string
	Kind       ProductKind
	Name       string
	PriceMinor int64
	Quantity   int32
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет базовые инварианты складской позиции.
func (s *StockItem) Validate() []error {
	var errs []error

	if s.ID == "" {
		errs = append(errs, ErrStockItemIDRequired)
	}
	if !s.Kind.Stocked() {
		errs = append(errs, ErrStockItemKindInvalid)
	}
	if s.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if s.Quantity < 0 {
		errs = append(errs, ErrStockNegative)
	}

	return errs
}
