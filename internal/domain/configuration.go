package domain

import "time"

// ConfigurationStatus описывает жизненный цикл пользовательской сборки
// от черновика до публикации в витрине.
type ConfigurationStatus string

const (
	// ConfigurationStatusDraft — сборка редактируется владельцем.
	ConfigurationStatusDraft ConfigurationStatus = "DRAFT"
	// ConfigurationStatusSubmitted — сборка отправлена на проверку специалисту.
	ConfigurationStatusSubmitted ConfigurationStatus = "SUBMITTED"
	// ConfigurationStatusApproved — сборка одобрена и может быть опубликована.
	ConfigurationStatusApproved ConfigurationStatus = "APPROVED"
	// ConfigurationStatusRejected — сборка отклонена с указанием причины.
	ConfigurationStatusRejected ConfigurationStatus = "REJECTED"
)

// CanTransitionTo проверяет допустимость перехода статуса сборки.
// Перескакивать через состояния нельзя: DRAFT не может стать APPROVED напрямую.
func (s ConfigurationStatus) CanTransitionTo(next ConfigurationStatus) bool {
	switch s {
	case ConfigurationStatusDraft:
		return next == ConfigurationStatusSubmitted
	case ConfigurationStatusSubmitted:
		return next == ConfigurationStatusApproved || next == ConfigurationStatusRejected
	default:
		return false
	}
}

// ConfigurationItem — комплектующее в составе сборки.
// PriceMinor фиксируется сервером из каталога при каждом изменении состава.
type ConfigurationItem struct {
	ID          string
	StockItemID string
	Qty         int32
	PriceMinor  int64
}

// Configuration описывает пользовательскую сборку ПК.
// Статус меняют только специалист/админ; IsPublic выставляется
// только из состояния APPROVED.
type Configuration struct {
	ID           string
	UserID       string
	Status       ConfigurationStatus
	IsPublic     bool
	IsTemplate   bool
	TotalMinor   int64
	RejectReason string
	Items        []ConfigurationItem
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecalculateTotal пересчитывает сумму сборки по позициям.
// Сумме от клиента доверять нельзя, поэтому пересчёт выполняется
// на сервере при каждом изменении состава.
func (c *Configuration) RecalculateTotal() {
	var total int64
	for _, item := range c.Items {
		total += int64(item.Qty) * item.PriceMinor
	}
	c.TotalMinor = total
}

// Validate проверяет базовые инварианты сборки.
func (c *Configuration) Validate() []error {
	var errs []error

	if c.UserID == "" {
		errs = append(errs, ErrOwnerRequired)
	}
	if c.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	var calc int64
	for _, item := range c.Items {
		if item.StockItemID == "" {
			errs = append(errs, ErrStockItemIDRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != c.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
