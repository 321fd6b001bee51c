package domain

import (
	"encoding/json"
	"time"
)

// Действия, фиксируемые в журнале аудита.
const (
	AuditActionOrderCreated     = "ORDER_CREATED"
	AuditActionOrderCancelled   = "ORDER_CANCELLED"
	AuditActionPaymentSucceeded = "PAYMENT_SUCCEEDED"
	AuditActionPaymentFailed    = "PAYMENT_FAILED"
	AuditActionWebhookOrphan    = "WEBHOOK_ORPHAN"
	AuditActionConfigSubmitted  = "CONFIG_SUBMITTED"
	AuditActionConfigApproved   = "CONFIG_APPROVED"
	AuditActionConfigRejected   = "CONFIG_REJECTED"
	AuditActionConfigPublished  = "CONFIG_PUBLISHED"
	AuditActionStockUpserted    = "STOCK_UPSERTED"
)

// Типы сущностей в журнале аудита.
const (
	AuditEntityOrder         = "order"
	AuditEntityConfiguration = "configuration"
	AuditEntityStockItem     = "stock_item"
)

// AuditEntry — запись журнала аудита. Журнал append-only: записи
// никогда не изменяются и не удаляются, по ним восстанавливается
// история обработки вебхуков и переходов статусов.
type AuditEntry struct {
	ID         string
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
	ActorRole  Role
	Details    json.RawMessage
	CreatedAt  time.Time
}

// Validate проверяет обязательные поля записи аудита.
func (e *AuditEntry) Validate() []error {
	var errs []error

	if e.Action == "" {
		errs = append(errs, ErrAuditActionRequired)
	}
	if e.EntityType == "" || e.EntityID == "" {
		errs = append(errs, ErrAuditEntityRequired)
	}

	return errs
}
