package payment

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/metrics"
)

// Result классифицирует исход обработки события шлюза.
type Result string

const (
	// ResultApplied — событие применено: статус заказа изменился.
	ResultApplied Result = "applied"
	// ResultDuplicate — повторная доставка, изменений нет.
	ResultDuplicate Result = "duplicate"
	// ResultOrphan — событие ссылается на неизвестный заказ.
	ResultOrphan Result = "orphan"
	// ResultIgnored — тип события не входит в обрабатываемые.
	ResultIgnored Result = "ignored"
	// ResultRejected — подпись сошлась, но тело события неполное.
	ResultRejected Result = "rejected"
)

// EventDeduper — быстрый префильтр повторных доставок (Redis).
// Источник истины — хранилище webhook_events; сбой префильтра
// не останавливает обработку.
type EventDeduper interface {
	// Seen отвечает, применялось ли событие раньше.
	Seen(eventID string) (bool, error)
	// Remember помечает событие применённым.
	Remember(eventID string) error
}

// Service сверяет события платёжного шлюза с состоянием заказов.
// Шлюз доставляет события минимум один раз, поэтому каждая ветка
// обработки обязана быть идемпотентной.
type Service struct {
	orders   domain.OrderRepository
	events   domain.WebhookEventRepository
	audit    domain.AuditRepository
	outbox   domain.OutboxRepository
	receipts domain.ReceiptNotifier
	dedupe   EventDeduper
	logger   *log.Entry
	metrics  *metrics.CommerceMetrics
}

// NewService создаёт рабочий экземпляр сервиса вебхуков.
func NewService(
	orders domain.OrderRepository,
	events domain.WebhookEventRepository,
	audit domain.AuditRepository,
	outbox domain.OutboxRepository,
	receipts domain.ReceiptNotifier,
	dedupe EventDeduper,
	logger *log.Entry,
) *Service {
	s := newService(orders, events, audit, outbox, receipts, dedupe, logger)
	s.metrics = metrics.NewCommerceMetrics()
	return s
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(
	orders domain.OrderRepository,
	events domain.WebhookEventRepository,
	audit domain.AuditRepository,
	outbox domain.OutboxRepository,
	receipts domain.ReceiptNotifier,
	dedupe EventDeduper,
	logger *log.Entry,
) *Service {
	return newService(orders, events, audit, outbox, receipts, dedupe, logger)
}

func newService(
	orders domain.OrderRepository,
	events domain.WebhookEventRepository,
	audit domain.AuditRepository,
	outbox domain.OutboxRepository,
	receipts domain.ReceiptNotifier,
	dedupe EventDeduper,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "payment-webhook")
	}
	return &Service{
		orders:   orders,
		events:   events,
		audit:    audit,
		outbox:   outbox,
		receipts: receipts,
		dedupe:   dedupe,
		logger:   logger,
	}
}

// Process применяет событие шлюза к заказу. Ошибка возвращается только
// при сбоях хранилища: бизнес-исходы (дубль, сирота, незнакомый тип,
// неполное тело) кодируются в Result и наружу уходят как 200. Событие
// фиксируется обработанным только ПОСЛЕ применения эффекта: если бы
// запись делалась до перехода, сбой хранилища на переходе превращал бы
// ретрай шлюза в дубль и подтверждение оплаты терялось навсегда.
func (s *Service) Process(event domain.PaymentEvent) (Result, error) {
	entry := s.logger.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
	})

	if errs := event.Validate(); len(errs) > 0 {
		// Подпись сошлась, а тело неполное: ретраи шлюза такое тело
		// не исправят, поэтому наружу уходит 200 с rejected.
		entry.WithError(errors.Join(errs...)).Warn("signed webhook payload failed validation")
		return s.finish(entry, ResultRejected), nil
	}

	if s.dedupe != nil {
		seen, err := s.dedupe.Seen(event.ID)
		if err != nil {
			entry.WithError(err).Warn("fast dedupe unavailable, falling back to store")
		} else if seen {
			return s.finish(entry, ResultDuplicate), nil
		}
	}

	seen, err := s.events.Seen(event.ID)
	if err != nil {
		return "", err
	}
	if seen {
		return s.finish(entry, ResultDuplicate), nil
	}

	switch event.Type {
	case domain.PaymentEventCheckoutCompleted, domain.PaymentEventSucceeded:
		return s.applySuccess(entry, event)
	case domain.PaymentEventCheckoutExpired, domain.PaymentEventFailed:
		return s.applyFailure(entry, event)
	default:
		entry.Info("webhook event type is not handled")
		s.remember(entry, event)
		return s.finish(entry, ResultIgnored), nil
	}
}

// remember фиксирует событие в хранилище и быстром кэше. Вызывается
// только после того, как эффект события применён (или заведомо не будет
// применён). Сбой фиксации результат не отменяет: повторная доставка
// упрётся в CAS-предикат перехода и классифицируется как дубль.
func (s *Service) remember(entry *log.Entry, event domain.PaymentEvent) {
	if _, err := s.events.MarkProcessed(domain.ProcessedEvent{
		EventID:     event.ID,
		EventType:   event.Type,
		OrderID:     event.OrderID,
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		entry.WithError(err).Error("failed to record processed webhook event")
	}
	if s.dedupe != nil {
		if err := s.dedupe.Remember(event.ID); err != nil {
			entry.WithError(err).Warn("fast dedupe remember failed")
		}
	}
}

func (s *Service) applySuccess(entry *log.Entry, event domain.PaymentEvent) (Result, error) {
	order, err := s.orders.TransitionStatus(event.OrderID, domain.OrderStatusPending, domain.OrderStatusProcessing)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return s.orphan(entry, event), nil
	case errors.Is(err, domain.ErrStatusConflict):
		// Событие новое, но заказ уже не PENDING: статус двинуло
		// более раннее событие той же оплаты.
		s.remember(entry, event)
		return s.finish(entry, ResultDuplicate), nil
	case err != nil:
		return "", err
	}

	entry.Info("payment confirmed")
	s.remember(entry, event)
	s.appendAudit(event, domain.AuditActionPaymentSucceeded, map[string]any{
		"amount_minor": event.AmountMinor,
	})
	s.enqueueEvent("order.paid", order)
	s.sendReceipt(order)

	return s.finish(entry, ResultApplied), nil
}

func (s *Service) applyFailure(entry *log.Entry, event domain.PaymentEvent) (Result, error) {
	order, err := s.orders.CancelRestocking(event.OrderID)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return s.orphan(entry, event), nil
	case errors.Is(err, domain.ErrStatusConflict):
		s.remember(entry, event)
		return s.finish(entry, ResultDuplicate), nil
	case err != nil:
		return "", err
	}

	entry.Info("payment failed, order cancelled with restock")
	s.remember(entry, event)
	s.appendAudit(event, domain.AuditActionPaymentFailed, map[string]any{
		"amount_minor": event.AmountMinor,
	})
	s.enqueueEvent("order.cancelled", order)

	return s.finish(entry, ResultApplied), nil
}

// orphan фиксирует событие по неизвестному заказу. Наружу уходит 200:
// ретраи шлюза здесь ничего не исправят, след остаётся в аудите.
func (s *Service) orphan(entry *log.Entry, event domain.PaymentEvent) Result {
	entry.Warn("webhook references unknown order")
	s.appendAudit(event, domain.AuditActionWebhookOrphan, map[string]any{
		"event_type": event.Type,
	})
	s.remember(entry, event)
	return s.finish(entry, ResultOrphan)
}

func (s *Service) finish(entry *log.Entry, result Result) Result {
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(string(result))
	}
	entry.WithField("result", string(result)).Debug("webhook event processed")
	return result
}

func (s *Service) appendAudit(event domain.PaymentEvent, action string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte(`{}`)
	}
	auditEntry := domain.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: domain.AuditEntityOrder,
		EntityID:   event.OrderID,
		Details:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.Append(auditEntry); err != nil {
		s.logger.WithError(err).WithField("order_id", event.OrderID).Error("failed to append audit entry")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordAuditEntry()
	}
}

func (s *Service) enqueueEvent(eventType string, order domain.Order) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"status":      string(order.Status),
		"total_minor": order.TotalMinor,
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to marshal outbox payload")
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to enqueue outbox event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func (s *Service) sendReceipt(order domain.Order) {
	if s.receipts == nil {
		return
	}
	if err := s.receipts.SendReceipt(order.ID, order.Locale); err != nil {
		if s.metrics != nil {
			s.metrics.RecordReceiptError()
		}
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("receipt send failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordReceiptSend()
	}
}
