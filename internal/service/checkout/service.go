package checkout

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/metrics"
)

// CartLine — позиция корзины в запросе на оформление заказа.
// Цена от клиента не принимается: снапшот берётся из каталога на сервере.
type CartLine struct {
	ProductID string
	Qty       int32
}

// CreateOrderInput — параметры оформления заказа.
type CreateOrderInput struct {
	PaymentMethod string
	Locale        string
	Lines         []CartLine
}

// CancelInput — параметры отмены заказа.
type CancelInput struct {
	OrderID string
	Reason  string
}

// Service реализует оформление, чтение и отмену заказов.
type Service struct {
	orders   domain.OrderRepository
	stock    domain.StockRepository
	configs  domain.ConfigurationRepository
	audit    domain.AuditRepository
	outbox   domain.OutboxRepository
	receipts domain.ReceiptNotifier
	logger   *log.Entry
	metrics  *metrics.CommerceMetrics
}

// NewService создаёт рабочий экземпляр сервиса заказов.
func NewService(
	orders domain.OrderRepository,
	stock domain.StockRepository,
	configs domain.ConfigurationRepository,
	audit domain.AuditRepository,
	outbox domain.OutboxRepository,
	receipts domain.ReceiptNotifier,
	logger *log.Entry,
) *Service {
	s := newService(orders, stock, configs, audit, outbox, receipts, logger)
	s.metrics = metrics.NewCommerceMetrics()
	return s
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(
	orders domain.OrderRepository,
	stock domain.StockRepository,
	configs domain.ConfigurationRepository,
	audit domain.AuditRepository,
	outbox domain.OutboxRepository,
	receipts domain.ReceiptNotifier,
	logger *log.Entry,
) *Service {
	return newService(orders, stock, configs, audit, outbox, receipts, logger)
}

func newService(
	orders domain.OrderRepository,
	stock domain.StockRepository,
	configs domain.ConfigurationRepository,
	audit domain.AuditRepository,
	outbox domain.OutboxRepository,
	receipts domain.ReceiptNotifier,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Service{
		orders:   orders,
		stock:    stock,
		configs:  configs,
		audit:    audit,
		outbox:   outbox,
		receipts: receipts,
		logger:   logger,
	}
}

// Create оформляет заказ: снимает снапшот цен из каталога, атомарно
// списывает сток и создаёт заказ в статусе PENDING. Гостевое оформление
// допускается — у актора тогда пустой UserID.
func (s *Service) Create(actor domain.Actor, input CreateOrderInput) (domain.Order, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	now := time.Now().UTC()
	order := domain.Order{
		ID:            uuid.NewString(),
		UserID:        actor.UserID,
		Status:        domain.OrderStatusPending,
		PaymentMethod: input.PaymentMethod,
		Locale:        input.Locale,
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, line := range input.Lines {
		item, err := s.resolveLine(line, now)
		if err != nil {
			return domain.Order{}, err
		}
		order.Items = append(order.Items, item)
		order.TotalMinor += int64(item.Qty) * item.PriceMinor
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	if err := s.orders.CreateReservingStock(order); err != nil {
		if domain.IsInsufficientStock(err) {
			if s.metrics != nil {
				s.metrics.RecordInsufficientStock()
			}
			s.logger.WithError(err).WithField("order_id", order.ID).Info("checkout rejected: insufficient stock")
		}
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_minor": order.TotalMinor,
	}).Info("order created")

	s.appendAudit(actor, domain.AuditActionOrderCreated, order.ID, map[string]any{
		"total_minor":    order.TotalMinor,
		"payment_method": order.PaymentMethod,
		"items":          len(order.Items),
	})
	s.enqueueEvent("order.created", order)

	// При оплате наличными чек уходит сразу, не дожидаясь вебхука.
	// Сбой отправки не должен ломать оформление.
	if order.PaymentMethod == "cash" {
		s.sendReceipt(order)
	}

	return order, nil
}

// resolveLine находит позицию корзины в каталоге либо среди готовых
// сборок и фиксирует цену на момент покупки.
func (s *Service) resolveLine(line CartLine, now time.Time) (domain.OrderItem, error) {
	item := domain.OrderItem{
		ID:        uuid.NewString(),
		ProductID: line.ProductID,
		Qty:       line.Qty,
		CreatedAt: now,
	}

	stockItem, err := s.stock.Get(line.ProductID)
	if err == nil {
		item.Kind = stockItem.Kind
		item.PriceMinor = stockItem.PriceMinor
		return item, nil
	}
	if !errors.Is(err, domain.ErrStockItemNotFound) {
		return domain.OrderItem{}, err
	}

	cfg, cfgErr := s.configs.Get(line.ProductID)
	if cfgErr != nil {
		if errors.Is(cfgErr, domain.ErrConfigurationNotFound) {
			return domain.OrderItem{}, domain.ErrStockItemNotFound
		}
		return domain.OrderItem{}, cfgErr
	}

	item.Kind = domain.ProductKindConfiguration
	item.PriceMinor = cfg.TotalMinor
	return item, nil
}

// Get возвращает заказ владельцу или админу. Гостевой заказ без
// владельца доступен только админу.
func (s *Service) Get(actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanAccess(order.UserID) {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

// ListMine возвращает заказы текущего пользователя.
func (s *Service) ListMine(actor domain.Actor, limit int) ([]domain.Order, error) {
	if actor.UserID == "" {
		return nil, domain.ErrForbidden
	}
	return s.orders.ListByUser(actor.UserID, limit)
}

// Cancel отменяет PENDING-заказ владельца и атомарно возвращает сток.
// Заказ не в PENDING вернёт ErrStatusConflict без изменений.
func (s *Service) Cancel(actor domain.Actor, input CancelInput) (domain.Order, error) {
	order, err := s.orders.Get(input.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanAccess(order.UserID) {
		return domain.Order{}, domain.ErrForbidden
	}

	cancelled, err := s.orders.CancelRestocking(input.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
	}
	s.logger.WithFields(log.Fields{
		"order_id": cancelled.ID,
		"reason":   input.Reason,
	}).Info("order cancelled")

	s.appendAudit(actor, domain.AuditActionOrderCancelled, cancelled.ID, map[string]any{
		"reason": input.Reason,
	})
	s.enqueueEvent("order.cancelled", cancelled)

	return cancelled, nil
}

func (s *Service) appendAudit(actor domain.Actor, action, orderID string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte(`{}`)
	}
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: domain.AuditEntityOrder,
		EntityID:   orderID,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Details:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.Append(entry); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("failed to append audit entry")
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
