package payment

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/storage/memory"
)

type receiptRecorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *receiptRecorder) SendReceipt(orderID, locale string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, orderID)
	return nil
}

func (r *receiptRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type flakyDeduper struct {
	seen map[string]bool
	err  error
}

func (d *flakyDeduper) Seen(eventID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.seen[eventID], nil
}

func (d *flakyDeduper) Remember(eventID string) error {
	if d.err != nil {
		return d.err
	}
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	d.seen[eventID] = true
	return nil
}

// flakyOrders отдаёт transient-ошибку на первые failures CAS-переходов.
type flakyOrders struct {
	domain.OrderRepository
	failures int
}

func (o *flakyOrders) TransitionStatus(orderID string, from, to domain.OrderStatus) (domain.Order, error) {
	if o.failures > 0 {
		o.failures--
		return domain.Order{}, errors.New("connection reset by peer")
	}
	return o.OrderRepository.TransitionStatus(orderID, from, to)
}

type fixture struct {
	service  *Service
	stock    *memory.StockRepository
	orders   domain.OrderRepository
	audit    domain.AuditRepository
	receipts *receiptRecorder
}

func newFixture(t *testing.T, dedupe EventDeduper) *fixture {
	t.Helper()

	stock := memory.NewStockRepository()
	orders := memory.NewOrderRepository(stock)
	audit := memory.NewAuditRepository()
	receipts := &receiptRecorder{}

	return &fixture{
		service: NewServiceWithoutMetrics(
			orders, memory.NewWebhookEventRepository(), audit,
			memory.NewOutboxRepository(), receipts, dedupe, nil,
		),
		stock:    stock,
		orders:   orders,
		audit:    audit,
		receipts: receipts,
	}
}

func (f *fixture) seedPendingOrder(t *testing.T, orderID string, qty int32) {
	t.Helper()

	if _, err := f.stock.Upsert(domain.StockItem{
		ID:         "gpu-1",
		Kind:       domain.ProductKindComponent,
		Name:       "RTX 5080",
		PriceMinor: 100_00,
		Quantity:   10,
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	now := time.Now().UTC()
	if err := f.orders.CreateReservingStock(domain.Order{
		ID:            orderID,
		UserID:        "customer-1",
		Status:        domain.OrderStatusPending,
		TotalMinor:    int64(qty) * 100_00,
		PaymentMethod: "card",
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "gpu-1", Kind: domain.ProductKindComponent, Qty: qty, PriceMinor: 100_00, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestProcess_SuccessTransitionsAndSendsReceipt(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPendingOrder(t, "order-1", 1)

	result, err := f.service.Process(domain.PaymentEvent{
		ID:          "evt-1",
		Type:        domain.PaymentEventSucceeded,
		OrderID:     "order-1",
		AmountMinor: 100_00,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result != ResultApplied {
		t.Fatalf("expected applied, got %s", result)
	}

	order, err := f.orders.Get("order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", order.Status)
	}
	if f.receipts.count() != 1 {
		t.Fatalf("expected 1 receipt, got %d", f.receipts.count())
	}

	trail, _ := f.audit.ListByEntity(domain.AuditEntityOrder, "order-1")
	if len(trail) != 1 || trail[0].Action != domain.AuditActionPaymentSucceeded {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}
}

func TestProcess_DoubleDeliveryIsSingleTransition(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPendingOrder(t, "order-1", 1)

	event := domain.PaymentEvent{
		ID:      "evt-1",
		Type:    domain.PaymentEventSucceeded,
		OrderID: "order-1",
	}

	first, err := f.service.Process(event)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := f.service.Process(event)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if first != ResultApplied || second != ResultDuplicate {
		t.Fatalf("expected applied/duplicate, got %s/%s", first, second)
	}

	order, _ := f.orders.Get("order-1")
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", order.Status)
	}
	if f.receipts.count() != 1 {
		t.Fatalf("expected exactly 1 receipt, got %d", f.receipts.count())
	}
}

func TestProcess_DistinctEventsSameOrderSecondIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPendingOrder(t, "order-1", 1)

	first, err := f.service.Process(domain.PaymentEvent{
		ID: "evt-1", Type: domain.PaymentEventCheckoutCompleted, OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("first event: %v", err)
	}
	// Другой event_id, но заказ уже не PENDING: CAS не пускает.
	second, err := f.service.Process(domain.PaymentEvent{
		ID: "evt-2", Type: domain.PaymentEventSucceeded, OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("second event: %v", err)
	}

	if first != ResultApplied || second != ResultDuplicate {
		t.Fatalf("expected applied/duplicate, got %s/%s", first, second)
	}
	if f.receipts.count() != 1 {
		t.Fatalf("expected exactly 1 receipt, got %d", f.receipts.count())
	}
}

func TestProcess_FailureCancelsWithRestock(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPendingOrder(t, "order-1", 3)

	result, err := f.service.Process(domain.PaymentEvent{
		ID: "evt-1", Type: domain.PaymentEventFailed, OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result != ResultApplied {
		t.Fatalf("expected applied, got %s", result)
	}

	order, _ := f.orders.Get("order-1")
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", order.Status)
	}

	item, err := f.stock.Get("gpu-1")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if item.Quantity != 10 {
		t.Fatalf("expected full restock to 10, got %d", item.Quantity)
	}
	if f.receipts.count() != 0 {
		t.Fatalf("failure must not send receipt, got %d", f.receipts.count())
	}

	trail, _ := f.audit.ListByEntity(domain.AuditEntityOrder, "order-1")
	if len(trail) != 1 || trail[0].Action != domain.AuditActionPaymentFailed {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}
}

func TestProcess_UnknownOrderIsOrphan(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.service.Process(domain.PaymentEvent{
		ID: "evt-1", Type: domain.PaymentEventSucceeded, OrderID: "ghost-order",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result != ResultOrphan {
		t.Fatalf("expected orphan, got %s", result)
	}

	trail, _ := f.audit.ListByEntity(domain.AuditEntityOrder, "ghost-order")
	if len(trail) != 1 || trail[0].Action != domain.AuditActionWebhookOrphan {
		t.Fatalf("orphan must leave an audit record: %+v", trail)
	}
}

func TestProcess_UnknownEventTypeIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPendingOrder(t, "order-1", 1)

	result, err := f.service.Process(domain.PaymentEvent{
		ID: "evt-1", Type: "charge.refund_requested", OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result != ResultIgnored {
		t.Fatalf("expected ignored, got %s", result)
	}

	order, _ := f.orders.Get("order-1")
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("order must stay PENDING, got %s", order.Status)
	}
}

// Подписанное, но неполное тело — не повод для не-2xx: шлюз ретраил бы
// его вечно. Исход кодируется как rejected без ошибки.
func TestProcess_MalformedPayloadRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPendingOrder(t, "order-1", 1)

	result, err := f.service.Process(domain.PaymentEvent{Type: domain.PaymentEventSucceeded, OrderID: "order-1"})
	if err != nil {
		t.Fatalf("malformed payload must not error: %v", err)
	}
	if result != ResultRejected {
		t.Fatalf("expected rejected, got %s", result)
	}

	result, err = f.service.Process(domain.PaymentEvent{ID: "evt-1", OrderID: "order-1"})
	if err != nil {
		t.Fatalf("malformed payload must not error: %v", err)
	}
	if result != ResultRejected {
		t.Fatalf("expected rejected, got %s", result)
	}

	// Отклонённое тело не фиксируется: исправленное событие с тем же id применяется.
	result, err = f.service.Process(domain.PaymentEvent{
		ID: "evt-1", Type: domain.PaymentEventSucceeded, OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("corrected event: %v", err)
	}
	if result != ResultApplied {
		t.Fatalf("expected applied after correction, got %s", result)
	}
}

// Сбой хранилища на переходе не должен превращать ретрай в дубль:
// событие фиксируется обработанным только после применения.
func TestProcess_StoreFailureThenRetryApplies(t *testing.T) {
	stock := memory.NewStockRepository()
	orders := &flakyOrders{OrderRepository: memory.NewOrderRepository(stock), failures: 1}
	audit := memory.NewAuditRepository()
	receipts := &receiptRecorder{}
	f := &fixture{
		service: NewServiceWithoutMetrics(
			orders, memory.NewWebhookEventRepository(), audit,
			memory.NewOutboxRepository(), receipts, nil, nil,
		),
		stock:    stock,
		orders:   orders,
		audit:    audit,
		receipts: receipts,
	}
	f.seedPendingOrder(t, "order-1", 1)

	event := domain.PaymentEvent{
		ID: "evt-1", Type: domain.PaymentEventSucceeded, OrderID: "order-1", AmountMinor: 100_00,
	}

	if _, err := f.service.Process(event); err == nil {
		t.Fatal("expected transient store error on first delivery")
	}
	order, _ := f.orders.Get("order-1")
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("failed delivery must leave order PENDING, got %s", order.Status)
	}

	retry, err := f.service.Process(event)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry != ResultApplied {
		t.Fatalf("retry must apply the payment, got %s", retry)
	}
	order, _ = f.orders.Get("order-1")
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING after retry, got %s", order.Status)
	}
	if f.receipts.count() != 1 {
		t.Fatalf("expected exactly 1 receipt, got %d", f.receipts.count())
	}

	// Следующая доставка отсекается записью в хранилище событий.
	third, err := f.service.Process(event)
	if err != nil {
		t.Fatalf("third delivery: %v", err)
	}
	if third != ResultDuplicate {
		t.Fatalf("expected duplicate, got %s", third)
	}
}

func TestProcess_FastDeduper(t *testing.T) {
	dedupe := &flakyDeduper{}
	f := newFixture(t, dedupe)
	f.seedPendingOrder(t, "order-1", 1)

	event := domain.PaymentEvent{
		ID: "evt-1", Type: domain.PaymentEventSucceeded, OrderID: "order-1",
	}

	first, err := f.service.Process(event)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := f.service.Process(event)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if first != ResultApplied || second != ResultDuplicate {
		t.Fatalf("expected applied/duplicate, got %s/%s", first, second)
	}
}

func TestProcess_FastDeduperFailureFallsBackToStore(t *testing.T) {
	dedupe := &flakyDeduper{err: errors.New("redis is down")}
	f := newFixture(t, dedupe)
	f.seedPendingOrder(t, "order-1", 1)

	result, err := f.service.Process(domain.PaymentEvent{
		ID: "evt-1", Type: domain.PaymentEventSucceeded, OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("process with broken deduper: %v", err)
	}
	if result != ResultApplied {
		t.Fatalf("expected applied, got %s", result)
	}
}
