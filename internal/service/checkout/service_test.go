package checkout

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/storage/memory"
)

type receiptRecorder struct {
	mu       sync.Mutex
	sent     []string
	failWith error
}

func (r *receiptRecorder) SendReceipt(orderID, locale string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.sent = append(r.sent, orderID)
	return nil
}

func (r *receiptRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixture struct {
	service  *Service
	stock    *memory.StockRepository
	orders   domain.OrderRepository
	configs  domain.ConfigurationRepository
	audit    domain.AuditRepository
	outbox   domain.OutboxRepository
	receipts *receiptRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stock := memory.NewStockRepository()
	orders := memory.NewOrderRepository(stock)
	configs := memory.NewConfigurationRepository()
	audit := memory.NewAuditRepository()
	outbox := memory.NewOutboxRepository()
	receipts := &receiptRecorder{}

	return &fixture{
		service:  NewServiceWithoutMetrics(orders, stock, configs, audit, outbox, receipts, nil),
		stock:    stock,
		orders:   orders,
		configs:  configs,
		audit:    audit,
		outbox:   outbox,
		receipts: receipts,
	}
}

func (f *fixture) seedStock(t *testing.T, id string, qty int32, priceMinor int64) {
	t.Helper()
	if _, err := f.stock.Upsert(domain.StockItem{
		ID:         id,
		Kind:       domain.ProductKindComponent,
		Name:       id,
		PriceMinor: priceMinor,
		Quantity:   qty,
	}); err != nil {
		t.Fatalf("seed stock %s: %v", id, err)
	}
}

var customer = domain.Actor{UserID: "customer-1", Role: domain.RoleUser}

func TestCreate_ReservesStockAndSnapshotsPrice(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 5, 129_990_00)

	order, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Locale:        "ru",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", order.Status)
	}
	if order.TotalMinor != 2*129_990_00 {
		t.Fatalf("unexpected total: %d", order.TotalMinor)
	}
	if order.Items[0].PriceMinor != 129_990_00 {
		t.Fatalf("price snapshot missing: %+v", order.Items[0])
	}

	item, err := f.stock.Get("gpu-1")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if item.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", item.Quantity)
	}

	trail, err := f.audit.ListByEntity(domain.AuditEntityOrder, order.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(trail) != 1 || trail[0].Action != domain.AuditActionOrderCreated {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}

	pending, err := f.outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull outbox: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "order.created" {
		t.Fatalf("unexpected outbox: %+v", pending)
	}
}

func TestCreate_PriceChangeDoesNotAffectExistingOrder(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 5, 100_00)

	order, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	f.seedStock(t, "gpu-1", 5, 999_00)

	got, err := f.service.Get(customer, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Items[0].PriceMinor != 100_00 || got.TotalMinor != 100_00 {
		t.Fatalf("snapshot was not preserved: %+v", got)
	}
}

func TestCreate_InsufficientStockNamesItem(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 1, 100_00)

	_, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 2}},
	})
	if !domain.IsInsufficientStock(err) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	var insufficientErr *domain.InsufficientStockError
	if !errors.As(err, &insufficientErr) || insufficientErr.ItemID != "gpu-1" {
		t.Fatalf("error must name the item: %v", err)
	}

	item, _ := f.stock.Get("gpu-1")
	if item.Quantity != 1 {
		t.Fatalf("stock must be untouched, got %d", item.Quantity)
	}
}

func TestCreate_UnknownProductRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Lines:         []CartLine{{ProductID: "ghost", Qty: 1}},
	})
	if !errors.Is(err, domain.ErrStockItemNotFound) {
		t.Fatalf("expected ErrStockItemNotFound, got %v", err)
	}
}

func TestCreate_ConfigurationLinePricedFromTotal(t *testing.T) {
	f := newFixture(t)

	cfg := domain.Configuration{
		ID:         "config-1",
		UserID:     "builder-1",
		Status:     domain.ConfigurationStatusApproved,
		IsPublic:   true,
		TotalMinor: 250_000_00,
		Items: []domain.ConfigurationItem{
			{ID: "ci-1", StockItemID: "cpu-1", Qty: 1, PriceMinor: 250_000_00},
		},
	}
	if err := f.configs.Create(cfg); err != nil {
		t.Fatalf("create configuration: %v", err)
	}

	order, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Lines:         []CartLine{{ProductID: "config-1", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Items[0].Kind != domain.ProductKindConfiguration {
		t.Fatalf("expected CONFIGURATION kind, got %s", order.Items[0].Kind)
	}
	if order.TotalMinor != 250_000_00 {
		t.Fatalf("unexpected total: %d", order.TotalMinor)
	}
}

func TestCreate_ValidationFailures(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 5, 100_00)

	cases := []struct {
		name  string
		input CreateOrderInput
	}{
		{
			name:  "empty cart",
			input: CreateOrderInput{PaymentMethod: "card"},
		},
		{
			name: "missing payment method",
			input: CreateOrderInput{
				Lines: []CartLine{{ProductID: "gpu-1", Qty: 1}},
			},
		},
		{
			name: "non-positive qty",
			input: CreateOrderInput{
				PaymentMethod: "card",
				Lines:         []CartLine{{ProductID: "gpu-1", Qty: 0}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.service.Create(customer, tc.input); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreate_CashSendsReceiptBestEffort(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 5, 100_00)

	if _, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "cash",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 1}},
	}); err != nil {
		t.Fatalf("create cash order: %v", err)
	}
	if f.receipts.count() != 1 {
		t.Fatalf("expected 1 receipt, got %d", f.receipts.count())
	}

	// Сбой отправки чека не ломает оформление.
	f.receipts.failWith = errors.New("smtp is down")
	if _, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "cash",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 1}},
	}); err != nil {
		t.Fatalf("create must survive receipt failure: %v", err)
	}

	// Картой — чек уходит только после подтверждения оплаты вебхуком.
	f.receipts.failWith = nil
	if _, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 1}},
	}); err != nil {
		t.Fatalf("create card order: %v", err)
	}
	if f.receipts.count() != 1 {
		t.Fatalf("card order must not send receipt at checkout, got %d", f.receipts.count())
	}
}

func TestGet_AccessControl(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 5, 100_00)

	order, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := f.service.Get(customer, order.ID); err != nil {
		t.Fatalf("owner must read own order: %v", err)
	}
	if _, err := f.service.Get(domain.Actor{UserID: "stranger", Role: domain.RoleUser}, order.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger must be rejected, got %v", err)
	}
	if _, err := f.service.Get(domain.Actor{UserID: "root", Role: domain.RoleAdmin}, order.ID); err != nil {
		t.Fatalf("admin must read any order: %v", err)
	}
	if _, err := f.service.Get(customer, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestGet_GuestOrderAdminOnly(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 5, 100_00)

	guest := domain.Actor{}
	order, err := f.service.Create(guest, CreateOrderInput{
		PaymentMethod: "cash",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create guest order: %v", err)
	}
	if !order.Guest() {
		t.Fatal("expected guest order")
	}

	if _, err := f.service.Get(guest, order.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("anonymous read must be rejected, got %v", err)
	}
	if _, err := f.service.Get(domain.Actor{UserID: "root", Role: domain.RoleAdmin}, order.ID); err != nil {
		t.Fatalf("admin must read guest order: %v", err)
	}
}

func TestCancel_RestocksAndAudits(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 5, 100_00)

	order, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 3}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	cancelled, err := f.service.Cancel(customer, CancelInput{OrderID: order.ID, Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected status: %s", cancelled.Status)
	}

	item, _ := f.stock.Get("gpu-1")
	if item.Quantity != 5 {
		t.Fatalf("expected full restock, got %d", item.Quantity)
	}

	trail, _ := f.audit.ListByEntity(domain.AuditEntityOrder, order.ID)
	if len(trail) != 2 || trail[1].Action != domain.AuditActionOrderCancelled {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}
}

func TestCancel_Gates(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "gpu-1", 5, 100_00)

	order, err := f.service.Create(customer, CreateOrderInput{
		PaymentMethod: "card",
		Lines:         []CartLine{{ProductID: "gpu-1", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := f.service.Cancel(domain.Actor{UserID: "stranger", Role: domain.RoleUser}, CancelInput{OrderID: order.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger cancel must be rejected, got %v", err)
	}

	// Оплаченный заказ отменить нельзя.
	if _, err := f.orders.TransitionStatus(order.ID, domain.OrderStatusPending, domain.OrderStatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := f.service.Cancel(customer, CancelInput{OrderID: order.ID}); !errors.Is(err, domain.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	item, _ := f.stock.Get("gpu-1")
	if item.Quantity != 4 {
		t.Fatalf("failed cancel must not restock, got %d", item.Quantity)
	}
}
