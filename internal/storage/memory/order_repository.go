package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Делит сток с переданным StockRepository, чтобы резервирование и
// возврат выполнялись атомарно относительно конкурентных оформлений.
type orderRepositoryInMemory struct {
	mu     sync.Mutex
	stock  *StockRepository
	orders map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий заказов поверх общего каталога.
func NewOrderRepository(stock *StockRepository) domain.OrderRepository {
	return &orderRepositoryInMemory{
		stock:  stock,
		orders: make(map[string]domain.Order),
	}
}

// CreateReservingStock списывает сток и сохраняет заказ как одно целое.
func (r *orderRepositoryInMemory) CreateReservingStock(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrVersionConflict
	}
	// reserve атомарен: либо все списания, либо ни одного.
	if err := r.stock.reserve(order.Items); err != nil {
		return err
	}
	r.orders[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListByUser возвращает заказы пользователя, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByUser(userID string, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if order.UserID != userID {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// TransitionStatus применяет CAS-переход from→to.
func (r *orderRepositoryInMemory) TransitionStatus(orderID string, from, to domain.OrderStatus) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.Status != from {
		return domain.Order{}, domain.ErrStatusConflict
	}

	order.Status = to
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = order
	return order, nil
}

// CancelRestocking переводит PENDING-заказ в CANCELLED и возвращает сток.
func (r *orderRepositoryInMemory) CancelRestocking(orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, domain.ErrStatusConflict
	}

	r.stock.restock(order.Items)
	order.Status = domain.OrderStatusCancelled
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = order
	return order, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
