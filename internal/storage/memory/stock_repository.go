package memory

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

// StockRepository — in-memory реализация каталога для локальной
// разработки и тестов. Тип экспортирован: репозиторию заказов нужны
// его атомарные reserve/restock.
type StockRepository struct {
	mu    sync.RWMutex
	items map[string]domain.StockItem
}

// NewStockRepository возвращает пустой in-memory каталог.
func NewStockRepository() *StockRepository {
	return &StockRepository{items: make(map[string]domain.StockItem)}
}

// Get возвращает позицию каталога или ErrStockItemNotFound.
func (r *StockRepository) Get(id string) (domain.StockItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return domain.StockItem{}, domain.ErrStockItemNotFound
	}
	return item, nil
}

// List возвращает позиции каталога, отсортированные по ID.
func (r *StockRepository) List() ([]domain.StockItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.StockItem, 0, len(r.items))
	for _, item := range r.items {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Upsert создаёт или обновляет позицию, увеличивая версию.
func (r *StockRepository) Upsert(item domain.StockItem) (domain.StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if current, ok := r.items[item.ID]; ok {
		item.Version = current.Version + 1
		item.CreatedAt = current.CreatedAt
	} else {
		item.Version = 1
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	r.items[item.ID] = item
	return item, nil
}

// reserve атомарно списывает сток по всем позициям: сначала проверяются
// все остатки, затем выполняются все списания под одной блокировкой.
// Частичных списаний не бывает. Количество суммируется по product_id:
// две строки корзины на один товар проверяются как одна заявка, иначе
// списание увело бы остаток в минус.
func (r *StockRepository) reserve(items []domain.OrderItem) error {
	need := make(map[string]int32, len(items))

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range items {
		if !it.Kind.Stocked() {
			continue
		}
		stock, ok := r.items[it.ProductID]
		if !ok {
			return domain.ErrStockItemNotFound
		}
		need[it.ProductID] += it.Qty
		if stock.Quantity < need[it.ProductID] {
			return &domain.InsufficientStockError{
				ItemID:    it.ProductID,
				Requested: need[it.ProductID],
				Available: stock.Quantity,
			}
		}
	}

	now := time.Now().UTC()
	for id, qty := range need {
		stock := r.items[id]
		stock.Quantity -= qty
		stock.UpdatedAt = now
		r.items[id] = stock
	}
	return nil
}

// restock атомарно возвращает сток по всем позициям (компенсация отмены).
// Возвращает product_id позиций, которые не удалось вернуть: товар могли
// удалить из каталога между оформлением и отменой.
func (r *StockRepository) restock(items []domain.OrderItem) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []string
	now := time.Now().UTC()
	for _, it := range items {
		if !it.Kind.Stocked() {
			continue
		}
		stock, ok := r.items[it.ProductID]
		if !ok {
			dropped = append(dropped, it.ProductID)
			continue
		}
		stock.Quantity += it.Qty
		stock.UpdatedAt = now
		r.items[it.ProductID] = stock
	}
	if len(dropped) > 0 {
		log.WithField("product_ids", dropped).Warn("restock skipped for items removed from catalog")
	}
	return dropped
}

var _ domain.StockRepository = (*StockRepository)(nil)
