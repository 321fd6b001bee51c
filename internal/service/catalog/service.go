package catalog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/metrics"
)

// UpsertInput — параметры создания/обновления позиции каталога.
type UpsertInput struct {
	Kind       domain.ProductKind
	Name       string
	PriceMinor int64
	Quantity   int32
}

// Service реализует чтение каталога и админский upsert позиций.
type Service struct {
	stock   domain.StockRepository
	audit   domain.AuditRepository
	logger  *log.Entry
	metrics *metrics.CommerceMetrics
}

// NewService создаёт рабочий экземпляр сервиса каталога.
func NewService(stock domain.StockRepository, audit domain.AuditRepository, logger *log.Entry) *Service {
	s := newService(stock, audit, logger)
	s.metrics = metrics.NewCommerceMetrics()
	return s
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(stock domain.StockRepository, audit domain.AuditRepository, logger *log.Entry) *Service {
	return newService(stock, audit, logger)
}

func newService(stock domain.StockRepository, audit domain.AuditRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{
		stock:  stock,
		audit:  audit,
		logger: logger,
	}
}

// Get возвращает позицию каталога. Каталог открыт всем.
func (s *Service) Get(id string) (domain.StockItem, error) {
	return s.stock.Get(id)
}

// List возвращает все позиции каталога.
func (s *Service) List() ([]domain.StockItem, error) {
	return s.stock.List()
}

// Upsert создаёт или обновляет позицию каталога. Только админ:
// изменение цены или остатка затрагивает все будущие заказы.
func (s *Service) Upsert(actor domain.Actor, id string, input UpsertInput) (domain.StockItem, error) {
	if !actor.IsAdmin() {
		return domain.StockItem{}, domain.ErrForbidden
	}

	item := domain.StockItem{
		ID:         id,
		Kind:       input.Kind,
		Name:       input.Name,
		PriceMinor: input.PriceMinor,
		Quantity:   input.Quantity,
	}
	if errs := item.Validate(); len(errs) > 0 {
		return domain.StockItem{}, errors.Join(errs...)
	}

	saved, err := s.stock.Upsert(item)
	if err != nil {
		return domain.StockItem{}, err
	}

	s.appendAudit(actor, saved)

	s.logger.WithFields(log.Fields{
		"stock_item_id": saved.ID,
		"quantity":      saved.Quantity,
	}).Info("stock item upserted")

	return saved, nil
}

func (s *Service) appendAudit(actor domain.Actor, item domain.StockItem) {
	payload, err := json.Marshal(map[string]any{
		"kind":        string(item.Kind),
		"name":        item.Name,
		"price_minor": item.PriceMinor,
		"quantity":    item.Quantity,
	})
	if err != nil {
		payload = []byte(`{}`)
	}
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		Action:     domain.AuditActionStockUpserted,
		EntityType: domain.AuditEntityStockItem,
		EntityID:   item.ID,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Details:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.Append(entry); err != nil {
		s.logger.WithError(err).WithField("stock_item_id", item.ID).Error("failed to append audit entry")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordAuditEntry()
	}
}
