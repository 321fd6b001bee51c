package approval

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/metrics"
)

// ComponentLine — комплектующее в запросе на создание/изменение сборки.
type ComponentLine struct {
	StockItemID string
	Qty         int32
}

// Service реализует жизненный цикл пользовательских сборок:
// DRAFT → SUBMITTED → {APPROVED, REJECTED}, публикация из APPROVED.
type Service struct {
	configs domain.ConfigurationRepository
	stock   domain.StockRepository
	audit   domain.AuditRepository
	logger  *log.Entry
	metrics *metrics.CommerceMetrics
}

// NewService создаёт рабочий экземпляр сервиса сборок.
func NewService(
	configs domain.ConfigurationRepository,
	stock domain.StockRepository,
	audit domain.AuditRepository,
	logger *log.Entry,
) *Service {
	s := newService(configs, stock, audit, logger)
	s.metrics = metrics.NewCommerceMetrics()
	return s
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(
	configs domain.ConfigurationRepository,
	stock domain.StockRepository,
	audit domain.AuditRepository,
	logger *log.Entry,
) *Service {
	return newService(configs, stock, audit, logger)
}

func newService(
	configs domain.ConfigurationRepository,
	stock domain.StockRepository,
	audit domain.AuditRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "approval")
	}
	return &Service{
		configs: configs,
		stock:   stock,
		audit:   audit,
		logger:  logger,
	}
}

// Create создаёт черновик сборки, фиксируя цены комплектующих из каталога.
func (s *Service) Create(actor domain.Actor, lines []ComponentLine) (domain.Configuration, error) {
	if actor.UserID == "" {
		return domain.Configuration{}, domain.ErrForbidden
	}

	items, err := s.resolveComponents(lines)
	if err != nil {
		return domain.Configuration{}, err
	}

	now := time.Now().UTC()
	cfg := domain.Configuration{
		ID:        uuid.NewString(),
		UserID:    actor.UserID,
		Status:    domain.ConfigurationStatusDraft,
		Items:     items,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cfg.RecalculateTotal()

	if errs := cfg.Validate(); len(errs) > 0 {
		return domain.Configuration{}, errors.Join(errs...)
	}

	if err := s.configs.Create(cfg); err != nil {
		return domain.Configuration{}, err
	}

	s.logger.WithFields(log.Fields{
		"configuration_id": cfg.ID,
		"user_id":          cfg.UserID,
		"total_minor":      cfg.TotalMinor,
	}).Info("configuration draft created")

	return cfg, nil
}

// UpdateComponents заменяет состав черновика. Сумма пересчитывается
// из каталога на сервере: присланным клиентом ценам доверия нет.
func (s *Service) UpdateComponents(actor domain.Actor, configID string, lines []ComponentLine) (domain.Configuration, error) {
	cfg, err := s.configs.Get(configID)
	if err != nil {
		return domain.Configuration{}, err
	}
	if !actor.Owns(cfg.UserID) && !actor.IsAdmin() {
		return domain.Configuration{}, domain.ErrForbidden
	}
	if cfg.Status != domain.ConfigurationStatusDraft {
		return domain.Configuration{}, &domain.IllegalTransitionError{
			Entity: "configuration",
			From:   string(cfg.Status),
			To:     string(domain.ConfigurationStatusDraft),
		}
	}

	items, err := s.resolveComponents(lines)
	if err != nil {
		return domain.Configuration{}, err
	}

	cfg.Items = items
	cfg.RecalculateTotal()
	cfg.UpdatedAt = time.Now().UTC()

	if errs := cfg.Validate(); len(errs) > 0 {
		return domain.Configuration{}, errors.Join(errs...)
	}
	if err := s.configs.Save(cfg); err != nil {
		return domain.Configuration{}, err
	}

	return s.configs.Get(configID)
}

// Submit отправляет черновик владельца на проверку.
func (s *Service) Submit(actor domain.Actor, configID string) (domain.Configuration, error) {
	return s.transition(actor, configID, domain.ConfigurationStatusSubmitted, func(cfg *domain.Configuration) error {
		if !actor.Owns(cfg.UserID) && !actor.IsAdmin() {
			return domain.ErrForbidden
		}
		if len(cfg.Items) == 0 {
			return domain.ErrItemsRequired
		}
		return nil
	}, domain.AuditActionConfigSubmitted, "submit", nil)
}

// Approve одобряет сборку. Доступно специалисту и админу.
func (s *Service) Approve(actor domain.Actor, configID string) (domain.Configuration, error) {
	return s.transition(actor, configID, domain.ConfigurationStatusApproved, func(cfg *domain.Configuration) error {
		if !actor.IsReviewer() {
			return domain.ErrForbidden
		}
		return nil
	}, domain.AuditActionConfigApproved, "approve", nil)
}

// Reject отклоняет сборку с обязательной причиной.
func (s *Service) Reject(actor domain.Actor, configID, reason string) (domain.Configuration, error) {
	if reason == "" {
		return domain.Configuration{}, domain.ErrRejectReasonRequired
	}
	return s.transition(actor, configID, domain.ConfigurationStatusRejected, func(cfg *domain.Configuration) error {
		if !actor.IsReviewer() {
			return domain.ErrForbidden
		}
		cfg.RejectReason = reason
		return nil
	}, domain.AuditActionConfigRejected, "reject", map[string]any{"reason": reason})
}

// Publish выставляет одобренную сборку в публичную витрину.
// Это не переход статуса: сборка остаётся APPROVED.
func (s *Service) Publish(actor domain.Actor, configID string) (domain.Configuration, error) {
	cfg, err := s.configs.Get(configID)
	if err != nil {
		return domain.Configuration{}, err
	}
	if !actor.IsReviewer() {
		return domain.Configuration{}, domain.ErrForbidden
	}
	if cfg.Status != domain.ConfigurationStatusApproved {
		return domain.Configuration{}, &domain.IllegalTransitionError{
			Entity: "configuration",
			From:   string(cfg.Status),
			To:     "PUBLIC",
		}
	}

	cfg.IsPublic = true
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.configs.Save(cfg); err != nil {
		return domain.Configuration{}, err
	}

	s.recordTransition("publish")
	s.appendAudit(actor, domain.AuditActionConfigPublished, cfg.ID, nil)

	return s.configs.Get(configID)
}

// Get возвращает сборку владельцу, проверяющему или любому читателю,
// если сборка опубликована.
func (s *Service) Get(actor domain.Actor, configID string) (domain.Configuration, error) {
	cfg, err := s.configs.Get(configID)
	if err != nil {
		return domain.Configuration{}, err
	}
	if cfg.IsPublic || actor.Owns(cfg.UserID) || actor.IsReviewer() {
		return cfg, nil
	}
	return domain.Configuration{}, domain.ErrForbidden
}

// ListPublic возвращает опубликованные сборки для витрины.
func (s *Service) ListPublic(limit int) ([]domain.Configuration, error) {
	return s.configs.ListPublic(limit)
}

// transition применяет переход статуса с проверкой прав и допустимости.
// Недопустимый переход возвращает IllegalTransitionError без мутаций.
func (s *Service) transition(
	actor domain.Actor,
	configID string,
	next domain.ConfigurationStatus,
	gate func(cfg *domain.Configuration) error,
	auditAction, metricAction string,
	details map[string]any,
) (domain.Configuration, error) {
	cfg, err := s.configs.Get(configID)
	if err != nil {
		return domain.Configuration{}, err
	}
	if err := gate(&cfg); err != nil {
		return domain.Configuration{}, err
	}
	if !cfg.Status.CanTransitionTo(next) {
		return domain.Configuration{}, &domain.IllegalTransitionError{
			Entity: "configuration",
			From:   string(cfg.Status),
			To:     string(next),
		}
	}

	cfg.Status = next
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.configs.Save(cfg); err != nil {
		return domain.Configuration{}, err
	}

	s.recordTransition(metricAction)
	s.logger.WithFields(log.Fields{
		"configuration_id": cfg.ID,
		"status":           string(next),
	}).Info("configuration transitioned")
	s.appendAudit(actor, auditAction, cfg.ID, details)

	return s.configs.Get(configID)
}

func (s *Service) recordTransition(action string) {
	if s.metrics != nil {
		s.metrics.RecordApprovalTransition(action)
	}
}

func (s *Service) resolveComponents(lines []ComponentLine) ([]domain.ConfigurationItem, error) {
	if len(lines) == 0 {
		return nil, domain.ErrItemsRequired
	}

	items := make([]domain.ConfigurationItem, 0, len(lines))
	for _, line := range lines {
		stockItem, err := s.stock.Get(line.StockItemID)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.ConfigurationItem{
			ID:          uuid.NewString(),
			StockItemID: stockItem.ID,
			Qty:         line.Qty,
			PriceMinor:  stockItem.PriceMinor,
		})
	}
	return items, nil
}

func (s *Service) appendAudit(actor domain.Actor, action, configID string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil || details == nil {
		payload = []byte(`{}`)
	}
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: domain.AuditEntityConfiguration,
		EntityID:   configID,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Details:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.Append(entry); err != nil {
		s.logger.WithError(err).WithField("configuration_id", configID).Error("failed to append audit entry")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordAuditEntry()
	}
}
