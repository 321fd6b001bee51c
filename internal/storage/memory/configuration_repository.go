package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

// configurationRepositoryInMemory — in-memory реализация ConfigurationRepository.
type configurationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Configuration
}

// NewConfigurationRepository возвращает in-memory репозиторий сборок.
func NewConfigurationRepository() domain.ConfigurationRepository {
	return &configurationRepositoryInMemory{
		items: make(map[string]domain.Configuration),
	}
}

// Create сохраняет новую сборку, если ID ещё не занят.
func (r *configurationRepositoryInMemory) Create(cfg domain.Configuration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[cfg.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[cfg.ID] = cfg
	return nil
}

// Get возвращает сборку или ErrConfigurationNotFound.
func (r *configurationRepositoryInMemory) Get(id string) (domain.Configuration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.items[id]
	if !ok {
		return domain.Configuration{}, domain.ErrConfigurationNotFound
	}
	return cfg, nil
}

// Save перезаписывает сборку, проверяя версию (optimistic locking).
func (r *configurationRepositoryInMemory) Save(cfg domain.Configuration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[cfg.ID]
	if !ok {
		return domain.ErrConfigurationNotFound
	}
	if current.Version != cfg.Version {
		return domain.ErrVersionConflict
	}
	cfg.Version++
	cfg.UpdatedAt = time.Now().UTC()
	r.items[cfg.ID] = cfg
	return nil
}

// ListPublic возвращает опубликованные сборки для витрины.
func (r *configurationRepositoryInMemory) ListPublic(limit int) ([]domain.Configuration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Configuration, 0)
	for _, cfg := range r.items {
		if cfg.IsPublic {
			result = append(result, cfg)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.ConfigurationRepository = (*configurationRepositoryInMemory)(nil)
