package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

// auditRepositoryInMemory — append-only журнал аудита в памяти.
type auditRepositoryInMemory struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewAuditRepository возвращает in-memory журнал аудита.
func NewAuditRepository() domain.AuditRepository {
	return &auditRepositoryInMemory{}
}

// Append дописывает запись в журнал. Записи никогда не изменяются.
func (r *auditRepositoryInMemory) Append(entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, entry)
	return nil
}

// ListByEntity возвращает записи по сущности в порядке добавления.
func (r *auditRepositoryInMemory) ListByEntity(entityType, entityID string) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.AuditEntry, 0)
	for _, entry := range r.entries {
		if entry.EntityType == entityType && entry.EntityID == entityID {
			result = append(result, entry)
		}
	}
	return result, nil
}

var _ domain.AuditRepository = (*auditRepositoryInMemory)(nil)
