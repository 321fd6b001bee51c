package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository создаёт PostgreSQL-реализацию AuditRepository.
func NewAuditRepository(store *Store) domain.AuditRepository {
	return &auditRepository{db: store.DB()}
}

func (r *auditRepository) Append(entry domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, entity_type, entity_id, actor_id, actor_role, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		entry.ID, entry.Action, entry.EntityType, entry.EntityID,
		entry.ActorID, string(entry.ActorRole), []byte(details), entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	return nil
}

func (r *auditRepository) ListByEntity(entityType, entityID string) ([]domain.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, actor_id, actor_role, details, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry   domain.AuditEntry
			role    string
			details []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.Action, &entry.EntityType, &entry.EntityID,
			&entry.ActorID, &role, &details, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ActorRole = domain.Role(role)
		entry.Details = json.RawMessage(details)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}

	return entries, nil
}

var _ domain.AuditRepository = (*auditRepository)(nil)
