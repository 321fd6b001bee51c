package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

type configurationRepository struct {
	db *sql.DB
}

// NewConfigurationRepository создаёт PostgreSQL-реализацию ConfigurationRepository.
func NewConfigurationRepository(store *Store) domain.ConfigurationRepository {
	return &configurationRepository{db: store.DB()}
}

func (r *configurationRepository) Create(cfg domain.Configuration) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO configurations (
			id, user_id, status, is_public, is_template, total_minor,
			reject_reason, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		cfg.ID, cfg.UserID, string(cfg.Status), cfg.IsPublic, cfg.IsTemplate,
		cfg.TotalMinor, cfg.RejectReason, cfg.Version, cfg.CreatedAt, cfg.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert configuration: %w", err)
	}

	if err = insertConfigurationItems(ctx, tx, cfg.ID, cfg.Items); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create configuration: %w", err)
	}

	return nil
}

func (r *configurationRepository) Get(id string) (domain.Configuration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	cfg, err := scanConfiguration(r.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, is_public, is_template, total_minor,
		       reject_reason, version, created_at, updated_at
		FROM configurations
		WHERE id = $1
	`, id))
	if err != nil {
		return domain.Configuration{}, err
	}

	items, err := r.loadItems(ctx, cfg.ID)
	if err != nil {
		return domain.Configuration{}, err
	}
	cfg.Items = items

	return cfg, nil
}

// Save перезаписывает сборку с optimistic locking по Version: строка
// обновляется только если версия в базе совпадает с версией, которую
// читал вызывающий. Позиции при этом заменяются целиком.
func (r *configurationRepository) Save(cfg domain.Configuration) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		UPDATE configurations
		SET status = $2, is_public = $3, is_template = $4, total_minor = $5,
		    reject_reason = $6, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $7
	`,
		cfg.ID, string(cfg.Status), cfg.IsPublic, cfg.IsTemplate,
		cfg.TotalMinor, cfg.RejectReason, cfg.Version,
	)
	if err != nil {
		return fmt.Errorf("update configuration: %w", err)
	}
	var affected int64
	if affected, err = res.RowsAffected(); err != nil {
		return fmt.Errorf("update configuration rows affected: %w", err)
	}
	if affected == 0 {
		exists := false
		if exists, err = r.configurationExists(ctx, tx, cfg.ID); err != nil {
			return err
		}
		if !exists {
			err = domain.ErrConfigurationNotFound
			return err
		}
		err = domain.ErrVersionConflict
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		DELETE FROM configuration_items WHERE configuration_id = $1
	`, cfg.ID); err != nil {
		return fmt.Errorf("delete configuration items: %w", err)
	}
	if err = insertConfigurationItems(ctx, tx, cfg.ID, cfg.Items); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save configuration: %w", err)
	}

	return nil
}

func (r *configurationRepository) ListPublic(limit int) ([]domain.Configuration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, user_id, status, is_public, is_template, total_minor,
		       reject_reason, version, created_at, updated_at
		FROM configurations
		WHERE is_public = TRUE
		ORDER BY updated_at DESC, id
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list public configurations: %w", err)
	}
	defer rows.Close()

	configs := make([]domain.Configuration, 0)
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		items, err := r.loadItems(ctx, cfg.ID)
		if err != nil {
			return nil, err
		}
		cfg.Items = items
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configuration rows: %w", err)
	}

	return configs, nil
}

func (r *configurationRepository) loadItems(ctx context.Context, configID string) ([]domain.ConfigurationItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stock_item_id, qty, price_minor
		FROM configuration_items
		WHERE configuration_id = $1
		ORDER BY id
	`, configID)
	if err != nil {
		return nil, fmt.Errorf("load configuration items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ConfigurationItem, 0)
	for rows.Next() {
		var item domain.ConfigurationItem
		if err := rows.Scan(&item.ID, &item.StockItemID, &item.Qty, &item.PriceMinor); err != nil {
			return nil, fmt.Errorf("scan configuration item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configuration items: %w", err)
	}

	return items, nil
}

func (r *configurationRepository) configurationExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var got string
	err := tx.QueryRowContext(ctx, `SELECT id FROM configurations WHERE id = $1`, id).Scan(&got)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check configuration exists: %w", err)
}

func insertConfigurationItems(ctx context.Context, tx *sql.Tx, configID string, items []domain.ConfigurationItem) error {
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO configuration_items (id, configuration_id, stock_item_id, qty, price_minor)
			VALUES ($1,$2,$3,$4,$5)
		`, item.ID, configID, item.StockItemID, item.Qty, item.PriceMinor); err != nil {
			return fmt.Errorf("insert configuration item: %w", err)
		}
	}
	return nil
}

func scanConfiguration(row rowScanner) (domain.Configuration, error) {
	var (
		cfg    domain.Configuration
		status string
	)
	err := row.Scan(
		&cfg.ID, &cfg.UserID, &status, &cfg.IsPublic, &cfg.IsTemplate,
		&cfg.TotalMinor, &cfg.RejectReason, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Configuration{}, domain.ErrConfigurationNotFound
	}
	if err != nil {
		return domain.Configuration{}, fmt.Errorf("scan configuration row: %w", err)
	}
	cfg.Status = domain.ConfigurationStatus(status)
	return cfg, nil
}

var _ domain.ConfigurationRepository = (*configurationRepository)(nil)
