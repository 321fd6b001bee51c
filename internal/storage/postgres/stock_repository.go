package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

type stockRepository struct {
	db *sql.DB
}

// NewStockRepository создаёт PostgreSQL-реализацию StockRepository.
func NewStockRepository(store *Store) domain.StockRepository {
	return &stockRepository{db: store.DB()}
}

func (r *stockRepository) Get(id string) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return scanStockItem(r.db.QueryRowContext(ctx, `
		SELECT id, kind, name, price_minor, quantity, version, created_at, updated_at
		FROM stock_items
		WHERE id = $1
	`, id))
}

func (r *stockRepository) List() ([]domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, name, price_minor, quantity, version, created_at, updated_at
		FROM stock_items
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list stock items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.StockItem, 0)
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock rows: %w", err)
	}

	return items, nil
}

// Upsert создаёт позицию каталога или целиком перезаписывает существующую.
// Version на конфликте растёт на единицу, чтобы читатели видели изменение.
func (r *stockRepository) Upsert(item domain.StockItem) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()

	return scanStockItem(r.db.QueryRowContext(ctx, `
		INSERT INTO stock_items (id, kind, name, price_minor, quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			price_minor = EXCLUDED.price_minor,
			quantity = EXCLUDED.quantity,
			version = stock_items.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING id, kind, name, price_minor, quantity, version, created_at, updated_at
	`, item.ID, string(item.Kind), item.Name, item.PriceMinor, item.Quantity, now))
}

func scanStockItem(row rowScanner) (domain.StockItem, error) {
	var (
		item domain.StockItem
		kind string
	)
	err := row.Scan(
		&item.ID, &kind, &item.Name, &item.PriceMinor,
		&item.Quantity, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockItem{}, domain.ErrStockItemNotFound
	}
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("scan stock item: %w", err)
	}
	item.Kind = domain.ProductKind(kind)
	return item, nil
}

var _ domain.StockRepository = (*stockRepository)(nil)
