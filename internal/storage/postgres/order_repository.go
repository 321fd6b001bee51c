package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// CreateReservingStock создаёт заказ и списывает сток одной транзакцией.
// Условный UPDATE с предикатом quantity >= qty берёт блокировку строки,
// поэтому конкурентные оформления последней единицы сериализуются базой:
// победитель спишет остаток, проигравший получит InsufficientStockError,
// и вся его транзакция откатится без осиротевшего заказа.
func (r *orderRepository) CreateReservingStock(order domain.Order) error {
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

	for _, item := range order.Items {
		if !item.Kind.Stocked() {
			continue
		}
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE stock_items
			SET quantity = quantity - $2, updated_at = NOW()
			WHERE id = $1 AND quantity >= $2
		`, item.ProductID, item.Qty)
		if err != nil {
			return fmt.Errorf("reserve stock for %s: %w", item.ProductID, err)
		}
		var affected int64
		if affected, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("reserve stock rows affected: %w", err)
		}
		if affected == 0 {
			err = r.insufficientOrMissing(ctx, tx, item)
			return err
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, total_minor, payment_method, locale, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.ID, nullableString(order.UserID), string(order.Status), order.TotalMinor,
		order.PaymentMethod, order.Locale, order.Version, order.CreatedAt, order.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, product_kind, qty, price_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID, order.ID, item.ProductID, string(item.Kind), item.Qty, item.PriceMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

// insufficientOrMissing различает «нет позиции» и «не хватает остатка».
func (r *orderRepository) insufficientOrMissing(ctx context.Context, tx *sql.Tx, item domain.OrderItem) error {
	var available int32
	err := tx.QueryRowContext(ctx, `SELECT quantity FROM stock_items WHERE id = $1`, item.ProductID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrStockItemNotFound
	}
	if err != nil {
		return fmt.Errorf("check stock for %s: %w", item.ProductID, err)
	}
	return &domain.InsufficientStockError{
		ItemID:    item.ProductID,
		Requested: item.Qty,
		Available: available,
	}
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := r.scanOrder(r.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, total_minor, payment_method, locale, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		return domain.Order{}, err
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByUser(userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, user_id, status, total_minor, payment_method, locale, version, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items, err := r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

// TransitionStatus применяет CAS-переход from→to. Предикат по текущему
// статусу делает повторную доставку события шлюза безопасным no-op.
func (r *orderRepository) TransitionStatus(orderID string, from, to domain.OrderStatus) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, orderID, string(from), string(to))
	if err != nil {
		return domain.Order{}, fmt.Errorf("transition order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if !exists {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.ErrStatusConflict
	}

	return r.Get(orderID)
}

// CancelRestocking переводит PENDING-заказ в CANCELLED и возвращает сток
// одной транзакцией. SELECT ... FOR UPDATE защищает от гонки с вебхуком,
// подтверждающим оплату того же заказа.
func (r *orderRepository) CancelRestocking(orderID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		err = domain.ErrOrderNotFound
		return domain.Order{}, err
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if domain.OrderStatus(status) != domain.OrderStatusPending {
		err = domain.ErrStatusConflict
		return domain.Order{}, err
	}

	items, err := r.loadItemsTx(ctx, tx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	for _, item := range items {
		if !item.Kind.Stocked() {
			continue
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE stock_items
			SET quantity = quantity + $2, updated_at = NOW()
			WHERE id = $1
		`, item.ProductID, item.Qty); err != nil {
			return domain.Order{}, fmt.Errorf("restock %s: %w", item.ProductID, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, orderID, string(domain.OrderStatusCancelled)); err != nil {
		return domain.Order{}, fmt.Errorf("cancel order: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit cancel order: %w", err)
	}

	return r.Get(orderID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *orderRepository) scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		userID sql.NullString
		status string
	)
	err := row.Scan(
		&order.ID, &userID, &status, &order.TotalMinor,
		&order.PaymentMethod, &order.Locale, &order.Version,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order row: %w", err)
	}
	order.UserID = userID.String
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_kind, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *orderRepository) loadItemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.OrderItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, product_id, product_kind, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			item domain.OrderItem
			kind string
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &kind, &item.Qty, &item.PriceMinor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Kind = domain.ProductKind(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
