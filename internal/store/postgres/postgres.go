package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"omzetku/backend/internal/domain"
	"omzetku/backend/internal/store"
	"omzetku/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FindOrder(ctx context.Context, storeID string, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT store_id, order_id, created_at, settled_at, total_amount, currency, status, channel
		FROM orders
		WHERE store_id = $1 AND order_id = $2
	`, storeID, orderID).Scan(&order.StoreID, &order.OrderID, &order.CreatedAt, &order.SettledAt, &order.TotalAmount, &order.Currency, &order.Status, &order.Channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.SettledAt = order.SettledAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, unit_price, qty, subtotal
		FROM order_line_items
		WHERE store_id = $1 AND order_id = $2
		ORDER BY line_no
	`, storeID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.SKU, &item.Name, &item.UnitPrice, &item.Qty, &item.Subtotal); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *Store) FindByDateRange(ctx context.Context, from time.Time, to time.Time, filter domain.OrderFilter) ([]domain.Order, error) {
	conditions := []string{"created_at >= $1", "created_at < $2"}
	args := []any{from, to}

	if filter.StoreID != "" {
		args = append(args, filter.StoreID)
		conditions = append(conditions, fmt.Sprintf("store_id = $%d", len(args)))
	}
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		conditions = append(conditions, fmt.Sprintf("channel = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT store_id, order_id, created_at, settled_at, total_amount, currency, status, channel
		FROM orders
		WHERE %s
		ORDER BY created_at, store_id, order_id
	`, strings.Join(conditions, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 128)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.StoreID, &order.OrderID, &order.CreatedAt, &order.SettledAt, &order.TotalAmount, &order.Currency, &order.Status, &order.Channel); err != nil {
			return nil, err
		}
		order.CreatedAt = order.CreatedAt.UTC()
		order.SettledAt = order.SettledAt.UTC()
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *Store) RecordOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.StoreID == "" || order.OrderID == "" {
		return nil, store.ErrInvalidOrder
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (store_id, order_id, created_at, settled_at, total_amount, currency, status, channel)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, order.StoreID, order.OrderID, order.CreatedAt, order.SettledAt, order.TotalAmount, order.Currency, order.Status, order.Channel)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateOrder
		}
		return nil, err
	}

	for lineNo, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_line_items (store_id, order_id, line_no, sku, name, unit_price, qty, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, order.StoreID, order.OrderID, lineNo+1, item.SKU, item.Name, item.UnitPrice, item.Qty, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) MarkRefunded(ctx context.Context, storeID string, orderID string, refundAmount decimal.Decimal) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var order domain.Order
	err = tx.QueryRowContext(ctx, `
		UPDATE orders
		SET total_amount = $3, status = $4
		WHERE store_id = $1 AND order_id = $2
		RETURNING store_id, order_id, created_at, settled_at, total_amount, currency, status, channel
	`, storeID, orderID, refundAmount.Abs().Neg(), domain.OrderStatusRefunded).Scan(
		&order.StoreID, &order.OrderID, &order.CreatedAt, &order.SettledAt, &order.TotalAmount, &order.Currency, &order.Status, &order.Channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM order_line_items
		WHERE store_id = $1 AND order_id = $2
	`, storeID, orderID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.CreatedAt = order.CreatedAt.UTC()
	order.SettledAt = order.SettledAt.UTC()
	return &order, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.StoreID, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	conditions := []string{"created_at >= $1", "created_at < $2"}
	args := []any{from, to}
	if storeID != "" {
		args = append(args, storeID)
		conditions = append(conditions, fmt.Sprintf("store_id = $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, store_id, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
