package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"omzetku/backend/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateOrder = errors.New("duplicate order")
	ErrInvalidOrder   = errors.New("invalid order")
)

// Ledger is the append-mostly record of sale transactions. It is the sole
// source of truth for every aggregate; summaries are recomputed from it on
// each read, never stored.
//
// FindByDateRange matches orders whose CreatedAt falls in [from, to) and
// returns them without line items; only FindOrder hydrates items. Callers
// must not rely on the ordering of range results.
type Ledger interface {
	FindOrder(ctx context.Context, storeID string, orderID string) (*domain.Order, error)
	FindByDateRange(ctx context.Context, from time.Time, to time.Time, filter domain.OrderFilter) ([]domain.Order, error)
	// RecordOrder appends a new order. It fails with ErrDuplicateOrder when
	// the (storeID, orderID) pair already exists; the order and its line
	// items are persisted atomically.
	RecordOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	// MarkRefunded transitions an order to REFUNDED: TotalAmount becomes the
	// negated absolute refund amount and the line items are cleared. Fails
	// with ErrNotFound when the order does not exist.
	MarkRefunded(ctx context.Context, storeID string, orderID string, refundAmount decimal.Decimal) (*domain.Order, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
