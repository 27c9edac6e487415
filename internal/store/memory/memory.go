package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"omzetku/backend/internal/domain"
	"omzetku/backend/internal/store"
	"omzetku/backend/internal/xid"
)

// Store is an in-memory ledger used for dev mode and tests. Orders keep their
// record order so date-range scans are deterministic, which also fixes the
// first-occurrence ordering of channel breakdowns built from them.
type Store struct {
	mu        sync.RWMutex
	orders    []*domain.Order
	byKey     map[string]*domain.Order
	auditLogs []domain.AuditLog
}

func New() *Store {
	return &Store{
		orders:    make([]*domain.Order, 0, 256),
		byKey:     make(map[string]*domain.Order),
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded returns a ledger pre-filled with two weeks of demo sales across
// three stores so reports and dashboards render without a database.
func NewSeeded() *Store {
	s := New()

	stores := []string{"STORE-001", "STORE-002", "STORE-003"}
	channels := []string{domain.ChannelPOS, domain.ChannelOnline, domain.ChannelMobile}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	seq := 0
	for dayBack := 0; dayBack < 14; dayBack++ {
		day := today.AddDate(0, 0, -dayBack)
		for si, storeID := range stores {
			// Store volume and ticket size vary so rankings are not flat.
			for n := 0; n < 2+si; n++ {
				seq++
				unitPrice := decimal.NewFromInt(int64(12500 + 2500*si + 500*n))
				qty := 1 + (seq % 3)
				subtotal := unitPrice.Mul(decimal.NewFromInt(int64(qty)))
				order := &domain.Order{
					StoreID:     storeID,
					OrderID:     fmt.Sprintf("SEED-%04d", seq),
					CreatedAt:   day.Add(time.Duration(9+n) * time.Hour),
					SettledAt:   day.Add(time.Duration(9+n) * time.Hour),
					TotalAmount: subtotal,
					Currency:    "IDR",
					Status:      domain.OrderStatusPaid,
					Channel:     channels[(si+n)%len(channels)],
					Items: []domain.LineItem{{
						SKU:       fmt.Sprintf("SKU-SEED-%02d", (seq%9)+1),
						Name:      "Demo Item",
						UnitPrice: unitPrice,
						Qty:       qty,
						Subtotal:  subtotal,
					}},
				}
				s.orders = append(s.orders, order)
				s.byKey[orderKey(order.StoreID, order.OrderID)] = order
			}
		}
	}

	return s
}

func (s *Store) FindOrder(_ context.Context, storeID string, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.byKey[orderKey(storeID, orderID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	cloned := cloneOrder(order, true)
	return &cloned, nil
}

func (s *Store) FindByDateRange(_ context.Context, from time.Time, to time.Time, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 64)
	for _, order := range s.orders {
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		if filter.StoreID != "" && order.StoreID != filter.StoreID {
			continue
		}
		if filter.Channel != "" && order.Channel != filter.Channel {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, cloneOrder(order, false))
	}
	return result, nil
}

func (s *Store) RecordOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.StoreID == "" || order.OrderID == "" {
		return nil, store.ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := orderKey(order.StoreID, order.OrderID)
	if _, exists := s.byKey[key]; exists {
		return nil, store.ErrDuplicateOrder
	}

	stored := cloneOrder(&order, true)
	s.orders = append(s.orders, &stored)
	s.byKey[key] = &stored

	created := cloneOrder(&stored, true)
	return &created, nil
}

func (s *Store) MarkRefunded(_ context.Context, storeID string, orderID string, refundAmount decimal.Decimal) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.byKey[orderKey(storeID, orderID)]
	if !exists {
		return nil, store.ErrNotFound
	}

	order.TotalAmount = refundAmount.Abs().Neg()
	order.Status = domain.OrderStatusRefunded
	order.Items = nil

	refunded := cloneOrder(order, true)
	return &refunded, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func orderKey(storeID string, orderID string) string {
	return storeID + "/" + orderID
}

func cloneOrder(order *domain.Order, withItems bool) domain.Order {
	cloned := *order
	cloned.Items = nil
	if withItems && len(order.Items) > 0 {
		cloned.Items = make([]domain.LineItem, len(order.Items))
		copy(cloned.Items, order.Items)
	}
	return cloned
}

func cmpString(a string, b string) int {
	return strings.Compare(a, b)
}
