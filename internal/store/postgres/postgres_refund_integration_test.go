package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"omzetku/backend/internal/domain"
	"omzetku/backend/internal/store"
)

func TestRecordRefundRoundtrip(t *testing.T) {
	databaseURL := os.Getenv("OMZETKU_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set OMZETKU_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("STORE-IT-%d", stamp)
	orderID := fmt.Sprintf("ORD-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_line_items WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE store_id = $1`, storeID)
	})

	createdAt := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	order := domain.Order{
		StoreID:     storeID,
		OrderID:     orderID,
		CreatedAt:   createdAt,
		SettledAt:   createdAt,
		TotalAmount: decimal.NewFromInt(45000),
		Currency:    "IDR",
		Status:      domain.OrderStatusPaid,
		Channel:     domain.ChannelPOS,
		Items: []domain.LineItem{
			{SKU: "SKU-IT-1", Name: "Kopi Susu", UnitPrice: decimal.NewFromInt(15000), Qty: 3, Subtotal: decimal.NewFromInt(45000)},
		},
	}

	if _, err := s.RecordOrder(ctx, order); err != nil {
		t.Fatalf("record order: %v", err)
	}

	if _, err := s.RecordOrder(ctx, order); !errors.Is(err, store.ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder on second insert, got %v", err)
	}

	found, err := s.FindOrder(ctx, storeID, orderID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if !found.TotalAmount.Equal(decimal.NewFromInt(45000)) {
		t.Fatalf("expected total 45000, got %s", found.TotalAmount)
	}
	if len(found.Items) != 1 || found.Items[0].SKU != "SKU-IT-1" {
		t.Fatalf("expected one line item SKU-IT-1, got %+v", found.Items)
	}

	ranged, err := s.FindByDateRange(ctx, createdAt.Truncate(24*time.Hour), createdAt.Truncate(24*time.Hour).Add(24*time.Hour), domain.OrderFilter{StoreID: storeID})
	if err != nil {
		t.Fatalf("find by date range: %v", err)
	}
	if len(ranged) != 1 {
		t.Fatalf("expected one order in range, got %d", len(ranged))
	}
	if len(ranged[0].Items) != 0 {
		t.Fatalf("range scan must not hydrate line items, got %d", len(ranged[0].Items))
	}

	refunded, err := s.MarkRefunded(ctx, storeID, orderID, decimal.NewFromInt(45000))
	if err != nil {
		t.Fatalf("mark refunded: %v", err)
	}
	if refunded.Status != domain.OrderStatusRefunded {
		t.Fatalf("expected status %s, got %s", domain.OrderStatusRefunded, refunded.Status)
	}
	if !refunded.TotalAmount.Equal(decimal.NewFromInt(-45000)) {
		t.Fatalf("expected total -45000 after refund, got %s", refunded.TotalAmount)
	}

	found, err = s.FindOrder(ctx, storeID, orderID)
	if err != nil {
		t.Fatalf("find refunded order: %v", err)
	}
	if len(found.Items) != 0 {
		t.Fatalf("expected line items removed after refund, got %d", len(found.Items))
	}

	if err := s.CreateAuditLog(ctx, domain.AuditLog{
		StoreID:    storeID,
		Action:     "order.refunded",
		EntityType: "order",
		EntityID:   orderID,
		Detail:     "integration test refund",
	}); err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	logs, err := s.ListAuditLogs(ctx, storeID, createdAt.AddDate(0, 0, -1), time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "order.refunded" {
		t.Fatalf("expected one order.refunded audit entry, got %+v", logs)
	}
}
