package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. A fresh sale is recorded as PAID; a refund replaces the
// order's total with the negated refund amount and clears its line items.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusRefunded  = "REFUNDED"
	OrderStatusCancelled = "CANCELLED"
)

// Common sales channels. Channel is a free-form tag; these are the values the
// terminals send today, not a closed set.
const (
	ChannelPOS    = "POS"
	ChannelOnline = "ONLINE"
	ChannelMobile = "MOBILE"
)

type LineItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int             `json:"qty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Order is one ledger entry: a completed (or later refunded) sale for a
// store. Identity is the (StoreID, OrderID) pair. Line items are owned
// exclusively by the order and are replaced wholesale on refund.
type Order struct {
	StoreID     string          `json:"store_id"`
	OrderID     string          `json:"order_id"`
	CreatedAt   time.Time       `json:"created_at"`
	SettledAt   time.Time       `json:"settled_at"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Channel     string          `json:"channel"`
	Items       []LineItem      `json:"items,omitempty"`
}

// OrderFilter narrows a ledger date-range scan. Empty fields match everything.
type OrderFilter struct {
	StoreID string
	Channel string
	Status  string
}

type LineItemInput struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int             `json:"qty"`
}

type RecordSaleRequest struct {
	StoreID   string          `json:"store_id"`
	OrderID   string          `json:"order_id"`
	Currency  string          `json:"currency"`
	Channel   string          `json:"channel"`
	SettledAt string          `json:"settled_at,omitempty"`
	Items     []LineItemInput `json:"items"`
}

// BatchRecordRequest carries independent sale entries. Entries are attempted
// one at a time; a failure on one never rolls back the ones already recorded.
type BatchRecordRequest struct {
	Sales []RecordSaleRequest `json:"sales"`
}

type BatchRecordStatus struct {
	StoreID string `json:"store_id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Order   *Order `json:"order,omitempty"`
}

type BatchRecordResponse struct {
	Recorded int                 `json:"recorded"`
	Rejected int                 `json:"rejected"`
	Statuses []BatchRecordStatus `json:"statuses"`
}

const (
	BatchStatusRecorded = "recorded"
	BatchStatusRejected = "rejected"
)

type RefundOrderRequest struct {
	StoreID string          `json:"store_id"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type ChannelSales struct {
	Channel          string          `json:"channel"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	TransactionCount int             `json:"transaction_count"`
}

// DailySales is a derived summary, never stored: it is recomputed from the
// ledger's PAID orders on every request.
type DailySales struct {
	Date                    string          `json:"date"`
	StoreID                 string          `json:"store_id,omitempty"`
	TotalSales              decimal.Decimal `json:"total_sales"`
	TransactionCount        int             `json:"transaction_count"`
	AverageTransactionValue decimal.Decimal `json:"average_transaction_value"`
	ChannelBreakdown        []ChannelSales  `json:"channel_breakdown"`
}

// WeeklySales folds seven daily summaries starting at WeekStart.
// PreviousWeekSales is the total of the single calendar day exactly one week
// before WeekStart, and GrowthRate is absent when that baseline is zero.
type WeeklySales struct {
	WeekStart               string           `json:"week_start"`
	WeekEnd                 string           `json:"week_end"`
	StoreID                 string           `json:"store_id,omitempty"`
	TotalSales              decimal.Decimal  `json:"total_sales"`
	TransactionCount        int              `json:"transaction_count"`
	AverageTransactionValue decimal.Decimal  `json:"average_transaction_value"`
	PreviousWeekSales       decimal.Decimal  `json:"previous_week_sales"`
	GrowthRate              *decimal.Decimal `json:"growth_rate,omitempty"`
	DailyBreakdown          []DailySales     `json:"daily_breakdown"`
}

type MonthlySales struct {
	Year                    int              `json:"year"`
	Month                   int              `json:"month"`
	StoreID                 string           `json:"store_id,omitempty"`
	TotalSales              decimal.Decimal  `json:"total_sales"`
	TransactionCount        int              `json:"transaction_count"`
	AverageTransactionValue decimal.Decimal  `json:"average_transaction_value"`
	PreviousMonthSales      decimal.Decimal  `json:"previous_month_sales"`
	GrowthRate              *decimal.Decimal `json:"growth_rate,omitempty"`
	DailyBreakdown          []DailySales     `json:"daily_breakdown"`
}

type StoreSales struct {
	StoreID                 string          `json:"store_id"`
	TotalSales              decimal.Decimal `json:"total_sales"`
	TransactionCount        int             `json:"transaction_count"`
	AverageTransactionValue decimal.Decimal `json:"average_transaction_value"`
}

// SalesDashboard is the ad-hoc date-range aggregate. TopStores holds the five
// best stores by total sales, BottomStores the five worst in ascending order;
// with fewer than ten distinct stores the two lists overlap.
type SalesDashboard struct {
	Period                  string          `json:"period"`
	StoreID                 string          `json:"store_id,omitempty"`
	TotalSales              decimal.Decimal `json:"total_sales"`
	TotalTransactions       int             `json:"total_transactions"`
	AverageTransactionValue decimal.Decimal `json:"average_transaction_value"`
	StoreSummary            []StoreSales    `json:"store_summary"`
	TopStores               []StoreSales    `json:"top_stores"`
	BottomStores            []StoreSales    `json:"bottom_stores"`
	ChannelDistribution     []ChannelSales  `json:"channel_distribution"`
	Trend                   []DailySales    `json:"trend"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
