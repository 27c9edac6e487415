package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"omzetku/backend/internal/cache"
	"omzetku/backend/internal/domain"
	"omzetku/backend/internal/store"
	"omzetku/backend/internal/xid"
)

const dateLayout = "2006-01-02"

// maxDailyFanout caps concurrent per-day sub-aggregations when a rollup or a
// dashboard trend fans out over its date range.
const maxDailyFanout = 8

type Service struct {
	ledger   store.Ledger
	orders   cache.OrderCache
	cacheTTL time.Duration
}

func New(ledger store.Ledger, orders cache.OrderCache, cacheTTL time.Duration) *Service {
	if orders == nil {
		orders = cache.NoopOrderCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Service{
		ledger:   ledger,
		orders:   orders,
		cacheTTL: cacheTTL,
	}
}

func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (*domain.Order, error) {
	order, err := buildOrder(req, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	created, err := s.ledger.RecordOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	s.cacheOrder(ctx, created)
	s.logAudit(ctx, created.StoreID, "order_record", "order", created.OrderID, fmt.Sprintf("total=%s,channel=%s,items=%d", created.TotalAmount, created.Channel, len(created.Items)))

	return created, nil
}

// RecordSalesBatch attempts each sale independently. A failure on one entry
// never rolls back entries already recorded; callers inspect per-entry
// statuses when they need to know which sales landed.
func (s *Service) RecordSalesBatch(ctx context.Context, req domain.BatchRecordRequest) (domain.BatchRecordResponse, error) {
	resp := domain.BatchRecordResponse{
		Statuses: make([]domain.BatchRecordStatus, 0, len(req.Sales)),
	}

	for _, sale := range req.Sales {
		status := domain.BatchRecordStatus{
			StoreID: sale.StoreID,
			OrderID: sale.OrderID,
		}

		created, err := s.RecordSale(ctx, sale)
		if err != nil {
			status.Status = domain.BatchStatusRejected
			status.Reason = err.Error()
			resp.Rejected++
			resp.Statuses = append(resp.Statuses, status)
			continue
		}

		status.Status = domain.BatchStatusRecorded
		status.Order = created
		resp.Recorded++
		resp.Statuses = append(resp.Statuses, status)
	}

	return resp, nil
}

func (s *Service) RefundOrder(ctx context.Context, req domain.RefundOrderRequest) (*domain.Order, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.StoreID == "" || req.OrderID == "" || req.Amount.Sign() <= 0 {
		return nil, store.ErrInvalidOrder
	}

	refunded, err := s.ledger.MarkRefunded(ctx, req.StoreID, req.OrderID, req.Amount)
	if err != nil {
		return nil, err
	}

	if err := s.orders.Invalidate(ctx, orderCacheKey(req.StoreID, req.OrderID)); err != nil {
		log.Printf("[service] WARN: failed to invalidate order cache %s/%s: %v", req.StoreID, req.OrderID, err)
	}
	s.logAudit(ctx, req.StoreID, "order_refund", "order", req.OrderID, fmt.Sprintf("amount=%s", req.Amount))

	return refunded, nil
}

func (s *Service) GetOrder(ctx context.Context, storeID string, orderID string) (*domain.Order, error) {
	storeID = strings.TrimSpace(storeID)
	orderID = strings.TrimSpace(orderID)
	if storeID == "" || orderID == "" {
		return nil, store.ErrInvalidOrder
	}

	key := orderCacheKey(storeID, orderID)
	if cached, hit, err := s.orders.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: order cache read %s: %v", key, err)
	} else if hit {
		return cached, nil
	}

	order, err := s.ledger.FindOrder(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}

	s.cacheOrder(ctx, order)
	return order, nil
}

func (s *Service) GetOrders(ctx context.Context, startDate string, endDate string, filter domain.OrderFilter) ([]domain.Order, error) {
	start, end, err := parseDayRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	filter.Channel = strings.ToUpper(strings.TrimSpace(filter.Channel))
	filter.Status = strings.ToUpper(strings.TrimSpace(filter.Status))
	filter.StoreID = strings.TrimSpace(filter.StoreID)

	return s.ledger.FindByDateRange(ctx, start, end.Add(24*time.Hour), filter)
}

func (s *Service) GetDailySales(ctx context.Context, date string, storeID string) (domain.DailySales, error) {
	day, err := parseDay(date)
	if err != nil {
		return domain.DailySales{}, err
	}
	return s.dailySales(ctx, day, strings.TrimSpace(storeID))
}

// GetWeeklySales folds the seven days starting at weekStart. Any date is
// accepted as a period start; weekStart is not checked to be a Monday.
// The previous-week baseline is the total of the single calendar day exactly
// seven days before weekStart, not the full prior week.
func (s *Service) GetWeeklySales(ctx context.Context, weekStart string, storeID string) (domain.WeeklySales, error) {
	start, err := parseDay(weekStart)
	if err != nil {
		return domain.WeeklySales{}, err
	}
	storeID = strings.TrimSpace(storeID)

	days, baseline, err := s.dailyRange(ctx, start, 7, start.AddDate(0, 0, -7), storeID)
	if err != nil {
		return domain.WeeklySales{}, err
	}

	total, count, avg := foldDailyTotals(days)
	result := domain.WeeklySales{
		WeekStart:               start.Format(dateLayout),
		WeekEnd:                 start.AddDate(0, 0, 6).Format(dateLayout),
		StoreID:                 storeID,
		TotalSales:              total,
		TransactionCount:        count,
		AverageTransactionValue: avg,
		PreviousWeekSales:       baseline.TotalSales,
		GrowthRate:              growthRate(total, baseline.TotalSales),
		DailyBreakdown:          days,
	}
	return result, nil
}

// GetMonthlySales is the monthly rollup: one daily summary per calendar day
// of the month, with the first day of the previous month as the single-day
// growth baseline (January rolls back to December of the prior year).
func (s *Service) GetMonthlySales(ctx context.Context, year int, month int, storeID string) (domain.MonthlySales, error) {
	if year < 1 || month < 1 || month > 12 {
		return domain.MonthlySales{}, store.ErrInvalidOrder
	}
	storeID = strings.TrimSpace(storeID)

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	dayCount := first.AddDate(0, 1, 0).Sub(first).Hours() / 24

	days, baseline, err := s.dailyRange(ctx, first, int(dayCount), first.AddDate(0, -1, 0), storeID)
	if err != nil {
		return domain.MonthlySales{}, err
	}

	total, count, avg := foldDailyTotals(days)
	result := domain.MonthlySales{
		Year:                    year,
		Month:                   month,
		StoreID:                 storeID,
		TotalSales:              total,
		TransactionCount:        count,
		AverageTransactionValue: avg,
		PreviousMonthSales:      baseline.TotalSales,
		GrowthRate:              growthRate(total, baseline.TotalSales),
		DailyBreakdown:          days,
	}
	return result, nil
}

func (s *Service) GetSalesDashboard(ctx context.Context, startDate string, endDate string, storeID string) (domain.SalesDashboard, error) {
	start, end, err := parseDayRange(startDate, endDate)
	if err != nil {
		return domain.SalesDashboard{}, err
	}
	storeID = strings.TrimSpace(storeID)

	orders, err := s.ledger.FindByDateRange(ctx, start, end.Add(24*time.Hour), domain.OrderFilter{
		StoreID: storeID,
		Status:  domain.OrderStatusPaid,
	})
	if err != nil {
		return domain.SalesDashboard{}, err
	}

	total := decimal.Zero
	for _, order := range orders {
		total = total.Add(order.TotalAmount)
	}

	summary := groupByStore(orders)
	sort.SliceStable(summary, func(i, j int) bool {
		return summary[i].TotalSales.GreaterThan(summary[j].TotalSales)
	})

	topN := len(summary)
	if topN > 5 {
		topN = 5
	}
	topStores := make([]domain.StoreSales, topN)
	copy(topStores, summary[:topN])

	// Bottom performers: the tail of the descending ranking, reversed so the
	// worst store comes first. With fewer than ten stores the two lists
	// overlap.
	bottomStores := make([]domain.StoreSales, 0, topN)
	for i := len(summary) - 1; i >= len(summary)-topN; i-- {
		bottomStores = append(bottomStores, summary[i])
	}

	trendDays := int(end.Sub(start).Hours()/24) + 1
	trend := make([]domain.DailySales, trendDays)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDailyFanout)
	for i := 0; i < trendDays; i++ {
		i := i
		g.Go(func() error {
			daily, err := s.dailySales(gctx, start.AddDate(0, 0, i), storeID)
			if err != nil {
				return err
			}
			trend[i] = daily
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.SalesDashboard{}, err
	}

	return domain.SalesDashboard{
		Period:                  start.Format(dateLayout) + " ~ " + end.Format(dateLayout),
		StoreID:                 storeID,
		TotalSales:              total.Round(2),
		TotalTransactions:       len(orders),
		AverageTransactionValue: averageValue(total, len(orders)),
		StoreSummary:            summary,
		TopStores:               topStores,
		BottomStores:            bottomStores,
		ChannelDistribution:     groupByChannel(orders),
		Trend:                   trend,
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)

	return s.ledger.ListAuditLogs(ctx, strings.TrimSpace(storeID), from, to, limit)
}

// dailySales computes one day's summary from the ledger's PAID orders. An
// empty match set yields a well-formed zero-valued summary, never an error.
func (s *Service) dailySales(ctx context.Context, day time.Time, storeID string) (domain.DailySales, error) {
	orders, err := s.ledger.FindByDateRange(ctx, day, day.Add(24*time.Hour), domain.OrderFilter{
		StoreID: storeID,
		Status:  domain.OrderStatusPaid,
	})
	if err != nil {
		return domain.DailySales{}, err
	}

	total := decimal.Zero
	for _, order := range orders {
		total = total.Add(order.TotalAmount)
	}

	return domain.DailySales{
		Date:                    day.Format(dateLayout),
		StoreID:                 storeID,
		TotalSales:              total.Round(2),
		TransactionCount:        len(orders),
		AverageTransactionValue: averageValue(total, len(orders)),
		ChannelBreakdown:        groupByChannel(orders),
	}, nil
}

// dailyRange fans out dayCount daily summaries starting at start, plus the
// single baseline day, and returns the summaries in date order. Each day is
// computed independently; the fold over an index-addressed slice keeps the
// result deterministic.
func (s *Service) dailyRange(ctx context.Context, start time.Time, dayCount int, baselineDay time.Time, storeID string) ([]domain.DailySales, domain.DailySales, error) {
	days := make([]domain.DailySales, dayCount)
	var baseline domain.DailySales

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDailyFanout)
	for i := 0; i < dayCount; i++ {
		i := i
		g.Go(func() error {
			daily, err := s.dailySales(gctx, start.AddDate(0, 0, i), storeID)
			if err != nil {
				return err
			}
			days[i] = daily
			return nil
		})
	}
	g.Go(func() error {
		daily, err := s.dailySales(gctx, baselineDay, storeID)
		if err != nil {
			return err
		}
		baseline = daily
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, domain.DailySales{}, err
	}

	return days, baseline, nil
}

func (s *Service) cacheOrder(ctx context.Context, order *domain.Order) {
	if order == nil {
		return
	}
	key := orderCacheKey(order.StoreID, order.OrderID)
	if err := s.orders.Set(ctx, key, order, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: failed to cache order %s: %v", key, err)
	}
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if err := s.ledger.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		StoreID:    storeID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func buildOrder(req domain.RecordSaleRequest, now time.Time) (domain.Order, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.StoreID == "" || req.OrderID == "" || len(req.Items) == 0 {
		return domain.Order{}, store.ErrInvalidOrder
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "IDR"
	}
	channel := strings.ToUpper(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = domain.ChannelPOS
	}

	settledAt := now
	if strings.TrimSpace(req.SettledAt) != "" {
		parsed, err := time.Parse(time.RFC3339, req.SettledAt)
		if err != nil {
			return domain.Order{}, store.ErrInvalidOrder
		}
		settledAt = parsed.UTC()
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	total := decimal.Zero
	for _, input := range req.Items {
		sku := strings.ToUpper(strings.TrimSpace(input.SKU))
		if sku == "" || input.Qty < 1 || input.UnitPrice.Sign() < 0 {
			return domain.Order{}, store.ErrInvalidOrder
		}
		subtotal := input.UnitPrice.Mul(decimal.NewFromInt(int64(input.Qty)))
		items = append(items, domain.LineItem{
			SKU:       sku,
			Name:      strings.TrimSpace(input.Name),
			UnitPrice: input.UnitPrice,
			Qty:       input.Qty,
			Subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}

	return domain.Order{
		StoreID:     req.StoreID,
		OrderID:     req.OrderID,
		CreatedAt:   now,
		SettledAt:   settledAt,
		TotalAmount: total,
		Currency:    currency,
		Status:      domain.OrderStatusPaid,
		Channel:     channel,
		Items:       items,
	}, nil
}

// groupByChannel sums totals per channel. Output order is the first
// occurrence of each channel in the scanned orders, not sorted.
func groupByChannel(orders []domain.Order) []domain.ChannelSales {
	type channelAcc struct {
		total decimal.Decimal
		count int
	}
	byChannel := make(map[string]*channelAcc, 4)
	order := make([]string, 0, 4)

	for _, o := range orders {
		acc, exists := byChannel[o.Channel]
		if !exists {
			acc = &channelAcc{total: decimal.Zero}
			byChannel[o.Channel] = acc
			order = append(order, o.Channel)
		}
		acc.total = acc.total.Add(o.TotalAmount)
		acc.count++
	}

	breakdown := make([]domain.ChannelSales, 0, len(order))
	for _, channel := range order {
		acc := byChannel[channel]
		breakdown = append(breakdown, domain.ChannelSales{
			Channel:          channel,
			TotalSales:       acc.total.Round(2),
			TransactionCount: acc.count,
		})
	}
	return breakdown
}

func groupByStore(orders []domain.Order) []domain.StoreSales {
	type storeAcc struct {
		total decimal.Decimal
		count int
	}
	byStore := make(map[string]*storeAcc, 8)
	order := make([]string, 0, 8)

	for _, o := range orders {
		acc, exists := byStore[o.StoreID]
		if !exists {
			acc = &storeAcc{total: decimal.Zero}
			byStore[o.StoreID] = acc
			order = append(order, o.StoreID)
		}
		acc.total = acc.total.Add(o.TotalAmount)
		acc.count++
	}

	summary := make([]domain.StoreSales, 0, len(order))
	for _, storeID := range order {
		acc := byStore[storeID]
		summary = append(summary, domain.StoreSales{
			StoreID:                 storeID,
			TotalSales:              acc.total.Round(2),
			TransactionCount:        acc.count,
			AverageTransactionValue: averageValue(acc.total, acc.count),
		})
	}
	return summary
}

func foldDailyTotals(days []domain.DailySales) (decimal.Decimal, int, decimal.Decimal) {
	total := decimal.Zero
	count := 0
	for _, day := range days {
		total = total.Add(day.TotalSales)
		count += day.TransactionCount
	}
	return total.Round(2), count, averageValue(total, count)
}

func averageValue(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count))).Round(2)
}

// growthRate is the percentage change against the baseline, absent when the
// baseline is zero or negative.
func growthRate(total decimal.Decimal, previous decimal.Decimal) *decimal.Decimal {
	if previous.Sign() <= 0 {
		return nil
	}
	rate := total.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2)
	return &rate
}

func orderCacheKey(storeID string, orderID string) string {
	return "order:" + storeID + ":" + orderID
}

func parseDay(date string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", store.ErrInvalidOrder, date)
	}
	return parsed.UTC(), nil
}

func parseDayRange(startDate string, endDate string) (time.Time, time.Time, error) {
	start, err := parseDay(startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDay(endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s after end %s", store.ErrInvalidOrder, startDate, endDate)
	}
	return start, end, nil
}
