package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"omzetku/backend/internal/domain"
	"omzetku/backend/internal/service"
	"omzetku/backend/internal/store"
)

type API struct {
	service       *service.Service
	allowedOrigin string
}

func New(svc *service.Service, allowedOrigin string) *API {
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/orders", a.handleOrders)
	mux.HandleFunc("/api/v1/orders/batch", a.handleOrdersBatch)
	mux.HandleFunc("/api/v1/orders/", a.handleOrderActions)

	mux.HandleFunc("/api/v1/reports/daily", a.handleDailyReport)
	mux.HandleFunc("/api/v1/reports/weekly", a.handleWeeklyReport)
	mux.HandleFunc("/api/v1/reports/monthly", a.handleMonthlyReport)
	mux.HandleFunc("/api/v1/reports/dashboard", a.handleDashboard)

	mux.HandleFunc("/api/v1/audit-logs", a.handleAuditLogs)

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		orders, err := a.service.GetOrders(r.Context(), query.Get("start_date"), query.Get("end_date"), domain.OrderFilter{
			StoreID: query.Get("store_id"),
			Channel: query.Get("channel"),
			Status:  query.Get("status"),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
	case http.MethodPost:
		var req domain.RecordSaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := a.service.RecordSale(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"order": created})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrdersBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.BatchRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Sales) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("sales entries required"))
		return
	}

	resp, err := a.service.RecordSalesBatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The batch is best-effort; a 200 with per-entry statuses even when some
	// entries were rejected.
	writeJSON(w, http.StatusOK, resp)
}

// handleOrderActions serves /api/v1/orders/{storeID}/{orderID} and
// /api/v1/orders/{storeID}/{orderID}/refund.
func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/orders/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid order path"))
		return
	}

	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	parts := strings.Split(tail, "/")

	switch {
	case len(parts) == 2:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		order, err := a.service.GetOrder(r.Context(), parts[0], parts[1])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case len(parts) == 3 && parts[2] == "refund":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.RefundOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.StoreID = parts[0]
		req.OrderID = parts[1]

		refunded, err := a.service.RefundOrder(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": refunded})
	default:
		writeError(w, http.StatusBadRequest, errors.New("store id and order id required"))
	}
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	date := strings.TrimSpace(query.Get("date"))
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))

	report, err := a.service.GetDailySales(r.Context(), date, query.Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-sales-%s.csv\"", report.Date))
		_, _ = w.Write([]byte(dailySalesToCSV(report)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(dailySalesToPrintableHTML(report)))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	report, err := a.service.GetWeeklySales(r.Context(), query.Get("week_start"), query.Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	year, err := strconv.Atoi(strings.TrimSpace(query.Get("year")))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("year must be a number"))
		return
	}
	month, err := strconv.Atoi(strings.TrimSpace(query.Get("month")))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("month must be a number"))
		return
	}

	report, err := a.service.GetMonthlySales(r.Context(), year, month, query.Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	dashboard, err := a.service.GetSalesDashboard(r.Context(), query.Get("start_date"), query.Get("end_date"), query.Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("store_id"), query.Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func dailySalesToCSV(report domain.DailySales) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", report.Date),
		fmt.Sprintf("summary,store_id,%s", report.StoreID),
		fmt.Sprintf("summary,total_sales,%s", report.TotalSales),
		fmt.Sprintf("summary,transaction_count,%d", report.TransactionCount),
		fmt.Sprintf("summary,average_transaction_value,%s", report.AverageTransactionValue),
	}
	for _, channel := range report.ChannelBreakdown {
		lines = append(lines, fmt.Sprintf("channel,%s_total_sales,%s", channel.Channel, channel.TotalSales))
		lines = append(lines, fmt.Sprintf("channel,%s_transaction_count,%d", channel.Channel, channel.TransactionCount))
	}
	return strings.Join(lines, "\n") + "\n"
}

// dailySalesHTMLTmpl renders the printable daily report. User-controlled
// fields are auto-escaped by html/template.
var dailySalesHTMLTmpl = template.Must(template.New("daily-sales").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Daily Sales {{.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Daily Sales {{.Date}}</h2>
  <p>Store: {{.StoreID}}</p>
  <p>Total: {{.TotalSales}} | Transactions: {{.TransactionCount}} | Average: {{.AverageTransactionValue}}</p>

  <h3>By Channel</h3>
  <table>
    <thead><tr><th>Channel</th><th>Total Sales</th><th>Transactions</th></tr></thead>
    <tbody>{{range .ChannelBreakdown}}<tr><td>{{.Channel}}</td><td style="text-align:right;">{{.TotalSales}}</td><td style="text-align:right;">{{.TransactionCount}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func dailySalesToPrintableHTML(report domain.DailySales) string {
	var buf bytes.Buffer
	if err := dailySalesHTMLTmpl.Execute(&buf, report); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses return a generic message so internal details (SQL errors,
	// file paths) never reach clients; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
