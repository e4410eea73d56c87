package transport

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ReportHandler serves the dashboard and report views
type ReportHandler struct {
	reports service.ReportService
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reports service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger, now: time.Now}
}

// RegisterRoutes registers dashboard and report routes on an authenticated router
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/critical-stocks", h.CriticalStocks)
		r.Get("/sales-chart", h.SalesChart)
	})
	r.Route("/reports", func(r chi.Router) {
		r.Get("/daily", h.Daily)
		r.Get("/daily/download", h.DownloadDaily)
		r.Get("/stock", h.Stock)
		r.Get("/sales", h.Sales)
		r.Get("/popular", h.Popular)
	})
}

// respond writes v or the service error.
func (h *ReportHandler) respond(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, v)
}

func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	stats, err := h.reports.Stats(r.Context(), userID)
	h.respond(w, stats, err)
}

func (h *ReportHandler) CriticalStocks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	products, err := h.reports.CriticalStocks(r.Context(), userID)
	h.respond(w, products, err)
}

func (h *ReportHandler) SalesChart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	chart, err := h.reports.SalesChart(r.Context(), userID)
	h.respond(w, chart, err)
}

// reportDay reads ?date=YYYY-MM-DD, defaulting to today (UTC).
func (h *ReportHandler) reportDay(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		y, m, d := h.now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

// Daily returns one page of the day's movements with a full-day summary
func (h *ReportHandler) Daily(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	day, ok := h.reportDay(w, r)
	if !ok {
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}

	report, err := h.reports.Daily(r.Context(), userID, day, page)
	h.respond(w, report, err)
}

// DownloadDaily streams the whole day as CSV
func (h *ReportHandler) DownloadDaily(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	day, ok := h.reportDay(w, r)
	if !ok {
		return
	}

	movements, summary, err := h.reports.DailyMovements(r.Context(), userID, day)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	// Render first so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := service.WriteDailyCSV(&buf, movements, summary); err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="daily-report-%s.csv"`, day.Format(dateLayout)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debug("CSV download interrupted", zap.Error(err))
	}
}

func (h *ReportHandler) Stock(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	rows, err := h.reports.StockReport(r.Context(), userID)
	h.respond(w, rows, err)
}

func (h *ReportHandler) Sales(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	rows, err := h.reports.SalesReport(r.Context(), userID)
	h.respond(w, rows, err)
}

func (h *ReportHandler) Popular(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	rows, err := h.reports.Popular(r.Context(), userID)
	h.respond(w, rows, err)
}
