package transport

import (
	"net/http"

	"stockledger/internal/domain"
	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertRequest is a manually raised alert
type AlertRequest struct {
	Message   string     `json:"message" validate:"required,max=500"`
	ProductID *uuid.UUID `json:"productId"`
}

// CheckStockResponse reports the alerts produced by a low-stock scan
type CheckStockResponse struct {
	Message string          `json:"message"`
	Alerts  []*domain.Alert `json:"alerts"`
}

// AlertHandler handles HTTP requests for alerts
type AlertHandler struct {
	alerts service.AlertService
	logger *zap.Logger
}

// NewAlertHandler creates a new AlertHandler
func NewAlertHandler(alerts service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

// RegisterRoutes registers alert routes on an authenticated router
func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/check-stock", h.CheckStock)
		r.Put("/{id}/read", h.MarkRead)
	})
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	alerts, err := h.alerts.List(r.Context(), userID)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, alerts)
}

func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req AlertRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	alert, err := h.alerts.Create(r.Context(), userID, req.Message, req.ProductID)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, alert)
}

// CheckStock runs the low-stock evaluator for the caller
func (h *AlertHandler) CheckStock(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	alerts, err := h.alerts.EvaluateLowStock(r.Context(), userID)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	message := "all products are above their minimum stock"
	if len(alerts) > 0 {
		message = "low stock alerts created"
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, CheckStockResponse{Message: message, Alerts: alerts})
}

func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	alert, err := h.alerts.MarkRead(r.Context(), userID, id)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, alert)
}
