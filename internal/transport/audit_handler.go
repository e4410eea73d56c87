package transport

import (
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AuditHandler lists the caller's audit trail
type AuditHandler struct {
	audit  service.AuditService
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit service.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// RegisterRoutes registers audit routes on an authenticated router
func (h *AuditHandler) RegisterRoutes(r chi.Router) {
	r.Get("/audit-logs", h.List)
}

// List accepts entityType, action, startDate, endDate, page and limit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	q := service.AuditQuery{
		EntityType: r.URL.Query().Get("entityType"),
		Action:     r.URL.Query().Get("action"),
	}
	var err error
	if q.StartDate, err = queryTime(r, "startDate"); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "startDate must be YYYY-MM-DD")
		return
	}
	if q.EndDate, err = queryTime(r, "endDate"); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "endDate must be YYYY-MM-DD")
		return
	}
	if q.Page, err = queryInt(r, "page", 1); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	if q.Limit, err = queryInt(r, "limit", service.DefaultAuditPageSize); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	page, err := h.audit.List(r.Context(), userID, q)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, page)
}
