package transport

import (
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/repository"
	"stockledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxMovementPage caps ?limit= on movement listings
const MaxMovementPage = 500

// MovementRequest is a manual stock movement
type MovementRequest struct {
	ProductID   uuid.UUID       `json:"productId" validate:"required"`
	Type        string          `json:"type" validate:"required"`
	Reason      string          `json:"reason" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	Description *string         `json:"description"`
}

// SaleRequest records a sale. totalPrice defaults to quantity * unitPrice.
type SaleRequest struct {
	ProductID   uuid.UUID        `json:"productId" validate:"required"`
	Quantity    decimal.Decimal  `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal  `json:"unitPrice" validate:"gte=0"`
	TotalPrice  *decimal.Decimal `json:"totalPrice"`
	Description *string          `json:"description"`
}

// MovementHandler exposes the stock ledger writer and its reads
type MovementHandler struct {
	ledger service.LedgerService
	logger *zap.Logger
}

// NewMovementHandler creates a new MovementHandler
func NewMovementHandler(ledger service.LedgerService, logger *zap.Logger) *MovementHandler {
	return &MovementHandler{ledger: ledger, logger: logger}
}

// RegisterRoutes registers ledger routes on an authenticated router
func (h *MovementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stock-movements", h.ListMovements)
	r.Post("/stock-movements", h.CreateMovement)
	r.Get("/sales", h.ListSales)
	r.Post("/sales", h.CreateSale)
}

// CreateMovement applies one IN or OUT movement
func (h *MovementHandler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req MovementRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	movement, err := h.ledger.RecordMovement(r.Context(), userID, service.MovementInput{
		ProductID:   req.ProductID,
		Direction:   req.Type,
		Reason:      req.Reason,
		Quantity:    req.Quantity,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Debug("Movement rejected",
			zap.String("product_id", req.ProductID.String()),
			zap.Error(err),
		)
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, movement)
}

// CreateSale records an outbound sale
func (h *MovementHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req SaleRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	movement, err := h.ledger.RecordSale(r.Context(), userID, service.SaleInput{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		TotalPrice:  req.TotalPrice,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Debug("Sale rejected",
			zap.String("product_id", req.ProductID.String()),
			zap.Error(err),
		)
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, movement)
}

// ListMovements returns the caller's movements newest first. Accepts since,
// until, limit and offset.
func (h *MovementHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	filter, err := movementFilter(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid query: since/until must be dates, limit/offset non-negative integers")
		return
	}

	movements, err := h.ledger.ListMovements(r.Context(), userID, filter)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, movements)
}

func (h *MovementHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	sales, err := h.ledger.ListSales(r.Context(), userID)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, sales)
}

func movementFilter(r *http.Request) (repository.MovementFilter, error) {
	var (
		filter repository.MovementFilter
		err    error
	)
	if filter.Since, err = queryTime(r, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	if filter.Limit > MaxMovementPage {
		filter.Limit = MaxMovementPage
	}
	return filter, nil
}
