package transport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductRequest is the create/update payload. Field rules live in the
// product service so JSON and CSV imports share them.
type ProductRequest struct {
	Name          string           `json:"name"`
	Barcode       *string          `json:"barcode"`
	Category      string           `json:"category"`
	PurchasePrice decimal.Decimal  `json:"purchasePrice"`
	SellingPrice  decimal.Decimal  `json:"sellingPrice"`
	CurrentStock  *decimal.Decimal `json:"currentStock"`
	MinimumStock  decimal.Decimal  `json:"minimumStock"`
	Unit          string           `json:"unit"`
	Description   *string          `json:"description"`
	Supplier      *string          `json:"supplier"`
}

func (p ProductRequest) input() service.ProductInput {
	return service.ProductInput{
		Name:          p.Name,
		Barcode:       p.Barcode,
		Category:      p.Category,
		PurchasePrice: p.PurchasePrice,
		SellingPrice:  p.SellingPrice,
		CurrentStock:  p.CurrentStock,
		MinimumStock:  p.MinimumStock,
		Unit:          p.Unit,
		Description:   p.Description,
		Supplier:      p.Supplier,
	}
}

// ImportRequest is the JSON form of a bulk import
type ImportRequest struct {
	Products []ProductRequest `json:"products" validate:"required,min=1"`
}

// BarcodeLookup is the trimmed product view used by scanners
type BarcodeLookup struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"currentStock"`
	Barcode      *string         `json:"barcode"`
	Unit         string          `json:"unit"`
}

// ProductHandler handles HTTP requests for the product catalogue
type ProductHandler struct {
	products service.ProductService
	ledger   service.LedgerService
	logger   *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(products service.ProductService, ledger service.LedgerService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		ledger:   ledger,
		logger:   logger,
	}
}

// RegisterRoutes registers product routes on an authenticated router
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.With(middleware.RequireContentType(h.logger, "application/json", "text/csv")).Post("/import", h.Import)
		r.Get("/barcode/{barcode}", h.GetByBarcode)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/movements", h.Movements)
		r.Get("/{id}/ledger", h.Ledger)
	})
}

// List returns the caller's live products, optionally filtered by ?q=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	products, err := h.products.List(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// Create adds a product and records its opening stock
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req ProductRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	product, err := h.products.Create(r.Context(), userID, req.input())
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Product created",
		zap.String("user_id", userID.String()),
		zap.String("product_id", product.ID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	product, err := h.products.Get(r.Context(), userID, id)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) GetByBarcode(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	product, err := h.products.GetByBarcode(r.Context(), userID, chi.URLParam(r, "barcode"))
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, BarcodeLookup{
		ID:           product.ID.String(),
		Name:         product.Name,
		CurrentStock: product.CurrentStock,
		Barcode:      product.Barcode,
		Unit:         string(product.Unit),
	})
}

// Update edits a product. A changed currentStock is booked as a count movement.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ProductRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	product, err := h.products.Update(r.Context(), userID, id, req.input())
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.products.Delete(r.Context(), userID, id); err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Product deleted",
		zap.String("user_id", userID.String()),
		zap.String("product_id", id.String()),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Movements returns one product's ledger, newest first
func (h *ProductHandler) Movements(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	movements, err := h.ledger.ProductMovements(r.Context(), userID, id)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, movements)
}

// Ledger compares current stock with the sum of the product's movements
func (h *ProductHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	check, err := h.ledger.Check(r.Context(), userID, id)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}
	if !check.Consistent {
		h.logger.Warn("Ledger drift detected",
			zap.String("product_id", id.String()),
			zap.String("current_stock", check.CurrentStock.String()),
			zap.String("ledger_total", check.LedgerTotal.String()),
		)
	}
	middleware.RespondWithJSON(w, http.StatusOK, check)
}

// Import creates products in bulk from JSON or CSV. Rows succeed or fail
// independently.
func (h *ProductHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var rows []service.ProductInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		parsed, err := parseProductCSV(http.MaxBytesReader(w, r.Body, middleware.MaxBodyBytes))
		if err != nil {
			h.logger.Debug("CSV import rejected", zap.Error(err))
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows = parsed
	} else {
		var req ImportRequest
		if !decodeRequest(w, r, h.logger, &req) {
			return
		}
		for _, p := range req.Products {
			rows = append(rows, p.input())
		}
	}

	result := h.products.Import(r.Context(), userID, rows)
	h.logger.Info("Products imported",
		zap.String("user_id", userID.String()),
		zap.Int("imported", result.Imported),
		zap.Int("failed", len(result.Errors)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, result)
}

var csvColumns = []string{
	"name", "barcode", "category", "purchasePrice", "sellingPrice",
	"currentStock", "minimumStock", "unit", "description", "supplier",
}

// parseProductCSV reads a header row naming csvColumns (any order, case
// insensitive) followed by one product per line. Unparseable numbers fail the
// whole file so row numbers reported later stay aligned with the input.
func parseProductCSV(r io.Reader) ([]service.ProductInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		for _, known := range csvColumns {
			if strings.EqualFold(strings.TrimSpace(col), known) {
				index[known] = i
			}
		}
	}
	if _, ok := index["name"]; !ok {
		return nil, errors.New("csv header must include a name column")
	}

	var rows []service.ProductInput
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		optional := func(name string) *string {
			if v := field(name); v != "" {
				return &v
			}
			return nil
		}
		number := func(name string) (decimal.Decimal, error) {
			v := field(name)
			if v == "" {
				return decimal.Zero, nil
			}
			d, err := decimal.NewFromString(v)
			if err != nil {
				return decimal.Zero, fmt.Errorf("line %d: %s is not a number", line, name)
			}
			return d, nil
		}

		in := service.ProductInput{
			Name:        field("name"),
			Barcode:     optional("barcode"),
			Category:    field("category"),
			Unit:        field("unit"),
			Description: optional("description"),
			Supplier:    optional("supplier"),
		}
		if in.PurchasePrice, err = number("purchasePrice"); err != nil {
			return nil, err
		}
		if in.SellingPrice, err = number("sellingPrice"); err != nil {
			return nil, err
		}
		if in.MinimumStock, err = number("minimumStock"); err != nil {
			return nil, err
		}
		if field("currentStock") != "" {
			stock, err := number("currentStock")
			if err != nil {
				return nil, err
			}
			in.CurrentStock = &stock
		}
		rows = append(rows, in)
	}

	if len(rows) == 0 {
		return nil, errors.New("csv has no product rows")
	}
	return rows, nil
}
