package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"stockledger/internal/audit"
	"stockledger/internal/domain"
	"stockledger/internal/eventbus"
	"stockledger/internal/repository"
	"stockledger/internal/units"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var barcodePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ProductInput carries the editable fields of a product. CurrentStock is the
// opening stock on create and an optional stock count on update.
type ProductInput struct {
	Name          string
	Barcode       *string
	Category      string
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
	CurrentStock  *decimal.Decimal
	MinimumStock  decimal.Decimal
	Unit          string
	Description   *string
	Supplier      *string
}

// ImportRowError describes one rejected import row. Rows are 1-based.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult is the partial-success outcome of a bulk import.
type ImportResult struct {
	Imported int               `json:"imported"`
	Products []*domain.Product `json:"products"`
	Errors   []ImportRowError  `json:"errors"`
}

// ProductService manages the product catalogue. Stock changes are delegated to LedgerService.
type ProductService interface {
	Create(ctx context.Context, userID uuid.UUID, in ProductInput) (*domain.Product, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.Product, error)
	GetByBarcode(ctx context.Context, userID uuid.UUID, barcode string) (*domain.Product, error)
	List(ctx context.Context, userID uuid.UUID, search string) ([]*domain.Product, error)
	Update(ctx context.Context, userID, id uuid.UUID, in ProductInput) (*domain.Product, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Import(ctx context.Context, userID uuid.UUID, rows []ProductInput) *ImportResult
}

type productService struct {
	products  repository.ProductRepository
	ledger    LedgerService
	recorder  AuditRecorder
	publisher eventbus.Publisher
	logger    *zap.Logger
}

// NewProductService creates a new instance of ProductService
func NewProductService(
	products repository.ProductRepository,
	ledger LedgerService,
	recorder AuditRecorder,
	publisher eventbus.Publisher,
	logger *zap.Logger,
) ProductService {
	return &productService{
		products:  products,
		ledger:    ledger,
		recorder:  recorderOrNoop(recorder),
		publisher: publisher,
		logger:    logger,
	}
}

// validateProduct normalizes in and returns a product carrying its fields.
func validateProduct(in ProductInput) (*domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Invalid("name", "product name is required")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, domain.Invalid("category", "category is required")
	}
	if strings.TrimSpace(in.Unit) == "" {
		return nil, domain.Invalid("unit", "unit is required")
	}
	unit, ok := units.Normalize(in.Unit)
	if !ok {
		return nil, domain.Invalid("unit", "unknown unit, expected one of "+strings.Join(units.Codes(), ", "))
	}

	if in.PurchasePrice.IsNegative() {
		return nil, domain.Invalid("purchasePrice", "must not be negative")
	}
	if in.SellingPrice.IsNegative() {
		return nil, domain.Invalid("sellingPrice", "must not be negative")
	}
	if err := domain.CheckPlaces("purchasePrice", in.PurchasePrice, domain.MoneyPlaces); err != nil {
		return nil, err
	}
	if err := domain.CheckPlaces("sellingPrice", in.SellingPrice, domain.MoneyPlaces); err != nil {
		return nil, err
	}
	if in.SellingPrice.LessThanOrEqual(in.PurchasePrice) {
		return nil, domain.Invalid("sellingPrice", "must be greater than the purchase price")
	}
	if in.MinimumStock.IsNegative() {
		return nil, domain.Invalid("minimumStock", "must not be negative")
	}
	if err := domain.CheckPlaces("minimumStock", in.MinimumStock, domain.QuantityPlaces); err != nil {
		return nil, err
	}
	if !units.AllowsQuantity(unit, in.MinimumStock) {
		return nil, domain.Invalid("minimumStock", fmt.Sprintf("unit %s does not allow fractional quantities", units.Label(unit)))
	}
	if in.CurrentStock != nil {
		if in.CurrentStock.IsNegative() {
			return nil, domain.Invalid("currentStock", "must not be negative")
		}
		if err := domain.CheckPlaces("currentStock", *in.CurrentStock, domain.QuantityPlaces); err != nil {
			return nil, err
		}
		if !units.AllowsQuantity(unit, *in.CurrentStock) {
			return nil, domain.Invalid("currentStock", fmt.Sprintf("unit %s does not allow fractional quantities", units.Label(unit)))
		}
	}

	barcode := optionalText(in.Barcode)
	if barcode != nil && !barcodePattern.MatchString(*barcode) {
		return nil, domain.Invalid("barcode", "barcode may only contain letters and digits")
	}

	return &domain.Product{
		Name:          name,
		Barcode:       barcode,
		Category:      category,
		PurchasePrice: in.PurchasePrice,
		SellingPrice:  in.SellingPrice,
		MinimumStock:  in.MinimumStock,
		Unit:          unit,
		Description:   optionalText(in.Description),
		Supplier:      optionalText(in.Supplier),
	}, nil
}

func (s *productService) checkBarcode(ctx context.Context, userID uuid.UUID, barcode *string, excludeID *uuid.UUID) error {
	if barcode == nil {
		return nil
	}
	exists, err := s.products.BarcodeExists(ctx, userID, *barcode, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check barcode: %w", err)
	}
	if exists {
		return repository.ErrDuplicateBarcode
	}
	return nil
}

// Create validates and stores a product. Opening stock is written as an
// IN/COUNT movement in the same transaction.
func (s *productService) Create(ctx context.Context, userID uuid.UUID, in ProductInput) (*domain.Product, error) {
	product, err := validateProduct(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkBarcode(ctx, userID, product.Barcode, nil); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product.ID = uuid.New()
	product.UserID = userID
	product.CreatedAt = now
	product.UpdatedAt = now

	var opening *domain.StockMovement
	if in.CurrentStock != nil && in.CurrentStock.IsPositive() {
		description := "Opening stock"
		opening = &domain.StockMovement{
			ID:          uuid.New(),
			ProductID:   product.ID,
			Direction:   domain.DirectionIn,
			Reason:      domain.ReasonCount,
			Quantity:    *in.CurrentStock,
			Description: &description,
			StockBefore: decimal.Zero,
			StockAfter:  *in.CurrentStock,
			CreatedBy:   userID,
			CreatedAt:   now,
		}
		product.CurrentStock = *in.CurrentStock
	}

	if err := s.products.Create(ctx, product, opening); err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("unit", string(product.Unit)),
	)

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditCreate,
		EntityType: domain.EntityProduct,
		EntityID:   product.ID.String(),
		UserID:     userID,
		Details:    product,
	})
	s.publisher.Publish(eventbus.ProductCreated)

	return product, nil
}

func (s *productService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Product, error) {
	return s.products.FindByID(ctx, userID, id)
}

func (s *productService) GetByBarcode(ctx context.Context, userID uuid.UUID, barcode string) (*domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, domain.Invalid("barcode", "barcode is required")
	}
	return s.products.FindByBarcode(ctx, userID, barcode)
}

func (s *productService) List(ctx context.Context, userID uuid.UUID, search string) ([]*domain.Product, error) {
	products, err := s.products.List(ctx, userID, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Update changes descriptive fields and, when CurrentStock is supplied and
// differs, books the difference as a COUNT movement in the same transaction.
func (s *productService) Update(ctx context.Context, userID, id uuid.UUID, in ProductInput) (*domain.Product, error) {
	before, err := s.products.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	product, err := validateProduct(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkBarcode(ctx, userID, product.Barcode, &id); err != nil {
		return nil, err
	}

	product.ID = id
	if _, err := s.ledger.Revise(ctx, userID, product, in.CurrentStock, "Stock corrected on product update"); err != nil {
		return nil, err
	}

	s.logger.Info("Product updated", zap.String("product_id", id.String()))

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditUpdate,
		EntityType: domain.EntityProduct,
		EntityID:   id.String(),
		UserID:     userID,
		Details: map[string]any{
			"oldData": before,
			"newData": product,
		},
	})
	s.publisher.Publish(eventbus.ProductUpdated)

	return product, nil
}

// Delete soft-deletes the product. Its movements stay in the ledger.
func (s *productService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	product, err := s.products.FindByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.products.SoftDelete(ctx, userID, id); err != nil {
		return err
	}

	s.logger.Info("Product deleted", zap.String("product_id", id.String()))

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditDelete,
		EntityType: domain.EntityProduct,
		EntityID:   id.String(),
		UserID:     userID,
		Details:    product,
	})
	s.publisher.Publish(eventbus.ProductDeleted)

	return nil
}

// Import creates each row independently. Valid rows are committed even when
// others fail; failures are reported per row.
func (s *productService) Import(ctx context.Context, userID uuid.UUID, rows []ProductInput) *ImportResult {
	result := &ImportResult{
		Products: []*domain.Product{},
		Errors:   []ImportRowError{},
	}

	for i, row := range rows {
		product, err := s.Create(ctx, userID, row)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{Row: i + 1, Message: importMessage(err)})
			continue
		}
		result.Products = append(result.Products, product)
	}
	result.Imported = len(result.Products)

	s.logger.Info("Product import finished",
		zap.String("user_id", userID.String()),
		zap.Int("imported", result.Imported),
		zap.Int("rejected", len(result.Errors)),
	)

	return result
}

// importMessage hides infrastructure failures from the per-row report.
func importMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConflict):
		return err.Error()
	default:
		return "failed to import product"
	}
}
