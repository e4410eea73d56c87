package service

import (
	"context"
	"fmt"
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

// MovementInput is a manual stock movement request
type MovementInput struct {
	ProductID   uuid.UUID
	Direction   string
	Reason      string
	Quantity    decimal.Decimal
	Description *string
}

// SaleInput records an outbound sale. TotalPrice defaults to
// Quantity * UnitPrice when absent.
type SaleInput struct {
	ProductID   uuid.UUID
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TotalPrice  *decimal.Decimal
	Description *string
}

// LedgerCheck compares a product's stock with the fold of its ledger
type LedgerCheck struct {
	ProductID    uuid.UUID       `json:"productId"`
	CurrentStock decimal.Decimal `json:"currentStock"`
	LedgerTotal  decimal.Decimal `json:"ledgerTotal"`
	Movements    int             `json:"movements"`
	Consistent   bool            `json:"consistent"`
}

// LedgerService is the single write path for stock quantities
type LedgerService interface {
	RecordMovement(ctx context.Context, userID uuid.UUID, in MovementInput) (*domain.StockMovement, error)
	RecordSale(ctx context.Context, userID uuid.UUID, in SaleInput) (*domain.StockMovement, error)
	Revise(ctx context.Context, userID uuid.UUID, product *domain.Product, target *decimal.Decimal, description string) (*domain.StockMovement, error)
	ListMovements(ctx context.Context, userID uuid.UUID, filter repository.MovementFilter) ([]*domain.MovementView, error)
	ListSales(ctx context.Context, userID uuid.UUID) ([]*domain.MovementView, error)
	ProductMovements(ctx context.Context, userID, productID uuid.UUID) ([]*domain.StockMovement, error)
	Check(ctx context.Context, userID, productID uuid.UUID) (*LedgerCheck, error)
}

type ledgerService struct {
	movements repository.MovementRepository
	products  repository.ProductRepository
	recorder  AuditRecorder
	publisher eventbus.Publisher
	logger    *zap.Logger
}

// NewLedgerService creates a new instance of LedgerService
func NewLedgerService(
	movements repository.MovementRepository,
	products repository.ProductRepository,
	recorder AuditRecorder,
	publisher eventbus.Publisher,
	logger *zap.Logger,
) LedgerService {
	return &ledgerService{
		movements: movements,
		products:  products,
		recorder:  recorderOrNoop(recorder),
		publisher: publisher,
		logger:    logger,
	}
}

// checkQuantity validates quantity against the product inside the ledger transaction
func checkQuantity(product *domain.Product, direction domain.Direction, quantity decimal.Decimal) error {
	if !units.AllowsQuantity(product.Unit, quantity) {
		return domain.Invalid("quantity", fmt.Sprintf("unit %s does not allow fractional quantities", units.Label(product.Unit)))
	}
	if direction == domain.DirectionOut && quantity.GreaterThan(product.CurrentStock) {
		return fmt.Errorf("%w: requested %s, available %s", domain.ErrInsufficientStock, quantity, product.CurrentStock)
	}
	return nil
}

func optionalText(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// RecordMovement applies a manual IN or OUT movement
func (s *ledgerService) RecordMovement(ctx context.Context, userID uuid.UUID, in MovementInput) (*domain.StockMovement, error) {
	direction, ok := domain.ParseDirection(in.Direction)
	if !ok {
		return nil, domain.Invalid("type", "must be IN or OUT")
	}
	reason := domain.Reason(strings.ToUpper(strings.TrimSpace(in.Reason)))
	if !direction.Allows(reason) {
		return nil, domain.Invalid("reason", fmt.Sprintf("%q is not a valid reason for %s movements", in.Reason, direction))
	}
	if !in.Quantity.IsPositive() {
		return nil, domain.Invalid("quantity", "must be greater than zero")
	}
	if err := domain.CheckPlaces("quantity", in.Quantity, domain.QuantityPlaces); err != nil {
		return nil, err
	}

	movement, product, err := s.movements.Apply(ctx, userID, in.ProductID, func(product *domain.Product) (*domain.StockMovement, error) {
		if err := checkQuantity(product, direction, in.Quantity); err != nil {
			return nil, err
		}
		return &domain.StockMovement{
			ID:          uuid.New(),
			Direction:   direction,
			Reason:      reason,
			Quantity:    in.Quantity,
			Description: optionalText(in.Description),
			CreatedBy:   userID,
			CreatedAt:   time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock movement recorded",
		zap.String("product_id", product.ID.String()),
		zap.String("direction", string(direction)),
		zap.String("quantity", movement.Quantity.String()),
		zap.String("stock_after", movement.StockAfter.String()),
	)

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditCreate,
		EntityType: domain.EntityStockMovement,
		EntityID:   movement.ID.String(),
		UserID:     userID,
		Details: map[string]any{
			"movementType": movement.Direction,
			"reason":       movement.Reason,
			"quantity":     movement.Quantity,
			"description":  movement.Description,
			"productId":    product.ID,
			"oldStock":     movement.StockBefore,
			"newStock":     movement.StockAfter,
		},
	})
	s.publisher.Publish(eventbus.StockMovementCreated)

	return movement, nil
}

// RecordSale applies an OUT/SALE movement carrying its prices
func (s *ledgerService) RecordSale(ctx context.Context, userID uuid.UUID, in SaleInput) (*domain.StockMovement, error) {
	if !in.Quantity.IsPositive() {
		return nil, domain.Invalid("quantity", "must be greater than zero")
	}
	if err := domain.CheckPlaces("quantity", in.Quantity, domain.QuantityPlaces); err != nil {
		return nil, err
	}
	if !in.UnitPrice.IsPositive() {
		return nil, domain.Invalid("unitPrice", "must be greater than zero")
	}
	if err := domain.CheckPlaces("unitPrice", in.UnitPrice, domain.MoneyPlaces); err != nil {
		return nil, err
	}
	total := in.Quantity.Mul(in.UnitPrice).Round(domain.MoneyPlaces)
	if in.TotalPrice != nil {
		if !in.TotalPrice.IsPositive() {
			return nil, domain.Invalid("totalPrice", "must be greater than zero")
		}
		if err := domain.CheckPlaces("totalPrice", *in.TotalPrice, domain.MoneyPlaces); err != nil {
			return nil, err
		}
		total = *in.TotalPrice
	}

	movement, product, err := s.movements.Apply(ctx, userID, in.ProductID, func(product *domain.Product) (*domain.StockMovement, error) {
		if err := checkQuantity(product, domain.DirectionOut, in.Quantity); err != nil {
			return nil, err
		}
		return &domain.StockMovement{
			ID:          uuid.New(),
			Direction:   domain.DirectionOut,
			Reason:      domain.ReasonSale,
			Quantity:    in.Quantity,
			UnitPrice:   decimal.NewNullDecimal(in.UnitPrice),
			TotalPrice:  decimal.NewNullDecimal(total),
			Description: optionalText(in.Description),
			CreatedBy:   userID,
			CreatedAt:   time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Sale recorded",
		zap.String("product_id", product.ID.String()),
		zap.String("quantity", movement.Quantity.String()),
		zap.String("total", total.String()),
	)

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditCreate,
		EntityType: domain.EntitySale,
		EntityID:   movement.ID.String(),
		UserID:     userID,
		Details: map[string]any{
			"quantity":    movement.Quantity,
			"unitPrice":   in.UnitPrice,
			"totalPrice":  total,
			"description": movement.Description,
			"productId":   product.ID,
			"oldStock":    movement.StockBefore,
			"newStock":    movement.StockAfter,
		},
	})
	s.publisher.Publish(eventbus.SaleCreated)

	return movement, nil
}

// recountTo builds the COUNT movement that brings the locked product to
// target. A nil target keeps the stored stock, which must still fit the
// product's unit. No movement is built when nothing changes.
func recountTo(userID uuid.UUID, target *decimal.Decimal, description string) repository.LedgerFunc {
	return func(product *domain.Product) (*domain.StockMovement, error) {
		stock, field := product.CurrentStock, "unit"
		if target != nil {
			stock, field = *target, "currentStock"
		}
		if !units.AllowsQuantity(product.Unit, stock) {
			return nil, domain.Invalid(field, fmt.Sprintf("stock %s is not a valid amount for unit %s", stock, units.Label(product.Unit)))
		}

		delta := stock.Sub(product.CurrentStock)
		if delta.IsZero() {
			return nil, nil
		}
		direction := domain.DirectionIn
		if delta.IsNegative() {
			direction = domain.DirectionOut
		}
		return &domain.StockMovement{
			ID:          uuid.New(),
			Direction:   direction,
			Reason:      domain.ReasonCount,
			Quantity:    delta.Abs(),
			Description: optionalText(&description),
			CreatedBy:   userID,
			CreatedAt:   time.Now().UTC(),
		}, nil
	}
}

// Revise stores the product's editable fields and, when target differs from
// the stored stock, the COUNT movement reaching it. Both are written in one
// transaction; on error nothing is stored. product is refreshed from the
// stored row. The returned movement is nil when stock did not change.
func (s *ledgerService) Revise(ctx context.Context, userID uuid.UUID, product *domain.Product, target *decimal.Decimal, description string) (*domain.StockMovement, error) {
	if target != nil {
		if target.IsNegative() {
			return nil, domain.Invalid("currentStock", "must not be negative")
		}
		if err := domain.CheckPlaces("currentStock", *target, domain.QuantityPlaces); err != nil {
			return nil, err
		}
	}

	product.UserID = userID
	movement, err := s.products.Update(ctx, product, recountTo(userID, target, description))
	if err != nil {
		return nil, err
	}
	if movement == nil {
		return nil, nil
	}

	s.logger.Info("Stock recounted",
		zap.String("product_id", product.ID.String()),
		zap.String("stock_after", movement.StockAfter.String()),
	)

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditCreate,
		EntityType: domain.EntityStockMovement,
		EntityID:   movement.ID.String(),
		UserID:     userID,
		Details: map[string]any{
			"movementType": movement.Direction,
			"reason":       movement.Reason,
			"quantity":     movement.Quantity,
			"productId":    product.ID,
			"oldStock":     movement.StockBefore,
			"newStock":     movement.StockAfter,
		},
	})
	s.publisher.Publish(eventbus.StockMovementCreated)

	return movement, nil
}

func (s *ledgerService) ListMovements(ctx context.Context, userID uuid.UUID, filter repository.MovementFilter) ([]*domain.MovementView, error) {
	movements, err := s.movements.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	return movements, nil
}

func (s *ledgerService) ListSales(ctx context.Context, userID uuid.UUID) ([]*domain.MovementView, error) {
	sales, err := s.movements.List(ctx, userID, repository.MovementFilter{SalesOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

func (s *ledgerService) ProductMovements(ctx context.Context, userID, productID uuid.UUID) ([]*domain.StockMovement, error) {
	movements, err := s.movements.ListByProduct(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list product movements: %w", err)
	}
	return movements, nil
}

// Check folds the product's ledger and compares it with the stored stock
func (s *ledgerService) Check(ctx context.Context, userID, productID uuid.UUID) (*LedgerCheck, error) {
	product, err := s.products.FindByID(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	total, err := s.movements.SumDeltas(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	history, err := s.movements.ListByProduct(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	check := &LedgerCheck{
		ProductID:    product.ID,
		CurrentStock: product.CurrentStock,
		LedgerTotal:  total,
		Movements:    len(history),
		Consistent:   total.Equal(product.CurrentStock),
	}
	if !check.Consistent {
		s.logger.Warn("Stock differs from ledger",
			zap.String("product_id", productID.String()),
			zap.String("current_stock", check.CurrentStock.String()),
			zap.String("ledger_total", total.String()),
		)
	}
	return check, nil
}
