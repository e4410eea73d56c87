package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stockledger/internal/domain"
	"stockledger/internal/units"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func move(userID uuid.UUID, direction domain.Direction, reason domain.Reason, qty string) LedgerFunc {
	return func(*domain.Product) (*domain.StockMovement, error) {
		return &domain.StockMovement{
			Direction: direction,
			Reason:    reason,
			Quantity:  decimal.RequireFromString(qty),
			CreatedBy: userID,
		}, nil
	}
}

func countMovements(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var n int
	if err := testDB.QueryRow(`SELECT COUNT(*) FROM stock_movements WHERE product_id = $1`, productID).Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func TestMovementRepository_KilogramSalesCrossThreshold(t *testing.T) {
	ledger := NewMovementRepository(testDB)
	products := NewProductRepository(testDB)
	ctx := context.Background()
	owner := createTestUser(t)
	product := createTestProduct(t, owner.ID, units.Kilogram, "10", "5")

	m, updated, err := ledger.Apply(ctx, owner.ID, product.ID, move(owner.ID, domain.DirectionOut, domain.ReasonSale, "3.5"))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !updated.CurrentStock.Equal(decimal.RequireFromString("6.5")) {
		t.Errorf("expected stock 6.5, got %s", updated.CurrentStock)
	}
	if !m.StockBefore.Equal(decimal.NewFromInt(10)) || !m.StockAfter.Equal(decimal.RequireFromString("6.5")) {
		t.Errorf("unexpected before/after %s/%s", m.StockBefore, m.StockAfter)
	}

	low, _ := products.ListLowStock(ctx, owner.ID)
	if len(low) != 0 {
		t.Errorf("6.5 is above the minimum of 5")
	}

	_, updated, err = ledger.Apply(ctx, owner.ID, product.ID, move(owner.ID, domain.DirectionOut, domain.ReasonSale, "2"))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !updated.CurrentStock.Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("expected stock 4.5, got %s", updated.CurrentStock)
	}

	low, _ = products.ListLowStock(ctx, owner.ID)
	if len(low) != 1 || low[0].ID != product.ID {
		t.Errorf("product at 4.5 should be low on stock")
	}

	history, err := ledger.ListByProduct(ctx, owner.ID, product.ID)
	if err != nil {
		t.Fatalf("ListByProduct failed: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("expected opening plus two sales, got %d", len(history))
	}
}

func TestMovementRepository_OverdrawWritesNothing(t *testing.T) {
	ledger := NewMovementRepository(testDB)
	products := NewProductRepository(testDB)
	ctx := context.Background()
	owner := createTestUser(t)
	product := createTestProduct(t, owner.ID, units.Piece, "3", "0")
	before := countMovements(t, product.ID)

	_, _, err := ledger.Apply(ctx, owner.ID, product.ID, move(owner.ID, domain.DirectionOut, domain.ReasonWaste, "4"))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	reloaded, _ := products.FindByID(ctx, owner.ID, product.ID)
	if !reloaded.CurrentStock.Equal(decimal.NewFromInt(3)) {
		t.Errorf("stock changed after a rejected movement: %s", reloaded.CurrentStock)
	}
	if countMovements(t, product.ID) != before {
		t.Errorf("a rejected movement was persisted")
	}
}

func TestMovementRepository_BuildErrorAborts(t *testing.T) {
	ledger := NewMovementRepository(testDB)
	ctx := context.Background()
	owner := createTestUser(t)
	product := createTestProduct(t, owner.ID, units.Piece, "3", "0")
	before := countMovements(t, product.ID)

	sentinel := errors.New("rejected")
	_, _, err := ledger.Apply(ctx, owner.ID, product.ID, func(*domain.Product) (*domain.StockMovement, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected build error, got %v", err)
	}
	if countMovements(t, product.ID) != before {
		t.Errorf("aborted movement was persisted")
	}
}

func TestMovementRepository_UnknownOrForeignProduct(t *testing.T) {
	ledger := NewMovementRepository(testDB)
	ctx := context.Background()
	owner := createTestUser(t)
	stranger := createTestUser(t)
	product := createTestProduct(t, owner.ID, units.Piece, "3", "0")

	_, _, err := ledger.Apply(ctx, stranger.ID, product.ID, move(stranger.ID, domain.DirectionIn, domain.ReasonPurchase, "1"))
	if !errors.Is(err, ErrProductNotFound) {
		t.Errorf("expected not found for a foreign product, got %v", err)
	}
	_, _, err = ledger.Apply(ctx, owner.ID, uuid.New(), move(owner.ID, domain.DirectionIn, domain.ReasonPurchase, "1"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMovementRepository_ConcurrentMovementsDoNotLoseUpdates(t *testing.T) {
	ledger := NewMovementRepository(testDB)
	ctx := context.Background()
	owner := createTestUser(t)
	product := createTestProduct(t, owner.ID, units.Piece, "100", "0")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			direction, reason := domain.DirectionOut, domain.ReasonSale
			if i%2 == 0 {
				direction, reason = domain.DirectionIn, domain.ReasonPurchase
			}
			if _, _, err := ledger.Apply(ctx, owner.ID, product.ID, move(owner.ID, direction, reason, "3")); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Apply failed: %v", err)
	}

	reloaded, err := NewProductRepository(testDB).FindByID(ctx, owner.ID, product.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if !reloaded.CurrentStock.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected 100 after balanced movements, got %s", reloaded.CurrentStock)
	}

	sum, err := ledger.SumDeltas(ctx, owner.ID, product.ID)
	if err != nil {
		t.Fatalf("SumDeltas failed: %v", err)
	}
	if !sum.Equal(reloaded.CurrentStock) {
		t.Errorf("ledger sum %s differs from stock %s", sum, reloaded.CurrentStock)
	}

	history, _ := ledger.ListByProduct(ctx, owner.ID, product.ID)
	for _, m := range history {
		if !m.Direction.Apply(m.StockBefore, m.Quantity).Equal(m.StockAfter) {
			t.Errorf("movement %s has inconsistent before/after", m.ID)
		}
	}
}

func TestProperty_StockEqualsLedgerFold(t *testing.T) {
	ledger := NewMovementRepository(testDB)
	ctx := context.Background()
	owner := createTestUser(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("current stock equals the sum of movement deltas", prop.ForAll(
		func(steps []int) bool {
			product := createTestProduct(t, owner.ID, units.Piece, "5", "0")
			stock := decimal.NewFromInt(5)

			for _, step := range steps {
				direction, reason := domain.DirectionIn, domain.ReasonPurchase
				qty := step
				if step < 0 {
					direction, reason = domain.DirectionOut, domain.ReasonSale
					qty = -step
				}
				if qty == 0 {
					continue
				}
				quantity := decimal.NewFromInt(int64(qty))

				_, updated, err := ledger.Apply(ctx, owner.ID, product.ID, func(*domain.Product) (*domain.StockMovement, error) {
					return &domain.StockMovement{Direction: direction, Reason: reason, Quantity: quantity, CreatedBy: owner.ID}, nil
				})

				expected := direction.Apply(stock, quantity)
				if expected.IsNegative() {
					if !errors.Is(err, domain.ErrInsufficientStock) {
						return false
					}
					continue
				}
				if err != nil || !updated.CurrentStock.Equal(expected) {
					return false
				}
				stock = expected
			}

			sum, err := ledger.SumDeltas(ctx, owner.ID, product.ID)
			return err == nil && sum.Equal(stock)
		},
		gen.SliceOfN(8, gen.IntRange(-6, 6)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestMovementRepository_ListFilters(t *testing.T) {
	ledger := NewMovementRepository(testDB)
	ctx := context.Background()
	owner := createTestUser(t)
	product := createTestProduct(t, owner.ID, units.Piece, "10", "0")

	if _, _, err := ledger.Apply(ctx, owner.ID, product.ID, move(owner.ID, domain.DirectionOut, domain.ReasonSale, "1")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, _, err := ledger.Apply(ctx, owner.ID, product.ID, move(owner.ID, domain.DirectionOut, domain.ReasonWaste, "1")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	all, err := ledger.List(ctx, owner.ID, MovementFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(all))
	}
	if all[0].ProductName != product.Name || all[0].ProductUnit != string(units.Piece) {
		t.Errorf("product fields not joined: %+v", all[0])
	}

	sales, _ := ledger.List(ctx, owner.ID, MovementFilter{SalesOnly: true})
	if len(sales) != 1 || !sales[0].IsSale() {
		t.Errorf("expected one sale, got %d", len(sales))
	}

	page, _ := ledger.List(ctx, owner.ID, MovementFilter{Limit: 2, Offset: 2})
	if len(page) != 1 {
		t.Errorf("expected last page of one, got %d", len(page))
	}

	future := time.Now().Add(time.Hour)
	none, _ := ledger.List(ctx, owner.ID, MovementFilter{Since: &future})
	if len(none) != 0 {
		t.Errorf("expected nothing after since, got %d", len(none))
	}
}

func TestMovementRepository_AppendOnly(t *testing.T) {
	owner := createTestUser(t)
	product := createTestProduct(t, owner.ID, units.Piece, "1", "0")

	_, err := testDB.Exec(`UPDATE stock_movements SET quantity = 99 WHERE product_id = $1`, product.ID)
	if err == nil {
		t.Error("stock movements must reject updates")
	}
}
