package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockledger/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerFunc builds the movement to apply against the locked product.
// Returning an error aborts the transaction without writing anything.
type LedgerFunc func(product *domain.Product) (*domain.StockMovement, error)

// MovementFilter narrows a movement listing. Zero values mean no bound.
type MovementFilter struct {
	Since     *time.Time
	Until     *time.Time
	SalesOnly bool
	Limit     int
	Offset    int
}

// MovementRepository is the only writer of products.current_stock after creation.
type MovementRepository interface {
	Apply(ctx context.Context, userID, productID uuid.UUID, build LedgerFunc) (*domain.StockMovement, *domain.Product, error)
	List(ctx context.Context, userID uuid.UUID, filter MovementFilter) ([]*domain.MovementView, error)
	ListByProduct(ctx context.Context, userID, productID uuid.UUID) ([]*domain.StockMovement, error)
	SumDeltas(ctx context.Context, userID, productID uuid.UUID) (decimal.Decimal, error)
}

type movementRepository struct {
	db *sql.DB
}

// NewMovementRepository creates a new instance of MovementRepository
func NewMovementRepository(db *sql.DB) MovementRepository {
	return &movementRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const movementColumns = `id, product_id, direction, reason, quantity, unit_price, total_price,
	description, stock_before, stock_after, created_by, created_at`

func insertMovement(ctx context.Context, db execer, m *domain.StockMovement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO stock_movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := db.ExecContext(
		ctx,
		query,
		m.ID,
		m.ProductID,
		m.Direction,
		m.Reason,
		m.Quantity,
		m.UnitPrice,
		m.TotalPrice,
		m.Description,
		m.StockBefore,
		m.StockAfter,
		uuid.NullUUID{UUID: m.CreatedBy, Valid: m.CreatedBy != uuid.Nil},
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stock movement: %w", err)
	}
	return nil
}

func scanMovement(row rowScanner, extra ...any) (*domain.StockMovement, error) {
	m := &domain.StockMovement{}
	var createdBy uuid.NullUUID
	dest := []any{
		&m.ID,
		&m.ProductID,
		&m.Direction,
		&m.Reason,
		&m.Quantity,
		&m.UnitPrice,
		&m.TotalPrice,
		&m.Description,
		&m.StockBefore,
		&m.StockAfter,
		&createdBy,
		&m.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	m.CreatedBy = createdBy.UUID
	return m, nil
}

// applyLocked writes movement against a product row already locked by tx and
// moves product.CurrentStock to the new balance.
func applyLocked(ctx context.Context, tx *sql.Tx, product *domain.Product, movement *domain.StockMovement) error {
	movement.ProductID = product.ID
	movement.StockBefore = product.CurrentStock
	movement.StockAfter = movement.Direction.Apply(product.CurrentStock, movement.Quantity)
	if movement.StockAfter.IsNegative() {
		return ErrNegativeStock
	}

	if err := insertMovement(ctx, tx, movement); err != nil {
		return err
	}

	err := tx.QueryRowContext(
		ctx,
		`UPDATE products SET current_stock = $2 WHERE id = $1 RETURNING updated_at`,
		product.ID,
		movement.StockAfter,
	).Scan(&product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update product stock: %w", err)
	}
	product.CurrentStock = movement.StockAfter
	return nil
}

// Apply locks the product row, lets build describe the movement, then writes
// the movement and the new stock in one transaction. StockBefore and
// StockAfter are always taken from the locked row.
func (r *movementRepository) Apply(ctx context.Context, userID, productID uuid.UUID, build LedgerFunc) (*domain.StockMovement, *domain.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND user_id = $2 AND NOT is_deleted FOR UPDATE`

	product, err := scanProduct(tx.QueryRowContext(ctx, query, productID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrProductNotFound
		}
		return nil, nil, fmt.Errorf("failed to lock product: %w", err)
	}

	movement, err := build(product)
	if err != nil {
		return nil, nil, err
	}
	if err := applyLocked(ctx, tx, product, movement); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit stock movement: %w", err)
	}

	return movement, product, nil
}

// List returns the user's movements newest first, joined with product fields.
// Movements of soft-deleted products stay visible.
func (r *movementRepository) List(ctx context.Context, userID uuid.UUID, filter MovementFilter) ([]*domain.MovementView, error) {
	args := []any{userID}
	where := "WHERE p.user_id = $1"

	if filter.Since != nil {
		args = append(args, *filter.Since)
		where += fmt.Sprintf(" AND m.created_at >= $%d", len(args))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		where += fmt.Sprintf(" AND m.created_at < $%d", len(args))
	}
	if filter.SalesOnly {
		where += " AND m.direction = 'OUT' AND m.reason = 'SALE'"
	}

	query := `
		SELECT m.id, m.product_id, m.direction, m.reason, m.quantity, m.unit_price, m.total_price,
		       m.description, m.stock_before, m.stock_after, m.created_by, m.created_at,
		       p.name, p.unit, p.category, p.supplier, p.purchase_price, p.selling_price
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		` + where + `
		ORDER BY m.created_at DESC, m.id`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	defer rows.Close()

	views := []*domain.MovementView{}
	for rows.Next() {
		view := &domain.MovementView{}
		m, err := scanMovement(rows,
			&view.ProductName,
			&view.ProductUnit,
			&view.Category,
			&view.Supplier,
			&view.PurchasePrice,
			&view.SellingPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		view.StockMovement = *m
		views = append(views, view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock movements: %w", err)
	}

	return views, nil
}

// ListByProduct returns one product's ledger newest first
func (r *movementRepository) ListByProduct(ctx context.Context, userID, productID uuid.UUID) ([]*domain.StockMovement, error) {
	query := `
		SELECT m.id, m.product_id, m.direction, m.reason, m.quantity, m.unit_price, m.total_price,
		       m.description, m.stock_before, m.stock_after, m.created_by, m.created_at
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE m.product_id = $1 AND p.user_id = $2
		ORDER BY m.created_at DESC, m.id
	`

	rows, err := r.db.QueryContext(ctx, query, productID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list product movements: %w", err)
	}
	defer rows.Close()

	movements := []*domain.StockMovement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		movements = append(movements, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock movements: %w", err)
	}

	return movements, nil
}

// SumDeltas folds a product's ledger into its net stock change
func (r *movementRepository) SumDeltas(ctx context.Context, userID, productID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN m.direction = 'IN' THEN m.quantity ELSE -m.quantity END), 0)
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE m.product_id = $1 AND p.user_id = $2
	`

	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, productID, userID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum stock movements: %w", err)
	}
	return total, nil
}
