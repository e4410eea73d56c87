package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stockledger/internal/domain"

	"github.com/google/uuid"
)

// ProductRepository defines the interface for product data access.
// Every lookup is scoped to the owning user and ignores soft-deleted rows.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product, opening *domain.StockMovement) error
	Update(ctx context.Context, product *domain.Product, recount LedgerFunc) (*domain.StockMovement, error)
	SoftDelete(ctx context.Context, userID, id uuid.UUID) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Product, error)
	FindByBarcode(ctx context.Context, userID uuid.UUID, barcode string) (*domain.Product, error)
	List(ctx context.Context, userID uuid.UUID, search string) ([]*domain.Product, error)
	ListLowStock(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error)
	BarcodeExists(ctx context.Context, userID uuid.UUID, barcode string, excludeID *uuid.UUID) (bool, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, barcode, category, purchase_price, selling_price, current_stock,
	minimum_stock, unit, description, supplier, user_id, is_deleted, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Barcode,
		&product.Category,
		&product.PurchasePrice,
		&product.SellingPrice,
		&product.CurrentStock,
		&product.MinimumStock,
		&product.Unit,
		&product.Description,
		&product.Supplier,
		&product.UserID,
		&product.IsDeleted,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	return product, err
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// Create inserts the product and, when opening is set, its opening ledger entry
// in the same transaction.
func (r *productRepository) Create(ctx context.Context, product *domain.Product, opening *domain.StockMovement) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO products (id, name, barcode, category, purchase_price, selling_price, current_stock,
			minimum_stock, unit, description, supplier, user_id, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, $13, $14)
	`

	_, err = tx.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Barcode,
		product.Category,
		product.PurchasePrice,
		product.SellingPrice,
		product.CurrentStock,
		product.MinimumStock,
		product.Unit,
		product.Description,
		product.Supplier,
		product.UserID,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		if constraintViolated(err, "products_user_barcode_key") {
			return ErrDuplicateBarcode
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	if opening != nil {
		opening.ProductID = product.ID
		if err := insertMovement(ctx, tx, opening); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product: %w", err)
	}
	return nil
}

// Update writes descriptive fields and prices, then lets recount describe a
// stock correction against the updated row. Both land in one transaction, so
// a failed correction leaves the product untouched. Stock only changes
// through the returned movement, which is nil when recount builds none.
// On success product holds the stored row.
func (r *productRepository) Update(ctx context.Context, product *domain.Product, recount LedgerFunc) (*domain.StockMovement, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE products
		SET name = $3, barcode = $4, category = $5, purchase_price = $6, selling_price = $7,
		    minimum_stock = $8, unit = $9, description = $10, supplier = $11
		WHERE id = $1 AND user_id = $2 AND NOT is_deleted
		RETURNING ` + productColumns

	stored, err := scanProduct(tx.QueryRowContext(
		ctx,
		query,
		product.ID,
		product.UserID,
		product.Name,
		product.Barcode,
		product.Category,
		product.PurchasePrice,
		product.SellingPrice,
		product.MinimumStock,
		product.Unit,
		product.Description,
		product.Supplier,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		if constraintViolated(err, "products_user_barcode_key") {
			return nil, ErrDuplicateBarcode
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	var movement *domain.StockMovement
	if recount != nil {
		if movement, err = recount(stored); err != nil {
			return nil, err
		}
		if movement != nil {
			if err := applyLocked(ctx, tx, stored, movement); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product update: %w", err)
	}

	*product = *stored
	return movement, nil
}

// SoftDelete hides the product while keeping its ledger for audit
func (r *productRepository) SoftDelete(ctx context.Context, userID, id uuid.UUID) error {
	query := `UPDATE products SET is_deleted = TRUE WHERE id = $1 AND user_id = $2 AND NOT is_deleted`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a live product owned by userID
func (r *productRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND user_id = $2 AND NOT is_deleted`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// FindByBarcode retrieves a live product by its owner-scoped barcode
func (r *productRepository) FindByBarcode(ctx context.Context, userID uuid.UUID, barcode string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE user_id = $1 AND barcode = $2 AND NOT is_deleted`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, userID, barcode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by barcode: %w", err)
	}

	return product, nil
}

// List returns live products ordered by name, optionally filtered by a
// case-insensitive match on name, barcode or category.
func (r *productRepository) List(ctx context.Context, userID uuid.UUID, search string) ([]*domain.Product, error) {
	args := []any{userID}
	where := "WHERE user_id = $1 AND NOT is_deleted"

	if s := strings.TrimSpace(search); s != "" {
		args = append(args, "%"+s+"%")
		where += " AND (name ILIKE $2 OR barcode ILIKE $2 OR category ILIKE $2)"
	}

	query := `SELECT ` + productColumns + ` FROM products ` + where + ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return scanProducts(rows)
}

// ListLowStock returns live products at or below their minimum stock
func (r *productRepository) ListLowStock(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE user_id = $1 AND NOT is_deleted AND current_stock <= minimum_stock
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	return scanProducts(rows)
}

// BarcodeExists reports whether another live product of userID uses barcode
func (r *productRepository) BarcodeExists(ctx context.Context, userID uuid.UUID, barcode string, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM products
			WHERE user_id = $1 AND barcode = $2 AND NOT is_deleted AND ($3::uuid IS NULL OR id <> $3)
		)
	`

	var exclude uuid.NullUUID
	if excludeID != nil {
		exclude = uuid.NullUUID{UUID: *excludeID, Valid: true}
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, barcode, exclude).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check barcode: %w", err)
	}
	return exists, nil
}
