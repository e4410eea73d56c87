package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stockledger/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryTotals summarizes a user's live products
type InventoryTotals struct {
	TotalProducts      int
	TotalStockValue    decimal.Decimal
	CriticalStockCount int
}

// SalesTotals summarizes sales within a time range
type SalesTotals struct {
	Count  int
	Amount decimal.Decimal
}

// ReportRepository runs the aggregate queries behind the dashboard and reports.
// Time ranges are half-open: [from, to).
type ReportRepository interface {
	InventoryTotals(ctx context.Context, userID uuid.UUID) (*InventoryTotals, error)
	SalesTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) (*SalesTotals, error)
	DailySales(ctx context.Context, userID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error)
	MovementSummary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*domain.MovementSummary, int, error)
	ProductSales(ctx context.Context, userID uuid.UUID, from time.Time) ([]*domain.ProductSales, error)
}

type reportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a new instance of ReportRepository
func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

// saleAmount values a sale by its recorded total, falling back to list price.
const saleAmount = `COALESCE(m.total_price, m.quantity * p.selling_price)`

func (r *reportRepository) InventoryTotals(ctx context.Context, userID uuid.UUID) (*InventoryTotals, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(current_stock * purchase_price), 0),
		       COUNT(*) FILTER (WHERE current_stock <= minimum_stock)
		FROM products
		WHERE user_id = $1 AND NOT is_deleted
	`

	totals := &InventoryTotals{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&totals.TotalProducts,
		&totals.TotalStockValue,
		&totals.CriticalStockCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute inventory totals: %w", err)
	}
	return totals, nil
}

func (r *reportRepository) SalesTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) (*SalesTotals, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(` + saleAmount + `), 0)
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE p.user_id = $1 AND m.direction = 'OUT' AND m.reason = 'SALE'
		  AND m.created_at >= $2 AND m.created_at < $3
	`

	totals := &SalesTotals{}
	if err := r.db.QueryRowContext(ctx, query, userID, from, to).Scan(&totals.Count, &totals.Amount); err != nil {
		return nil, fmt.Errorf("failed to compute sales totals: %w", err)
	}
	return totals, nil
}

// DailySales returns revenue keyed by UTC date (YYYY-MM-DD). Days without
// sales are absent.
func (r *reportRepository) DailySales(ctx context.Context, userID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error) {
	query := `
		SELECT to_char(m.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, SUM(` + saleAmount + `)
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE p.user_id = $1 AND m.direction = 'OUT' AND m.reason = 'SALE'
		  AND m.created_at >= $2 AND m.created_at < $3
		GROUP BY day
	`

	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily sales: %w", err)
	}
	defer rows.Close()

	days := make(map[string]decimal.Decimal)
	for rows.Next() {
		var day string
		var amount decimal.Decimal
		if err := rows.Scan(&day, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan daily sales: %w", err)
		}
		days[day] = amount
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily sales: %w", err)
	}

	return days, nil
}

// MovementSummary totals every movement in the range and returns their count
func (r *reportRepository) MovementSummary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*domain.MovementSummary, int, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(m.quantity) FILTER (WHERE m.direction = 'IN'), 0),
		       COALESCE(SUM(m.quantity) FILTER (WHERE m.direction = 'OUT'), 0),
		       COALESCE(SUM(m.quantity * p.purchase_price) FILTER (WHERE m.direction = 'IN'), 0),
		       COALESCE(SUM(m.quantity * p.selling_price) FILTER (WHERE m.direction = 'OUT'), 0)
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE p.user_id = $1 AND m.created_at >= $2 AND m.created_at < $3
	`

	var count int
	summary := &domain.MovementSummary{}
	err := r.db.QueryRowContext(ctx, query, userID, from, to).Scan(
		&count,
		&summary.TotalStockIn,
		&summary.TotalStockOut,
		&summary.TotalPurchase,
		&summary.TotalSale,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to summarize movements: %w", err)
	}
	summary.Profit = summary.TotalSale.Sub(summary.TotalPurchase)

	return summary, count, nil
}

// ProductSales aggregates sales since from for every live product, including
// products that sold nothing.
func (r *reportRepository) ProductSales(ctx context.Context, userID uuid.UUID, from time.Time) ([]*domain.ProductSales, error) {
	query := `
		SELECT p.id, p.name, p.category, p.unit, p.current_stock,
		       COALESCE(SUM(m.quantity), 0),
		       COALESCE(SUM(m.total_price), 0)
		FROM products p
		LEFT JOIN stock_movements m
		       ON m.product_id = p.id AND m.direction = 'OUT' AND m.reason = 'SALE' AND m.created_at >= $2
		WHERE p.user_id = $1 AND NOT p.is_deleted
		GROUP BY p.id
		ORDER BY 6 DESC, p.name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to compute product sales: %w", err)
	}
	defer rows.Close()

	sales := []*domain.ProductSales{}
	for rows.Next() {
		s := &domain.ProductSales{}
		err := rows.Scan(&s.ProductID, &s.Name, &s.Category, &s.Unit, &s.CurrentStock, &s.TotalQuantity, &s.TotalRevenue)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product sales: %w", err)
		}
		sales = append(sales, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product sales: %w", err)
	}

	return sales, nil
}
