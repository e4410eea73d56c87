package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DashboardStats is the headline block of the dashboard.
type DashboardStats struct {
	TotalProducts      int             `json:"totalProducts"`
	TotalStockValue    decimal.Decimal `json:"totalStockValue"`
	TodaySalesCount    int             `json:"todaySalesCount"`
	TodaySalesAmount   decimal.Decimal `json:"todaySalesAmount"`
	CriticalStockCount int             `json:"criticalStockCount"`
}

// DailyAmount is the sales revenue of one calendar day.
type DailyAmount struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// MovementSummary totals a set of movements. Inbound stock is valued at
// purchase price and outbound stock at selling price.
type MovementSummary struct {
	TotalStockIn  decimal.Decimal `json:"totalStockIn"`
	TotalStockOut decimal.Decimal `json:"totalStockOut"`
	TotalPurchase decimal.Decimal `json:"totalPurchase"`
	TotalSale     decimal.Decimal `json:"totalSale"`
	Profit        decimal.Decimal `json:"profit"`
}

// PricedMovement is a movement with the price it is valued at in reports.
// Its prices shadow the recorded sale prices in JSON.
type PricedMovement struct {
	MovementView
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// Price values a movement the way MovementSummary does.
func Price(view *MovementView) *PricedMovement {
	unitPrice := view.SellingPrice
	if view.Direction == DirectionIn {
		unitPrice = view.PurchasePrice
	}
	return &PricedMovement{
		MovementView: *view,
		UnitPrice:    unitPrice,
		TotalPrice:   view.Quantity.Mul(unitPrice),
	}
}

// StockStatus classifies a product in the stock report.
type StockStatus string

const (
	StockCritical StockStatus = "CRITICAL"
	StockNormal   StockStatus = "NORMAL"
)

// StockReportRow is one product in the stock valuation report.
type StockReportRow struct {
	ProductID     uuid.UUID       `json:"productId"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	CurrentStock  decimal.Decimal `json:"currentStock"`
	MinimumStock  decimal.Decimal `json:"minimumStock"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	StockValue    decimal.Decimal `json:"stockValue"`
	Supplier      *string         `json:"supplier"`
	Status        StockStatus     `json:"status"`
}

// SaleReportRow is one sale in the sales report.
type SaleReportRow struct {
	Date        time.Time           `json:"date"`
	Product     string              `json:"product"`
	Category    string              `json:"category"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Unit        string              `json:"unit"`
	UnitPrice   decimal.NullDecimal `json:"unitPrice"`
	TotalPrice  decimal.NullDecimal `json:"totalPrice"`
	Description *string             `json:"description"`
}

// ProductSales aggregates a product's sales over a window.
type ProductSales struct {
	ProductID     uuid.UUID       `json:"productId"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	CurrentStock  decimal.Decimal `json:"currentStock"`
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	DailyAverage  decimal.Decimal `json:"dailyAverage"`
	DaysOfCover   *int64          `json:"daysOfCover"`
}
