package domain

import (
	"fmt"
	"time"

	"stockledger/internal/units"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Quantities and prices are emitted as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is a stock-keeping item owned by one user.
// CurrentStock is only ever changed through the stock ledger.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Barcode       *string         `json:"barcode"`
	Category      string          `json:"category"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	CurrentStock  decimal.Decimal `json:"currentStock"`
	MinimumStock  decimal.Decimal `json:"minimumStock"`
	Unit          units.Code      `json:"unit"`
	Description   *string         `json:"description"`
	Supplier      *string         `json:"supplier"`
	UserID        uuid.UUID       `json:"userId"`
	IsDeleted     bool            `json:"isDeleted"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// IsLowStock reports whether stock has fallen to or below the threshold.
func (p *Product) IsLowStock() bool {
	return p.CurrentStock.LessThanOrEqual(p.MinimumStock)
}

// StockValue is the purchase-price valuation of the current stock.
func (p *Product) StockValue() decimal.Decimal {
	return p.CurrentStock.Mul(p.PurchasePrice)
}

// Stored scale of quantities and money, matching the NUMERIC columns.
const (
	QuantityPlaces int32 = 3
	MoneyPlaces    int32 = 2
)

// CheckPlaces rejects v when it carries more than places significant
// decimal digits. Trailing zeros are ignored.
func CheckPlaces(field string, v decimal.Decimal, places int32) error {
	if !v.Equal(v.Truncate(places)) {
		return Invalid(field, fmt.Sprintf("must have at most %d decimal places", places))
	}
	return nil
}
