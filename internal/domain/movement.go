package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the sign of a stock movement.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// ParseDirection accepts IN/OUT and the legacy STOCK_IN/STOCK_OUT spellings.
func ParseDirection(raw string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IN", "STOCK_IN":
		return DirectionIn, true
	case "OUT", "STOCK_OUT":
		return DirectionOut, true
	}
	return "", false
}

// Reason explains why stock moved.
type Reason string

const (
	ReasonPurchase Reason = "PURCHASE"
	ReasonReturn   Reason = "RETURN"
	ReasonCount    Reason = "COUNT"
	ReasonSale     Reason = "SALE"
	ReasonWaste    Reason = "WASTE"
	ReasonOther    Reason = "OTHER"
)

var reasonsByDirection = map[Direction][]Reason{
	DirectionIn:  {ReasonPurchase, ReasonReturn, ReasonCount, ReasonOther},
	DirectionOut: {ReasonSale, ReasonWaste, ReasonReturn, ReasonCount, ReasonOther},
}

// Allows reports whether r is a valid reason for the direction.
func (d Direction) Allows(r Reason) bool {
	for _, allowed := range reasonsByDirection[d] {
		if allowed == r {
			return true
		}
	}
	return false
}

// Reasons lists the reasons valid for the direction.
func (d Direction) Reasons() []Reason {
	return append([]Reason(nil), reasonsByDirection[d]...)
}

// Apply returns stock after moving qty in this direction.
func (d Direction) Apply(stock, qty decimal.Decimal) decimal.Decimal {
	if d == DirectionOut {
		return stock.Sub(qty)
	}
	return stock.Add(qty)
}

// StockMovement is one immutable ledger entry.
type StockMovement struct {
	ID          uuid.UUID           `json:"id"`
	ProductID   uuid.UUID           `json:"productId"`
	Direction   Direction           `json:"type"`
	Reason      Reason              `json:"reason"`
	Quantity    decimal.Decimal     `json:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unitPrice"`
	TotalPrice  decimal.NullDecimal `json:"totalPrice"`
	Description *string             `json:"description"`
	StockBefore decimal.Decimal     `json:"stockBefore"`
	StockAfter  decimal.Decimal     `json:"stockAfter"`
	CreatedBy   uuid.UUID           `json:"createdBy"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// Delta is the signed change this movement applied.
func (m *StockMovement) Delta() decimal.Decimal {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// IsSale reports whether the movement records a sale.
func (m *StockMovement) IsSale() bool {
	return m.Direction == DirectionOut && m.Reason == ReasonSale
}

// MovementView is a movement joined with the product fields listings need.
type MovementView struct {
	StockMovement
	ProductName   string          `json:"productName"`
	ProductUnit   string          `json:"productUnit"`
	Category      string          `json:"category"`
	Supplier      *string         `json:"supplier,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
}
