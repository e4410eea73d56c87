package service

import (
	"encoding/csv"
	"fmt"
	"io"

	"stockledger/internal/domain"
)

var dailyCSVHeader = []string{"Date", "Time", "Product", "Type", "Quantity", "Unit", "Unit Price", "Total", "Description"}

// WriteDailyCSV renders a day's valued movements followed by a summary block.
func WriteDailyCSV(w io.Writer, movements []*domain.PricedMovement, summary *domain.MovementSummary) error {
	cw := csv.NewWriter(w)

	records := make([][]string, 0, len(movements)+8)
	records = append(records, dailyCSVHeader)
	for _, m := range movements {
		kind := "In"
		if m.Direction == domain.DirectionOut {
			kind = "Out"
		}
		description := ""
		if m.Description != nil {
			description = *m.Description
		}
		created := m.CreatedAt.UTC()
		records = append(records, []string{
			created.Format(dayLayout),
			created.Format("15:04:05"),
			m.ProductName,
			kind,
			m.Quantity.String(),
			m.ProductUnit,
			m.UnitPrice.StringFixed(2),
			m.TotalPrice.StringFixed(2),
			description,
		})
	}

	records = append(records,
		[]string{},
		[]string{"Summary"},
		[]string{"Total Stock In", summary.TotalStockIn.String()},
		[]string{"Total Stock Out", summary.TotalStockOut.String()},
		[]string{"Total Purchase", summary.TotalPurchase.StringFixed(2)},
		[]string{"Total Sale", summary.TotalSale.StringFixed(2)},
		[]string{"Profit", summary.Profit.StringFixed(2)},
	)

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write daily report: %w", err)
	}
	return nil
}
