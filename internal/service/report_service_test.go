package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"stockledger/internal/cache"
	"stockledger/internal/domain"
	"stockledger/internal/eventbus"
	"stockledger/internal/units"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var reportNow = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

func newReportFixture(t *testing.T, c *cache.Cache) (*ledgerFixture, *mockReportRepository, *reportService) {
	t.Helper()
	f := newLedgerFixture()
	reports := newMockReportRepository()
	svc := NewReportService(reports, f.products, f.movements, c, zap.NewNop()).(*reportService)
	svc.now = func() time.Time { return reportNow }
	return f, reports, svc
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.New(client, "reports", time.Minute, zap.NewNop())
}

func TestStats_CombinesTotals(t *testing.T) {
	_, reports, svc := newReportFixture(t, nil)
	reports.inventory.TotalProducts = 4
	reports.inventory.TotalStockValue = dec("250.50")
	reports.inventory.CriticalStockCount = 1
	reports.sales.Count = 3
	reports.sales.Amount = dec("42.00")

	stats, err := svc.Stats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalProducts)
	assert.True(t, stats.TotalStockValue.Equal(dec("250.50")))
	assert.Equal(t, 3, stats.TodaySalesCount)
	assert.True(t, stats.TodaySalesAmount.Equal(dec("42")))
	assert.Equal(t, 1, stats.CriticalStockCount)

	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), reports.lastFrom)
	assert.Equal(t, time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC), reports.lastTo)
}

func TestSalesChart_ZeroFillsSevenDays(t *testing.T) {
	_, reports, svc := newReportFixture(t, nil)
	reports.daily["2024-05-05"] = dec("12.50")
	reports.daily["2024-05-10"] = dec("7")

	chart, err := svc.SalesChart(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, chart, SalesChartDays)
	assert.Equal(t, "2024-05-04", chart[0].Date)
	assert.Equal(t, "2024-05-10", chart[6].Date)
	assert.True(t, chart[0].Amount.IsZero())
	assert.True(t, chart[1].Amount.Equal(dec("12.50")))
	assert.True(t, chart[6].Amount.Equal(dec("7")))
}

func TestPopular_AveragesAndCover(t *testing.T) {
	_, reports, svc := newReportFixture(t, nil)
	reports.products = []*domain.ProductSales{
		{ProductID: uuid.New(), Name: "Milk", CurrentStock: dec("20"), TotalQuantity: dec("60"), TotalRevenue: dec("120")},
		{ProductID: uuid.New(), Name: "Salt", CurrentStock: dec("5"), TotalQuantity: dec("0"), TotalRevenue: dec("0")},
	}

	popular, err := svc.Popular(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.True(t, popular[0].DailyAverage.Equal(dec("2")))
	require.NotNil(t, popular[0].DaysOfCover)
	assert.Equal(t, int64(10), *popular[0].DaysOfCover)
	assert.Nil(t, popular[1].DaysOfCover)
	assert.Equal(t, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), reports.lastFrom)
}

func TestStockReport_Status(t *testing.T) {
	f, _, svc := newReportFixture(t, nil)
	userID := uuid.New()
	low := f.seed(userID, units.Piece, "2", "5")
	f.seed(userID, units.Piece, "9", "5")

	rows, err := svc.StockReport(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		if r.ProductID == low.ID {
			assert.Equal(t, domain.StockCritical, r.Status)
			assert.True(t, r.StockValue.Equal(dec("20")))
		} else {
			assert.Equal(t, domain.StockNormal, r.Status)
		}
	}
}

func TestDaily_PagesMovementsAndValuesThem(t *testing.T) {
	f, reports, svc := newReportFixture(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	p := f.seed(userID, units.Piece, "100", "0")

	for i := 0; i < 25; i++ {
		_, err := f.ledger.RecordMovement(ctx, userID, MovementInput{ProductID: p.ID, Direction: "OUT", Reason: "SALE", Quantity: dec("1")})
		require.NoError(t, err)
	}
	reports.count = 25

	report, err := svc.Daily(ctx, userID, time.Now().UTC(), 2)
	require.NoError(t, err)
	assert.Len(t, report.Movements, 5)
	assert.Equal(t, Pagination{Page: 2, TotalPages: 2, TotalItems: 25}, report.Pagination)
	assert.True(t, report.Movements[0].UnitPrice.Equal(dec("15")), "outbound movements are valued at selling price")
	assert.True(t, report.Movements[0].TotalPrice.Equal(dec("15")))
}

func TestReports_AreCachedUntilInvalidated(t *testing.T) {
	c := newTestCache(t)
	_, reports, svc := newReportFixture(t, c)
	ctx := context.Background()
	userID := uuid.New()

	bus := eventbus.New()
	unsubscribe := InvalidateOnChange(bus, svc, zap.NewNop())
	defer unsubscribe()

	_, err := svc.Stats(ctx, userID)
	require.NoError(t, err)
	_, err = svc.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, reports.calls["inventory"])

	bus.Publish(eventbus.SaleCreated)

	_, err = svc.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, reports.calls["inventory"])
}

func TestWriteDailyCSV(t *testing.T) {
	view := &domain.MovementView{
		StockMovement: domain.StockMovement{
			Direction:   domain.DirectionIn,
			Reason:      domain.ReasonPurchase,
			Quantity:    dec("4"),
			Description: strPtr("delivery, morning"),
			CreatedAt:   reportNow,
		},
		ProductName:   "Flour",
		ProductUnit:   "kg",
		PurchasePrice: dec("10"),
		SellingPrice:  dec("15"),
	}
	summary := &domain.MovementSummary{
		TotalStockIn:  dec("4"),
		TotalStockOut: dec("0"),
		TotalPurchase: dec("40"),
		TotalSale:     dec("0"),
		Profit:        dec("-40"),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDailyCSV(&buf, []*domain.PricedMovement{domain.Price(view)}, summary))

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, dailyCSVHeader, records[0])
	assert.Equal(t, []string{"2024-05-10", "14:30:00", "Flour", "In", "4", "kg", "10.00", "40.00", "delivery, morning"}, records[1])
	assert.Equal(t, []string{"Profit", "-40.00"}, records[len(records)-1])
}
