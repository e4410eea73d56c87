package service

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/backup"
	"stockledger/internal/cache"
	"stockledger/internal/domain"
	"stockledger/internal/eventbus"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DailyReportPageSize = 20
	SalesChartDays      = 7
	PopularWindowDays   = 30
)

const dayLayout = "2006-01-02"

// Pagination describes the page returned by a paged report.
type Pagination struct {
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

// DailyReport is one page of a day's movements plus the whole day's summary.
type DailyReport struct {
	Movements  []*domain.PricedMovement `json:"movements"`
	Summary    *domain.MovementSummary  `json:"summary"`
	Pagination Pagination               `json:"pagination"`
}

// ReportService serves the dashboard and report views. Reads are cached per
// user and the cache is dropped whenever the bus reports a change.
type ReportService interface {
	Stats(ctx context.Context, userID uuid.UUID) (*domain.DashboardStats, error)
	CriticalStocks(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error)
	SalesChart(ctx context.Context, userID uuid.UUID) ([]domain.DailyAmount, error)
	Daily(ctx context.Context, userID uuid.UUID, day time.Time, page int) (*DailyReport, error)
	DailyMovements(ctx context.Context, userID uuid.UUID, day time.Time) ([]*domain.PricedMovement, *domain.MovementSummary, error)
	StockReport(ctx context.Context, userID uuid.UUID) ([]*domain.StockReportRow, error)
	SalesReport(ctx context.Context, userID uuid.UUID) ([]*domain.SaleReportRow, error)
	Popular(ctx context.Context, userID uuid.UUID) ([]*domain.ProductSales, error)
	Invalidate(ctx context.Context) error
}

type reportService struct {
	reports   repository.ReportRepository
	products  repository.ProductRepository
	movements repository.MovementRepository
	cache     *cache.Cache
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService creates a new instance of ReportService. A nil cache
// disables caching.
func NewReportService(
	reports repository.ReportRepository,
	products repository.ProductRepository,
	movements repository.MovementRepository,
	c *cache.Cache,
	logger *zap.Logger,
) ReportService {
	return &reportService{
		reports:   reports,
		products:  products,
		movements: movements,
		cache:     c,
		logger:    logger,
		now:       time.Now,
	}
}

// InvalidateOnChange drops cached reports on every bus topic and returns the
// unsubscribe function.
func InvalidateOnChange(bus *eventbus.Bus, reports ReportService, logger *zap.Logger) func() {
	return bus.SubscribeAll(func(topic eventbus.Topic) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := reports.Invalidate(ctx); err != nil {
			logger.Warn("Failed to invalidate report cache", zap.String("topic", string(topic)), zap.Error(err))
		}
	})
}

func cacheKey(userID uuid.UUID, parts ...string) string {
	key := userID.String()
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (s *reportService) Invalidate(ctx context.Context) error {
	return s.cache.InvalidatePrefix(ctx, "")
}

func (s *reportService) today() time.Time {
	return truncateDay(s.now())
}

func (s *reportService) Stats(ctx context.Context, userID uuid.UUID) (*domain.DashboardStats, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKey(userID, "stats"), func(ctx context.Context) (*domain.DashboardStats, error) {
		today := s.today()

		var inventory *repository.InventoryTotals
		var sales *repository.SalesTotals

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			inventory, err = s.reports.InventoryTotals(gctx, userID)
			return err
		})
		g.Go(func() error {
			var err error
			sales, err = s.reports.SalesTotals(gctx, userID, today, today.AddDate(0, 0, 1))
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("failed to load dashboard stats: %w", err)
		}

		return &domain.DashboardStats{
			TotalProducts:      inventory.TotalProducts,
			TotalStockValue:    inventory.TotalStockValue,
			TodaySalesCount:    sales.Count,
			TodaySalesAmount:   sales.Amount,
			CriticalStockCount: inventory.CriticalStockCount,
		}, nil
	})
}

func (s *reportService) CriticalStocks(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKey(userID, "critical"), func(ctx context.Context) ([]*domain.Product, error) {
		products, err := s.products.ListLowStock(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load critical stocks: %w", err)
		}
		return products, nil
	})
}

// SalesChart returns the last seven days oldest first, zero-filled.
func (s *reportService) SalesChart(ctx context.Context, userID uuid.UUID) ([]domain.DailyAmount, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKey(userID, "chart"), func(ctx context.Context) ([]domain.DailyAmount, error) {
		today := s.today()
		from := today.AddDate(0, 0, -(SalesChartDays - 1))

		byDay, err := s.reports.DailySales(ctx, userID, from, today.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("failed to load sales chart: %w", err)
		}

		chart := make([]domain.DailyAmount, 0, SalesChartDays)
		for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
			key := d.Format(dayLayout)
			amount, ok := byDay[key]
			if !ok {
				amount = decimal.Zero
			}
			chart = append(chart, domain.DailyAmount{Date: key, Amount: amount})
		}
		return chart, nil
	})
}

// Daily returns one page of the day's movements, valued, with the summary of
// the whole day.
func (s *reportService) Daily(ctx context.Context, userID uuid.UUID, day time.Time, page int) (*DailyReport, error) {
	if page < 1 {
		page = 1
	}
	start := truncateDay(day)
	end := start.AddDate(0, 0, 1)
	key := cacheKey(userID, "daily", start.Format(dayLayout), fmt.Sprint(page))

	return cache.GetOrLoad(ctx, s.cache, key, func(ctx context.Context) (*DailyReport, error) {
		p := backup.Page{Number: page, Size: DailyReportPageSize}

		var summary *domain.MovementSummary
		var total int
		var views []*domain.MovementView

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			summary, total, err = s.reports.MovementSummary(gctx, userID, start, end)
			return err
		})
		g.Go(func() error {
			var err error
			views, err = s.movements.List(gctx, userID, repository.MovementFilter{
				Since:  &start,
				Until:  &end,
				Limit:  p.Size,
				Offset: p.Offset(),
			})
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("failed to load daily report: %w", err)
		}

		return &DailyReport{
			Movements: priceAll(views),
			Summary:   summary,
			Pagination: Pagination{
				Page:       page,
				TotalPages: backup.TotalPages(total, p.Size),
				TotalItems: total,
			},
		}, nil
	})
}

// DailyMovements returns every movement of the day, valued, with its summary.
func (s *reportService) DailyMovements(ctx context.Context, userID uuid.UUID, day time.Time) ([]*domain.PricedMovement, *domain.MovementSummary, error) {
	start := truncateDay(day)
	end := start.AddDate(0, 0, 1)

	views, err := s.movements.List(ctx, userID, repository.MovementFilter{Since: &start, Until: &end})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load daily movements: %w", err)
	}
	summary, _, err := s.reports.MovementSummary(ctx, userID, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to summarize daily movements: %w", err)
	}
	return priceAll(views), summary, nil
}

func priceAll(views []*domain.MovementView) []*domain.PricedMovement {
	priced := make([]*domain.PricedMovement, len(views))
	for i, v := range views {
		priced[i] = domain.Price(v)
	}
	return priced
}

func (s *reportService) StockReport(ctx context.Context, userID uuid.UUID) ([]*domain.StockReportRow, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKey(userID, "stock"), func(ctx context.Context) ([]*domain.StockReportRow, error) {
		products, err := s.products.List(ctx, userID, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load stock report: %w", err)
		}

		rows := make([]*domain.StockReportRow, len(products))
		for i, p := range products {
			status := domain.StockNormal
			if p.IsLowStock() {
				status = domain.StockCritical
			}
			rows[i] = &domain.StockReportRow{
				ProductID:     p.ID,
				Name:          p.Name,
				Category:      p.Category,
				CurrentStock:  p.CurrentStock,
				MinimumStock:  p.MinimumStock,
				Unit:          string(p.Unit),
				PurchasePrice: p.PurchasePrice,
				SellingPrice:  p.SellingPrice,
				StockValue:    p.StockValue(),
				Supplier:      p.Supplier,
				Status:        status,
			}
		}
		return rows, nil
	})
}

func (s *reportService) SalesReport(ctx context.Context, userID uuid.UUID) ([]*domain.SaleReportRow, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKey(userID, "sales"), func(ctx context.Context) ([]*domain.SaleReportRow, error) {
		sales, err := s.movements.List(ctx, userID, repository.MovementFilter{SalesOnly: true})
		if err != nil {
			return nil, fmt.Errorf("failed to load sales report: %w", err)
		}

		rows := make([]*domain.SaleReportRow, len(sales))
		for i, m := range sales {
			rows[i] = &domain.SaleReportRow{
				Date:        m.CreatedAt,
				Product:     m.ProductName,
				Category:    m.Category,
				Quantity:    m.Quantity,
				Unit:        m.ProductUnit,
				UnitPrice:   m.UnitPrice,
				TotalPrice:  m.TotalPrice,
				Description: m.Description,
			}
		}
		return rows, nil
	})
}

// Popular ranks products by quantity sold over the last thirty days.
// DaysOfCover is how many days current stock lasts at the average rate; it is
// nil for products that sold nothing.
func (s *reportService) Popular(ctx context.Context, userID uuid.UUID) ([]*domain.ProductSales, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKey(userID, "popular"), func(ctx context.Context) ([]*domain.ProductSales, error) {
		from := s.today().AddDate(0, 0, -PopularWindowDays)
		sales, err := s.reports.ProductSales(ctx, userID, from)
		if err != nil {
			return nil, fmt.Errorf("failed to load popular products: %w", err)
		}

		window := decimal.NewFromInt(PopularWindowDays)
		for _, p := range sales {
			p.DailyAverage = p.TotalQuantity.DivRound(window, 3)
			if p.DailyAverage.IsPositive() {
				days := p.CurrentStock.Div(p.DailyAverage).Floor().IntPart()
				p.DaysOfCover = &days
			}
		}
		return sales, nil
	})
}
