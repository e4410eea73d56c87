package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"stockledger/internal/backup"
	"stockledger/internal/domain"
	"stockledger/internal/middleware"
	"stockledger/internal/repository"
	"stockledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// authedRouter mounts routes under /api with userID injected as
// AuthMiddleware would.
func authedRouter(userID uuid.UUID, register func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), userID)))
			})
		})
		register(r)
	})
	return r
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeUserService struct {
	users    map[string]*domain.User
	password map[uuid.UUID]string
}

func newFakeUserService() *fakeUserService {
	return &fakeUserService{users: map[string]*domain.User{}, password: map[uuid.UUID]string{}}
}

func (f *fakeUserService) add(username, password string) *domain.User {
	u := &domain.User{ID: uuid.New(), Username: username, Name: strings.ToUpper(username)}
	f.users[username] = u
	f.password[u.ID] = password
	return u
}

func (f *fakeUserService) byID(id uuid.UUID) (*domain.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	u, ok := f.users[username]
	if !ok || f.password[u.ID] != password {
		return "", nil, service.ErrInvalidCredentials
	}
	return "token-" + u.ID.String(), u, nil
}

func (f *fakeUserService) ValidateToken(string) (*service.Claims, error) {
	return nil, service.ErrInvalidToken
}

func (f *fakeUserService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return f.byID(id)
}

func (f *fakeUserService) UpdateProfile(ctx context.Context, id uuid.UUID, username, name string) (*domain.User, error) {
	u, err := f.byID(id)
	if err != nil {
		return nil, err
	}
	if other, ok := f.users[username]; ok && other.ID != id {
		return nil, repository.ErrUsernameTaken
	}
	delete(f.users, u.Username)
	u.Username, u.Name = username, name
	f.users[username] = u
	return u, nil
}

func (f *fakeUserService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if f.password[id] != current {
		return domain.Invalid("currentPassword", "current password is incorrect")
	}
	f.password[id] = next
	return nil
}

func (f *fakeUserService) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	if _, ok := f.users[username]; ok {
		return false, nil
	}
	f.add(username, password)
	return true, nil
}

type fakeProductService struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	imported [][]service.ProductInput
	err      error
}

func newFakeProductService() *fakeProductService {
	return &fakeProductService{products: map[uuid.UUID]*domain.Product{}}
}

func (f *fakeProductService) toProduct(userID uuid.UUID, in service.ProductInput) *domain.Product {
	p := &domain.Product{
		ID:            uuid.New(),
		Name:          in.Name,
		Barcode:       in.Barcode,
		Category:      in.Category,
		PurchasePrice: in.PurchasePrice,
		SellingPrice:  in.SellingPrice,
		MinimumStock:  in.MinimumStock,
		UserID:        userID,
	}
	if in.CurrentStock != nil {
		p.CurrentStock = *in.CurrentStock
	}
	return p
}

func (f *fakeProductService) Create(ctx context.Context, userID uuid.UUID, in service.ProductInput) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := f.toProduct(userID, in)
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeProductService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeProductService) GetByBarcode(ctx context.Context, userID uuid.UUID, barcode string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.UserID == userID && p.Barcode != nil && *p.Barcode == barcode {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (f *fakeProductService) List(ctx context.Context, userID uuid.UUID, search string) ([]*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Product{}
	for _, p := range f.products {
		if p.UserID == userID && strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductService) Update(ctx context.Context, userID, id uuid.UUID, in service.ProductInput) (*domain.Product, error) {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.toProduct(userID, in)
	p.ID = id
	f.products[id] = p
	return p, nil
}

func (f *fakeProductService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.products, id)
	return nil
}

func (f *fakeProductService) Import(ctx context.Context, userID uuid.UUID, rows []service.ProductInput) *service.ImportResult {
	f.mu.Lock()
	f.imported = append(f.imported, rows)
	f.mu.Unlock()

	result := &service.ImportResult{Products: []*domain.Product{}, Errors: []service.ImportRowError{}}
	for i, row := range rows {
		if strings.TrimSpace(row.Name) == "" {
			result.Errors = append(result.Errors, service.ImportRowError{Row: i + 1, Message: "name: name is required"})
			continue
		}
		p, _ := f.Create(ctx, userID, row)
		result.Products = append(result.Products, p)
		result.Imported++
	}
	return result
}

type fakeLedgerService struct {
	movementIn service.MovementInput
	saleIn     service.SaleInput
	filter     repository.MovementFilter
	err        error
	check      *service.LedgerCheck
}

func (f *fakeLedgerService) RecordMovement(ctx context.Context, userID uuid.UUID, in service.MovementInput) (*domain.StockMovement, error) {
	f.movementIn = in
	if f.err != nil {
		return nil, f.err
	}
	dir, _ := domain.ParseDirection(in.Direction)
	return &domain.StockMovement{
		ID:        uuid.New(),
		ProductID: in.ProductID,
		Direction: dir,
		Reason:    domain.Reason(in.Reason),
		Quantity:  in.Quantity,
		CreatedBy: userID,
	}, nil
}

func (f *fakeLedgerService) RecordSale(ctx context.Context, userID uuid.UUID, in service.SaleInput) (*domain.StockMovement, error) {
	f.saleIn = in
	if f.err != nil {
		return nil, f.err
	}
	total := in.Quantity.Mul(in.UnitPrice).Round(2)
	if in.TotalPrice != nil {
		total = *in.TotalPrice
	}
	return &domain.StockMovement{
		ID:         uuid.New(),
		ProductID:  in.ProductID,
		Direction:  domain.DirectionOut,
		Reason:     domain.ReasonSale,
		Quantity:   in.Quantity,
		UnitPrice:  decimal.NewNullDecimal(in.UnitPrice),
		TotalPrice: decimal.NewNullDecimal(total),
		CreatedBy:  userID,
	}, nil
}

func (f *fakeLedgerService) Revise(ctx context.Context, userID uuid.UUID, product *domain.Product, target *decimal.Decimal, description string) (*domain.StockMovement, error) {
	return nil, nil
}

func (f *fakeLedgerService) ListMovements(ctx context.Context, userID uuid.UUID, filter repository.MovementFilter) ([]*domain.MovementView, error) {
	f.filter = filter
	return []*domain.MovementView{}, f.err
}

func (f *fakeLedgerService) ListSales(ctx context.Context, userID uuid.UUID) ([]*domain.MovementView, error) {
	return []*domain.MovementView{}, f.err
}

func (f *fakeLedgerService) ProductMovements(ctx context.Context, userID, productID uuid.UUID) ([]*domain.StockMovement, error) {
	return []*domain.StockMovement{}, f.err
}

func (f *fakeLedgerService) Check(ctx context.Context, userID, productID uuid.UUID) (*service.LedgerCheck, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.check, nil
}

type fakeAlertService struct {
	alerts    map[uuid.UUID]*domain.Alert
	evaluated []*domain.Alert
}

func (f *fakeAlertService) EvaluateLowStock(ctx context.Context, userID uuid.UUID) ([]*domain.Alert, error) {
	return f.evaluated, nil
}

func (f *fakeAlertService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Alert, error) {
	out := []*domain.Alert{}
	for _, a := range f.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertService) Create(ctx context.Context, userID uuid.UUID, message string, productID *uuid.UUID) (*domain.Alert, error) {
	a := &domain.Alert{ID: uuid.New(), UserID: userID, ProductID: productID, Message: message}
	f.alerts[a.ID] = a
	return a, nil
}

func (f *fakeAlertService) MarkRead(ctx context.Context, userID, id uuid.UUID) (*domain.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, repository.ErrAlertNotFound
	}
	if a.UserID != userID {
		return nil, domain.ErrForbidden
	}
	a.IsRead = true
	return a, nil
}

type fakeAuditService struct {
	query service.AuditQuery
}

func (f *fakeAuditService) List(ctx context.Context, userID uuid.UUID, q service.AuditQuery) (*service.AuditPage, error) {
	f.query = q
	return &service.AuditPage{Logs: []*domain.AuditLogView{}, Page: q.Page}, nil
}

type fakeReportService struct {
	day  time.Time
	page int
}

func (f *fakeReportService) Stats(ctx context.Context, userID uuid.UUID) (*domain.DashboardStats, error) {
	return &domain.DashboardStats{TotalProducts: 3, TotalStockValue: dec("120.50")}, nil
}

func (f *fakeReportService) CriticalStocks(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	return []*domain.Product{}, nil
}

func (f *fakeReportService) SalesChart(ctx context.Context, userID uuid.UUID) ([]domain.DailyAmount, error) {
	return []domain.DailyAmount{{Date: "2024-05-10", Amount: dec("15.63")}}, nil
}

func (f *fakeReportService) Daily(ctx context.Context, userID uuid.UUID, day time.Time, page int) (*service.DailyReport, error) {
	f.day, f.page = day, page
	return &service.DailyReport{
		Movements:  []*domain.PricedMovement{},
		Summary:    &domain.MovementSummary{},
		Pagination: service.Pagination{Page: page},
	}, nil
}

func (f *fakeReportService) DailyMovements(ctx context.Context, userID uuid.UUID, day time.Time) ([]*domain.PricedMovement, *domain.MovementSummary, error) {
	f.day = day
	view := &domain.MovementView{
		StockMovement: domain.StockMovement{
			Direction: domain.DirectionOut,
			Reason:    domain.ReasonSale,
			Quantity:  dec("2"),
			CreatedAt: day.Add(9 * time.Hour),
		},
		ProductName:  "Flour",
		ProductUnit:  "kg",
		SellingPrice: dec("15"),
	}
	return []*domain.PricedMovement{domain.Price(view)}, &domain.MovementSummary{
		TotalStockOut: dec("2"),
		TotalSale:     dec("30"),
		Profit:        dec("30"),
	}, nil
}

func (f *fakeReportService) StockReport(ctx context.Context, userID uuid.UUID) ([]*domain.StockReportRow, error) {
	return []*domain.StockReportRow{}, nil
}

func (f *fakeReportService) SalesReport(ctx context.Context, userID uuid.UUID) ([]*domain.SaleReportRow, error) {
	return []*domain.SaleReportRow{}, nil
}

func (f *fakeReportService) Popular(ctx context.Context, userID uuid.UUID) ([]*domain.ProductSales, error) {
	return []*domain.ProductSales{}, nil
}

func (f *fakeReportService) Invalidate(ctx context.Context) error { return nil }

type fakeBackupService struct {
	total    int
	pageSize int
	restored []byte
	opts     backup.RestoreOptions
	kind     backup.Kind
}

func (f *fakeBackupService) Count(ctx context.Context, kind backup.Kind) (*service.DumpInfo, error) {
	return &service.DumpInfo{Kind: kind, Page: 1, Total: f.total, TotalPages: backup.TotalPages(f.total, f.pageSize)}, nil
}

func (f *fakeBackupService) Dump(ctx context.Context, kind backup.Kind, page int, w io.Writer) (*service.DumpInfo, error) {
	info, _ := f.Count(ctx, kind)
	info.Page = page
	return info, backup.Encode(w, []map[string]string{{"kind": string(kind)}})
}

func (f *fakeBackupService) Restore(ctx context.Context, kind backup.Kind, r io.Reader, opts backup.RestoreOptions) (int, error) {
	f.kind, f.opts = kind, opts
	rows, err := backup.Decode[map[string]any](r)
	if err != nil {
		return 0, domain.Invalid("body", err.Error())
	}
	return len(rows), nil
}
