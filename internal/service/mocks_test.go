package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stockledger/internal/audit"
	"stockledger/internal/backup"
	"stockledger/internal/domain"
	"stockledger/internal/eventbus"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mock repositories for testing

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Username]; exists {
		return repository.ErrUsernameTaken
	}
	m.users[user.Username] = user
	return nil
}

func (m *mockUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, exists := m.users[username]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, username, name string) (*domain.User, error) {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if other, exists := m.users[username]; exists && other.ID != id {
		return nil, repository.ErrUsernameTaken
	}
	delete(m.users, user.Username)
	user.Username = username
	user.Name = name
	m.users[username] = user
	return user, nil
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return nil
}

// mockStore holds the product table and the ledger shared by the product and
// movement mocks.
type mockStore struct {
	mu        sync.Mutex
	products  map[uuid.UUID]*domain.Product
	movements []*domain.StockMovement
	// failMovements, when set, fails every write that carries a movement.
	failMovements error
}

func newMockStore() *mockStore {
	return &mockStore{products: make(map[uuid.UUID]*domain.Product)}
}

func (s *mockStore) live(userID, id uuid.UUID) (*domain.Product, bool) {
	p, ok := s.products[id]
	if !ok || p.IsDeleted || p.UserID != userID {
		return nil, false
	}
	return p, true
}

func (s *mockStore) movementCount(productID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.movements {
		if m.ProductID == productID {
			n++
		}
	}
	return n
}

type mockProductRepository struct {
	store *mockStore
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product, opening *domain.StockMovement) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if product.Barcode != nil {
		for _, p := range m.store.products {
			if p.UserID == product.UserID && !p.IsDeleted && p.Barcode != nil && *p.Barcode == *product.Barcode {
				return repository.ErrDuplicateBarcode
			}
		}
	}
	stored := *product
	m.store.products[product.ID] = &stored
	if opening != nil {
		opening.ProductID = product.ID
		mv := *opening
		m.store.movements = append(m.store.movements, &mv)
	}
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product, recount repository.LedgerFunc) (*domain.StockMovement, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	existing, ok := m.store.live(product.UserID, product.ID)
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	stored := *product
	stored.CurrentStock = existing.CurrentStock
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	var movement *domain.StockMovement
	if recount != nil {
		locked := stored
		var err error
		if movement, err = recount(&locked); err != nil {
			return nil, err
		}
	}
	if movement != nil {
		if m.store.failMovements != nil {
			return nil, m.store.failMovements
		}
		after := movement.Direction.Apply(stored.CurrentStock, movement.Quantity)
		if after.IsNegative() {
			return nil, repository.ErrNegativeStock
		}
		movement.ProductID = stored.ID
		movement.StockBefore = stored.CurrentStock
		movement.StockAfter = after
		mv := *movement
		m.store.movements = append(m.store.movements, &mv)
		stored.CurrentStock = after
	}

	m.store.products[product.ID] = &stored
	*product = stored
	return movement, nil
}

func (m *mockProductRepository) SoftDelete(ctx context.Context, userID, id uuid.UUID) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	p, ok := m.store.live(userID, id)
	if !ok {
		return repository.ErrProductNotFound
	}
	p.IsDeleted = true
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	p, ok := m.store.live(userID, id)
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	c := *p
	return &c, nil
}

func (m *mockProductRepository) FindByBarcode(ctx context.Context, userID uuid.UUID, barcode string) (*domain.Product, error) {
	matches := m.list(userID, func(p *domain.Product) bool {
		return p.Barcode != nil && *p.Barcode == barcode
	})
	if len(matches) == 0 {
		return nil, repository.ErrProductNotFound
	}
	return matches[0], nil
}

func (m *mockProductRepository) List(ctx context.Context, userID uuid.UUID, search string) ([]*domain.Product, error) {
	search = strings.ToLower(search)
	return m.list(userID, func(p *domain.Product) bool {
		return search == "" || strings.Contains(strings.ToLower(p.Name), search)
	}), nil
}

func (m *mockProductRepository) ListLowStock(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	return m.list(userID, func(p *domain.Product) bool { return p.IsLowStock() }), nil
}

func (m *mockProductRepository) BarcodeExists(ctx context.Context, userID uuid.UUID, barcode string, excludeID *uuid.UUID) (bool, error) {
	matches := m.list(userID, func(p *domain.Product) bool {
		return p.Barcode != nil && *p.Barcode == barcode && (excludeID == nil || p.ID != *excludeID)
	})
	return len(matches) > 0, nil
}

func (m *mockProductRepository) list(userID uuid.UUID, keep func(*domain.Product) bool) []*domain.Product {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	out := []*domain.Product{}
	for _, p := range m.store.products {
		if p.UserID == userID && !p.IsDeleted && keep(p) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type mockMovementRepository struct {
	store *mockStore
}

func (m *mockMovementRepository) Apply(ctx context.Context, userID, productID uuid.UUID, build repository.LedgerFunc) (*domain.StockMovement, *domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	p, ok := m.store.live(userID, productID)
	if !ok {
		return nil, nil, repository.ErrProductNotFound
	}
	locked := *p
	movement, err := build(&locked)
	if err != nil {
		return nil, nil, err
	}
	if m.store.failMovements != nil {
		return nil, nil, m.store.failMovements
	}

	after := movement.Direction.Apply(p.CurrentStock, movement.Quantity)
	if after.IsNegative() {
		return nil, nil, repository.ErrNegativeStock
	}
	movement.ProductID = productID
	movement.StockBefore = p.CurrentStock
	movement.StockAfter = after
	stored := *movement
	m.store.movements = append(m.store.movements, &stored)

	p.CurrentStock = after
	updated := *p
	return movement, &updated, nil
}

func (m *mockMovementRepository) List(ctx context.Context, userID uuid.UUID, filter repository.MovementFilter) ([]*domain.MovementView, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	views := []*domain.MovementView{}
	for i := len(m.store.movements) - 1; i >= 0; i-- {
		mv := m.store.movements[i]
		p := m.store.products[mv.ProductID]
		if p == nil || p.UserID != userID {
			continue
		}
		if filter.SalesOnly && !mv.IsSale() {
			continue
		}
		if filter.Since != nil && mv.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !mv.CreatedAt.Before(*filter.Until) {
			continue
		}
		views = append(views, &domain.MovementView{
			StockMovement: *mv,
			ProductName:   p.Name,
			ProductUnit:   string(p.Unit),
			Category:      p.Category,
			Supplier:      p.Supplier,
			PurchasePrice: p.PurchasePrice,
			SellingPrice:  p.SellingPrice,
		})
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(views) {
			return []*domain.MovementView{}, nil
		}
		views = views[filter.Offset:]
	}
	if filter.Limit > 0 && len(views) > filter.Limit {
		views = views[:filter.Limit]
	}
	return views, nil
}

func (m *mockMovementRepository) ListByProduct(ctx context.Context, userID, productID uuid.UUID) ([]*domain.StockMovement, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	out := []*domain.StockMovement{}
	for i := len(m.store.movements) - 1; i >= 0; i-- {
		if mv := m.store.movements[i]; mv.ProductID == productID {
			c := *mv
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockMovementRepository) SumDeltas(ctx context.Context, userID, productID uuid.UUID) (decimal.Decimal, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	total := decimal.Zero
	for _, mv := range m.store.movements {
		if mv.ProductID == productID {
			total = total.Add(mv.Delta())
		}
	}
	return total, nil
}

type mockAlertRepository struct {
	alerts map[uuid.UUID]*domain.Alert
	order  []uuid.UUID
}

func newMockAlertRepository() *mockAlertRepository {
	return &mockAlertRepository{alerts: make(map[uuid.UUID]*domain.Alert)}
}

func (m *mockAlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	m.alerts[alert.ID] = alert
	m.order = append(m.order, alert.ID)
	return nil
}

func (m *mockAlertRepository) CreateBatch(ctx context.Context, alerts []*domain.Alert) error {
	for _, a := range alerts {
		if err := m.Create(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockAlertRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, error) {
	out := []*domain.Alert{}
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		if a := m.alerts[m.order[i]]; a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAlertRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	a, ok := m.alerts[id]
	if !ok {
		return nil, repository.ErrAlertNotFound
	}
	return a, nil
}

func (m *mockAlertRepository) MarkRead(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	a, ok := m.alerts[id]
	if !ok {
		return nil, repository.ErrAlertNotFound
	}
	a.IsRead = true
	return a, nil
}

type mockAuditRepository struct {
	logs       []*domain.AuditLogView
	lastFilter repository.AuditFilter
}

func (m *mockAuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	m.logs = append(m.logs, &domain.AuditLogView{AuditLog: *entry})
	return nil
}

func (m *mockAuditRepository) List(ctx context.Context, userID uuid.UUID, filter repository.AuditFilter) ([]*domain.AuditLogView, int, error) {
	m.lastFilter = filter
	matching := []*domain.AuditLogView{}
	for _, l := range m.logs {
		if l.UserID == userID {
			matching = append(matching, l)
		}
	}
	total := len(matching)
	if filter.Offset >= total {
		return []*domain.AuditLogView{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matching[filter.Offset:end], total, nil
}

type mockReportRepository struct {
	mu        sync.Mutex
	calls     map[string]int
	inventory *repository.InventoryTotals
	sales     *repository.SalesTotals
	daily     map[string]decimal.Decimal
	summary   *domain.MovementSummary
	count     int
	products  []*domain.ProductSales
	lastFrom  time.Time
	lastTo    time.Time
}

func newMockReportRepository() *mockReportRepository {
	return &mockReportRepository{
		calls:     make(map[string]int),
		inventory: &repository.InventoryTotals{TotalStockValue: decimal.Zero},
		sales:     &repository.SalesTotals{Amount: decimal.Zero},
		daily:     make(map[string]decimal.Decimal),
		summary:   &domain.MovementSummary{},
	}
}

func (m *mockReportRepository) called(name string) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

func (m *mockReportRepository) InventoryTotals(ctx context.Context, userID uuid.UUID) (*repository.InventoryTotals, error) {
	m.called("inventory")
	return m.inventory, nil
}

func (m *mockReportRepository) SalesTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) (*repository.SalesTotals, error) {
	m.called("sales")
	m.mu.Lock()
	m.lastFrom, m.lastTo = from, to
	m.mu.Unlock()
	return m.sales, nil
}

func (m *mockReportRepository) DailySales(ctx context.Context, userID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error) {
	m.called("daily")
	m.mu.Lock()
	m.lastFrom, m.lastTo = from, to
	m.mu.Unlock()
	return m.daily, nil
}

func (m *mockReportRepository) MovementSummary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*domain.MovementSummary, int, error) {
	m.called("summary")
	return m.summary, m.count, nil
}

func (m *mockReportRepository) ProductSales(ctx context.Context, userID uuid.UUID, from time.Time) ([]*domain.ProductSales, error) {
	m.called("products")
	m.mu.Lock()
	m.lastFrom = from
	m.mu.Unlock()
	return m.products, nil
}

type mockBackupRepository struct {
	products      []*domain.Product
	restored      []*domain.Product
	restoredUsers []*backup.UserRecord
	lastOpts      backup.RestoreOptions
	lastPage      backup.Page
}

func (m *mockBackupRepository) Count(ctx context.Context, kind backup.Kind) (int, error) {
	if kind == backup.KindProduct {
		return len(m.products), nil
	}
	return 0, nil
}

func (m *mockBackupRepository) Users(ctx context.Context, page backup.Page) ([]*backup.UserRecord, error) {
	m.lastPage = page
	return []*backup.UserRecord{}, nil
}

func (m *mockBackupRepository) Products(ctx context.Context, page backup.Page) ([]*domain.Product, error) {
	m.lastPage = page
	start := page.Offset()
	if start >= len(m.products) {
		return []*domain.Product{}, nil
	}
	end := start + page.Size
	if end > len(m.products) {
		end = len(m.products)
	}
	return m.products[start:end], nil
}

func (m *mockBackupRepository) Movements(ctx context.Context, page backup.Page) ([]*domain.StockMovement, error) {
	m.lastPage = page
	return []*domain.StockMovement{}, nil
}

func (m *mockBackupRepository) Alerts(ctx context.Context, page backup.Page) ([]*domain.Alert, error) {
	m.lastPage = page
	return []*domain.Alert{}, nil
}

func (m *mockBackupRepository) AuditLogs(ctx context.Context, page backup.Page) ([]*domain.AuditLog, error) {
	m.lastPage = page
	return []*domain.AuditLog{}, nil
}

func (m *mockBackupRepository) RestoreUsers(ctx context.Context, rows []*backup.UserRecord, opts backup.RestoreOptions) (int, error) {
	m.restoredUsers = rows
	m.lastOpts = opts
	return len(rows), nil
}

func (m *mockBackupRepository) RestoreProducts(ctx context.Context, rows []*domain.Product, opts backup.RestoreOptions) (int, error) {
	m.restored = rows
	m.lastOpts = opts
	return len(rows), nil
}

func (m *mockBackupRepository) RestoreMovements(ctx context.Context, rows []*domain.StockMovement, opts backup.RestoreOptions) (int, error) {
	return len(rows), nil
}

func (m *mockBackupRepository) RestoreAlerts(ctx context.Context, rows []*domain.Alert, opts backup.RestoreOptions) (int, error) {
	return len(rows), nil
}

func (m *mockBackupRepository) RestoreAuditLogs(ctx context.Context, rows []*domain.AuditLog, opts backup.RestoreOptions) (int, error) {
	return len(rows), nil
}

// recordingRecorder keeps audit entries in memory.
type recordingRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingRecorder) Record(ctx context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingRecorder) Entries() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

// recordingPublisher counts published topics.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []eventbus.Topic
}

func (p *recordingPublisher) Publish(topic eventbus.Topic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

func (p *recordingPublisher) Count(topic eventbus.Topic) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string {
	return &s
}
