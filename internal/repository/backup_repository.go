package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stockledger/internal/backup"
	"stockledger/internal/domain"

	"github.com/google/uuid"
)

// BackupRepository dumps and reloads whole collections across all users.
// Restores insert in one transaction, skip rows that collide with existing
// keys and skip rows whose parent rows do not exist.
type BackupRepository interface {
	Count(ctx context.Context, kind backup.Kind) (int, error)
	Users(ctx context.Context, page backup.Page) ([]*backup.UserRecord, error)
	Products(ctx context.Context, page backup.Page) ([]*domain.Product, error)
	Movements(ctx context.Context, page backup.Page) ([]*domain.StockMovement, error)
	Alerts(ctx context.Context, page backup.Page) ([]*domain.Alert, error)
	AuditLogs(ctx context.Context, page backup.Page) ([]*domain.AuditLog, error)
	RestoreUsers(ctx context.Context, rows []*backup.UserRecord, opts backup.RestoreOptions) (int, error)
	RestoreProducts(ctx context.Context, rows []*domain.Product, opts backup.RestoreOptions) (int, error)
	RestoreMovements(ctx context.Context, rows []*domain.StockMovement, opts backup.RestoreOptions) (int, error)
	RestoreAlerts(ctx context.Context, rows []*domain.Alert, opts backup.RestoreOptions) (int, error)
	RestoreAuditLogs(ctx context.Context, rows []*domain.AuditLog, opts backup.RestoreOptions) (int, error)
}

type backupRepository struct {
	db *sql.DB
}

// NewBackupRepository creates a new instance of BackupRepository
func NewBackupRepository(db *sql.DB) BackupRepository {
	return &backupRepository{db: db}
}

var backupTables = map[backup.Kind]string{
	backup.KindUser:          "users",
	backup.KindProduct:       "products",
	backup.KindStockMovement: "stock_movements",
	backup.KindAlert:         "alerts",
	backup.KindAuditLog:      "audit_logs",
}

func (r *backupRepository) Count(ctx context.Context, kind backup.Kind) (int, error) {
	table, ok := backupTables[kind]
	if !ok {
		return 0, fmt.Errorf("unsupported backup kind %q", kind)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

func (r *backupRepository) page(ctx context.Context, columns, table string, page backup.Page) (*sql.Rows, error) {
	query := `SELECT ` + columns + ` FROM ` + table + ` ORDER BY created_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to dump %s: %w", table, err)
	}
	return rows, nil
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup rows: %w", err)
	}
	return out, nil
}

func (r *backupRepository) Users(ctx context.Context, page backup.Page) ([]*backup.UserRecord, error) {
	rows, err := r.page(ctx, userColumns, "users", page)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (*backup.UserRecord, error) {
		u := &backup.UserRecord{}
		err := row.Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
		return u, err
	})
}

func (r *backupRepository) Products(ctx context.Context, page backup.Page) ([]*domain.Product, error) {
	rows, err := r.page(ctx, productColumns, "products", page)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProduct)
}

func (r *backupRepository) Movements(ctx context.Context, page backup.Page) ([]*domain.StockMovement, error) {
	rows, err := r.page(ctx, movementColumns, "stock_movements", page)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (*domain.StockMovement, error) {
		return scanMovement(row)
	})
}

func (r *backupRepository) Alerts(ctx context.Context, page backup.Page) ([]*domain.Alert, error) {
	rows, err := r.page(ctx, alertColumns, "alerts", page)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAlert)
}

func (r *backupRepository) AuditLogs(ctx context.Context, page backup.Page) ([]*domain.AuditLog, error) {
	rows, err := r.page(ctx, auditColumns, "audit_logs", page)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (*domain.AuditLog, error) {
		entry := &domain.AuditLog{}
		var details []byte
		err := row.Scan(&entry.ID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.UserID, &details, &entry.CreatedAt)
		if len(details) > 0 {
			entry.Details = details
		}
		return entry, err
	})
}

// restore runs insert once per row inside a transaction and sums affected rows.
func (r *backupRepository) restore(ctx context.Context, before string, n int, insert func(tx *sql.Tx, i int) (sql.Result, error)) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if before != "" {
		if _, err := tx.ExecContext(ctx, before); err != nil {
			return 0, fmt.Errorf("failed to prepare restore: %w", err)
		}
	}

	restored := 0
	for i := 0; i < n; i++ {
		result, err := insert(tx, i)
		if err != nil {
			return 0, fmt.Errorf("failed to restore row %d: %w", i+1, err)
		}
		if result == nil {
			continue
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		restored += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit restore: %w", err)
	}
	return restored, nil
}

func restoredID(id uuid.UUID, opts backup.RestoreOptions) uuid.UUID {
	if opts.KeepIDs && id != uuid.Nil {
		return id
	}
	return uuid.New()
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func (r *backupRepository) RestoreUsers(ctx context.Context, rows []*backup.UserRecord, opts backup.RestoreOptions) (int, error) {
	query := `
		INSERT INTO users (id, username, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	return r.restore(ctx, "", len(rows), func(tx *sql.Tx, i int) (sql.Result, error) {
		u := rows[i]
		if u.Username == "" || u.PasswordHash == "" {
			return nil, nil
		}
		return tx.ExecContext(ctx, query,
			restoredID(u.ID, opts), u.Username, u.Name, u.PasswordHash,
			timestampOrNow(u.CreatedAt), timestampOrNow(u.UpdatedAt))
	})
}

// RestoreProducts soft-deletes every live product before loading the backup.
// With KeepIDs, a backed up product that still exists is revived in place.
func (r *backupRepository) RestoreProducts(ctx context.Context, rows []*domain.Product, opts backup.RestoreOptions) (int, error) {
	conflict := `ON CONFLICT DO NOTHING`
	if opts.KeepIDs {
		conflict = `ON CONFLICT (id) DO UPDATE SET is_deleted = EXCLUDED.is_deleted`
	}

	query := `
		INSERT INTO products (id, name, barcode, category, purchase_price, selling_price, current_stock,
			minimum_stock, unit, description, supplier, user_id, is_deleted, created_at, updated_at)
		SELECT $1::uuid, $2::varchar, $3::varchar, $4::varchar, $5::numeric, $6::numeric, $7::numeric,
			$8::numeric, $9::varchar, $10::text, $11::varchar, $12::uuid, $13::boolean, $14::timestamptz, $15::timestamptz
		WHERE EXISTS (SELECT 1 FROM users WHERE id = $12)
		` + conflict

	before := `UPDATE products SET is_deleted = TRUE WHERE NOT is_deleted`

	return r.restore(ctx, before, len(rows), func(tx *sql.Tx, i int) (sql.Result, error) {
		p := rows[i]
		if p.Name == "" || p.CurrentStock.IsNegative() || p.MinimumStock.IsNegative() {
			return nil, nil
		}
		return tx.ExecContext(ctx, query,
			restoredID(p.ID, opts), p.Name, p.Barcode, p.Category, p.PurchasePrice, p.SellingPrice,
			p.CurrentStock, p.MinimumStock, p.Unit, p.Description, p.Supplier, p.UserID, p.IsDeleted,
			timestampOrNow(p.CreatedAt), timestampOrNow(p.UpdatedAt))
	})
}

// RestoreMovements accepts legacy direction names and drops rows that could
// never have been written by the ledger.
func (r *backupRepository) RestoreMovements(ctx context.Context, rows []*domain.StockMovement, opts backup.RestoreOptions) (int, error) {
	query := `
		INSERT INTO stock_movements (` + movementColumns + `)
		SELECT $1::uuid, $2::uuid, $3::varchar, $4::varchar, $5::numeric, $6::numeric, $7::numeric,
			$8::text, $9::numeric, $10::numeric, $11::uuid, $12::timestamptz
		WHERE EXISTS (SELECT 1 FROM products WHERE id = $2)
		  AND ($11::uuid IS NULL OR EXISTS (SELECT 1 FROM users WHERE id = $11))
		ON CONFLICT DO NOTHING
	`
	return r.restore(ctx, "", len(rows), func(tx *sql.Tx, i int) (sql.Result, error) {
		m := rows[i]
		direction, ok := domain.ParseDirection(string(m.Direction))
		if !ok || !m.Quantity.IsPositive() {
			return nil, nil
		}
		return tx.ExecContext(ctx, query,
			restoredID(m.ID, opts), m.ProductID, direction, m.Reason, m.Quantity, m.UnitPrice, m.TotalPrice,
			m.Description, m.StockBefore, m.StockAfter,
			uuid.NullUUID{UUID: m.CreatedBy, Valid: m.CreatedBy != uuid.Nil},
			timestampOrNow(m.CreatedAt))
	})
}

func (r *backupRepository) RestoreAlerts(ctx context.Context, rows []*domain.Alert, opts backup.RestoreOptions) (int, error) {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::boolean, $6::timestamptz
		WHERE EXISTS (SELECT 1 FROM users WHERE id = $2)
		  AND ($3::uuid IS NULL OR EXISTS (SELECT 1 FROM products WHERE id = $3))
		ON CONFLICT DO NOTHING
	`
	return r.restore(ctx, "", len(rows), func(tx *sql.Tx, i int) (sql.Result, error) {
		a := rows[i]
		var productID uuid.NullUUID
		if a.ProductID != nil {
			productID = uuid.NullUUID{UUID: *a.ProductID, Valid: true}
		}
		return tx.ExecContext(ctx, query,
			restoredID(a.ID, opts), a.UserID, productID, a.Message, a.IsRead, timestampOrNow(a.CreatedAt))
	})
}

func (r *backupRepository) RestoreAuditLogs(ctx context.Context, rows []*domain.AuditLog, opts backup.RestoreOptions) (int, error) {
	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		SELECT $1::uuid, $2::varchar, $3::varchar, $4::varchar, $5::uuid, $6::jsonb, $7::timestamptz
		WHERE EXISTS (SELECT 1 FROM users WHERE id = $5)
		ON CONFLICT DO NOTHING
	`
	return r.restore(ctx, "", len(rows), func(tx *sql.Tx, i int) (sql.Result, error) {
		e := rows[i]
		switch e.Action {
		case domain.AuditCreate, domain.AuditUpdate, domain.AuditDelete:
		default:
			return nil, nil
		}
		var details any
		if len(e.Details) > 0 {
			details = []byte(e.Details)
		}
		return tx.ExecContext(ctx, query,
			restoredID(e.ID, opts), e.Action, e.EntityType, e.EntityID, e.UserID, details, timestampOrNow(e.CreatedAt))
	})
}
