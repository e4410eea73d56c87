package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockledger/internal/domain"

	"github.com/google/uuid"
)

// AlertRepository defines the interface for alert data access
type AlertRepository interface {
	Create(ctx context.Context, alert *domain.Alert) error
	CreateBatch(ctx context.Context, alerts []*domain.Alert) error
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Alert, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*domain.Alert, error)
}

type alertRepository struct {
	db *sql.DB
}

// NewAlertRepository creates a new instance of AlertRepository
func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

const alertColumns = `id, user_id, product_id, message, is_read, created_at`

func scanAlert(row rowScanner) (*domain.Alert, error) {
	alert := &domain.Alert{}
	var productID uuid.NullUUID
	if err := row.Scan(&alert.ID, &alert.UserID, &productID, &alert.Message, &alert.IsRead, &alert.CreatedAt); err != nil {
		return nil, err
	}
	if productID.Valid {
		alert.ProductID = &productID.UUID
	}
	return alert, nil
}

func insertAlert(ctx context.Context, db execer, alert *domain.Alert) error {
	var productID uuid.NullUUID
	if alert.ProductID != nil {
		productID = uuid.NullUUID{UUID: *alert.ProductID, Valid: true}
	}

	_, err := db.ExecContext(
		ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		alert.ID,
		alert.UserID,
		productID,
		alert.Message,
		alert.IsRead,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// Create inserts a single alert
func (r *alertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	return insertAlert(ctx, r.db, alert)
}

// CreateBatch inserts all alerts or none
func (r *alertRepository) CreateBatch(ctx context.Context, alerts []*domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, alert := range alerts {
		if err := insertAlert(ctx, tx, alert); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	return nil
}

// ListRecent returns the newest alerts of a user
func (r *alertRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*domain.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}

	return alerts, nil
}

// FindByID loads an alert regardless of owner so callers can tell
// missing from forbidden.
func (r *alertRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	alert, err := scanAlert(r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to find alert: %w", err)
	}
	return alert, nil
}

// MarkRead flips the read flag
func (r *alertRepository) MarkRead(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	query := `UPDATE alerts SET is_read = TRUE WHERE id = $1 RETURNING ` + alertColumns

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to mark alert read: %w", err)
	}
	return alert, nil
}
