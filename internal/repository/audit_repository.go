package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stockledger/internal/domain"

	"github.com/google/uuid"
)

// AuditFilter narrows an audit log listing
type AuditFilter struct {
	EntityType string
	Action     domain.AuditAction
	Start      *time.Time
	End        *time.Time
	Limit      int
	Offset     int
}

// AuditRepository stores and lists audit log entries
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	List(ctx context.Context, userID uuid.UUID, filter AuditFilter) ([]*domain.AuditLogView, int, error)
}

type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new instance of AuditRepository
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

const auditColumns = `id, action, entity_type, entity_id, user_id, details, created_at`

func insertAuditLog(ctx context.Context, db execer, entry *domain.AuditLog) error {
	var details any
	if len(entry.Details) > 0 {
		details = []byte(entry.Details)
	}

	_, err := db.ExecContext(
		ctx,
		`INSERT INTO audit_logs (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.UserID,
		details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// Create appends one audit log entry
func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return insertAuditLog(ctx, r.db, entry)
}

// List returns a page of the user's audit entries newest first together
// with the total number of matching entries.
func (r *auditRepository) List(ctx context.Context, userID uuid.UUID, filter AuditFilter) ([]*domain.AuditLogView, int, error) {
	args := []any{userID}
	where := "WHERE a.user_id = $1"

	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		where += fmt.Sprintf(" AND a.entity_type = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where += fmt.Sprintf(" AND a.action = $%d", len(args))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		where += fmt.Sprintf(" AND a.created_at >= $%d", len(args))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		where += fmt.Sprintf(" AND a.created_at < $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs a `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query := `
		SELECT a.id, a.action, a.entity_type, a.entity_id, a.user_id, a.details, a.created_at,
		       u.name, u.username
		FROM audit_logs a
		JOIN users u ON u.id = a.user_id
		` + where + `
		ORDER BY a.created_at DESC, a.id`

	pageArgs := append([]any{}, args...)
	if filter.Limit > 0 {
		pageArgs = append(pageArgs, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(pageArgs))
	}
	if filter.Offset > 0 {
		pageArgs = append(pageArgs, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(pageArgs))
	}

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []*domain.AuditLogView{}
	for rows.Next() {
		view := &domain.AuditLogView{}
		var details []byte
		err := rows.Scan(
			&view.ID,
			&view.Action,
			&view.EntityType,
			&view.EntityID,
			&view.UserID,
			&details,
			&view.CreatedAt,
			&view.User.Name,
			&view.User.Username,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(details) > 0 {
			view.Details = details
		}
		logs = append(logs, view)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return logs, total, nil
}
