package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/backup"
	"stockledger/internal/domain"
	"stockledger/internal/repository"

	"github.com/google/uuid"
)

const (
	DefaultAuditPageSize = 10
	MaxAuditPageSize     = 100
)

// AuditQuery filters the audit log. StartDate and EndDate are calendar days;
// both are inclusive.
type AuditQuery struct {
	EntityType string
	Action     string
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	Limit      int
}

// AuditPage is one page of the caller's audit log
type AuditPage struct {
	Logs       []*domain.AuditLogView `json:"logs"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	TotalPages int                    `json:"totalPages"`
}

// AuditService lists audit entries. Writing goes through the recorder.
type AuditService interface {
	List(ctx context.Context, userID uuid.UUID, q AuditQuery) (*AuditPage, error)
}

type auditService struct {
	logs repository.AuditRepository
}

// NewAuditService creates a new instance of AuditService
func NewAuditService(logs repository.AuditRepository) AuditService {
	return &auditService{logs: logs}
}

func (s *auditService) List(ctx context.Context, userID uuid.UUID, q AuditQuery) (*AuditPage, error) {
	page := backup.Page{Number: q.Page, Size: q.Limit}
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Size < 1 {
		page.Size = DefaultAuditPageSize
	}
	if page.Size > MaxAuditPageSize {
		page.Size = MaxAuditPageSize
	}

	filter := repository.AuditFilter{
		EntityType: strings.TrimSpace(q.EntityType),
		Limit:      page.Size,
		Offset:     page.Offset(),
	}
	if action := strings.ToUpper(strings.TrimSpace(q.Action)); action != "" {
		switch domain.AuditAction(action) {
		case domain.AuditCreate, domain.AuditUpdate, domain.AuditDelete:
			filter.Action = domain.AuditAction(action)
		default:
			return nil, domain.Invalid("action", "must be CREATE, UPDATE or DELETE")
		}
	}
	if q.StartDate != nil {
		start := truncateDay(*q.StartDate)
		filter.Start = &start
	}
	if q.EndDate != nil {
		end := truncateDay(*q.EndDate).AddDate(0, 0, 1)
		filter.End = &end
	}
	if filter.Start != nil && filter.End != nil && !filter.Start.Before(*filter.End) {
		return nil, domain.Invalid("endDate", "must not be before startDate")
	}

	logs, total, err := s.logs.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return &AuditPage{
		Logs:       logs,
		Total:      total,
		Page:       page.Number,
		TotalPages: backup.TotalPages(total, page.Size),
	}, nil
}

// truncateDay returns midnight UTC of t's calendar day.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
