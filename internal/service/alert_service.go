package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/audit"
	"stockledger/internal/domain"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecentAlertLimit caps the alert listing.
const RecentAlertLimit = 50

// AlertService materializes low-stock alerts and manages their read flag
type AlertService interface {
	EvaluateLowStock(ctx context.Context, userID uuid.UUID) ([]*domain.Alert, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Alert, error)
	Create(ctx context.Context, userID uuid.UUID, message string, productID *uuid.UUID) (*domain.Alert, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) (*domain.Alert, error)
}

type alertService struct {
	alerts   repository.AlertRepository
	products repository.ProductRepository
	recorder AuditRecorder
	logger   *zap.Logger
}

// NewAlertService creates a new instance of AlertService
func NewAlertService(
	alerts repository.AlertRepository,
	products repository.ProductRepository,
	recorder AuditRecorder,
	logger *zap.Logger,
) AlertService {
	return &alertService{
		alerts:   alerts,
		products: products,
		recorder: recorderOrNoop(recorder),
		logger:   logger,
	}
}

// LowStockMessage is the alert text for a product at or below its threshold.
func LowStockMessage(p *domain.Product) string {
	return fmt.Sprintf("%s ürününün stok seviyesi minimum seviyenin altına düştü. Mevcut stok: %s, Minimum seviye: %s",
		p.Name, p.CurrentStock.String(), p.MinimumStock.String())
}

// EvaluateLowStock creates one alert per low-stock product. Existing unread
// alerts for the same product are not consulted.
func (s *alertService) EvaluateLowStock(ctx context.Context, userID uuid.UUID) ([]*domain.Alert, error) {
	products, err := s.products.ListLowStock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan low stock products: %w", err)
	}

	now := time.Now().UTC()
	alerts := make([]*domain.Alert, 0, len(products))
	for _, p := range products {
		productID := p.ID
		alerts = append(alerts, &domain.Alert{
			ID:        uuid.New(),
			UserID:    userID,
			ProductID: &productID,
			Message:   LowStockMessage(p),
			CreatedAt: now,
		})
	}

	if len(alerts) > 0 {
		if err := s.alerts.CreateBatch(ctx, alerts); err != nil {
			return nil, fmt.Errorf("failed to store alerts: %w", err)
		}
	}

	s.logger.Info("Low stock evaluated",
		zap.String("user_id", userID.String()),
		zap.Int("alerts", len(alerts)),
	)

	return alerts, nil
}

func (s *alertService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Alert, error) {
	alerts, err := s.alerts.ListRecent(ctx, userID, RecentAlertLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Create stores a manual alert. A referenced product must belong to the caller.
func (s *alertService) Create(ctx context.Context, userID uuid.UUID, message string, productID *uuid.UUID) (*domain.Alert, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.Invalid("message", "message is required")
	}
	if productID != nil {
		if _, err := s.products.FindByID(ctx, userID, *productID); err != nil {
			return nil, err
		}
	}

	alert := &domain.Alert{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditCreate,
		EntityType: domain.EntityAlert,
		EntityID:   alert.ID.String(),
		UserID:     userID,
		Details:    alert,
	})

	return alert, nil
}

// MarkRead flags an alert as read. Alerts of other users are Forbidden.
func (s *alertService) MarkRead(ctx context.Context, userID, id uuid.UUID) (*domain.Alert, error) {
	alert, err := s.alerts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.UserID != userID {
		return nil, fmt.Errorf("alert belongs to another user: %w", domain.ErrForbidden)
	}
	if alert.IsRead {
		return alert, nil
	}
	return s.alerts.MarkRead(ctx, id)
}
