package service

import (
	"context"
	"fmt"
	"io"

	"stockledger/internal/backup"
	"stockledger/internal/domain"
	"stockledger/internal/eventbus"
	"stockledger/internal/repository"

	"go.uber.org/zap"
)

// DumpInfo describes the page written by Dump.
type DumpInfo struct {
	Kind       backup.Kind
	Page       int
	Total      int
	TotalPages int
}

// BackupService dumps and restores whole collections across all users.
type BackupService interface {
	Dump(ctx context.Context, kind backup.Kind, page int, w io.Writer) (*DumpInfo, error)
	Count(ctx context.Context, kind backup.Kind) (*DumpInfo, error)
	Restore(ctx context.Context, kind backup.Kind, r io.Reader, opts backup.RestoreOptions) (int, error)
}

type backupService struct {
	repo      repository.BackupRepository
	pageSize  int
	publisher eventbus.Publisher
	logger    *zap.Logger
}

// NewBackupService creates a new instance of BackupService
func NewBackupService(repo repository.BackupRepository, pageSize int, publisher eventbus.Publisher, logger *zap.Logger) BackupService {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &backupService{
		repo:      repo,
		pageSize:  pageSize,
		publisher: publisher,
		logger:    logger,
	}
}

// Count reports the size of a collection without dumping it.
func (s *backupService) Count(ctx context.Context, kind backup.Kind) (*DumpInfo, error) {
	total, err := s.repo.Count(ctx, kind)
	if err != nil {
		return nil, err
	}
	return &DumpInfo{
		Kind:       kind,
		Page:       1,
		Total:      total,
		TotalPages: backup.TotalPages(total, s.pageSize),
	}, nil
}

// Dump writes one page of the collection to w as gzip JSON.
func (s *backupService) Dump(ctx context.Context, kind backup.Kind, page int, w io.Writer) (*DumpInfo, error) {
	if page < 1 {
		page = 1
	}
	info, err := s.Count(ctx, kind)
	if err != nil {
		return nil, err
	}
	info.Page = page

	p := backup.Page{Number: page, Size: s.pageSize}
	var rows any
	switch kind {
	case backup.KindUser:
		rows, err = s.repo.Users(ctx, p)
	case backup.KindProduct:
		rows, err = s.repo.Products(ctx, p)
	case backup.KindStockMovement:
		rows, err = s.repo.Movements(ctx, p)
	case backup.KindAlert:
		rows, err = s.repo.Alerts(ctx, p)
	case backup.KindAuditLog:
		rows, err = s.repo.AuditLogs(ctx, p)
	default:
		return nil, fmt.Errorf("unsupported backup kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	if err := backup.Encode(w, rows); err != nil {
		return nil, err
	}

	s.logger.Info("Backup page written",
		zap.String("kind", string(kind)),
		zap.Int("page", page),
		zap.Int("total", info.Total),
	)
	return info, nil
}

// Restore loads a gzip JSON array of kind and returns the rows inserted.
func (s *backupService) Restore(ctx context.Context, kind backup.Kind, r io.Reader, opts backup.RestoreOptions) (int, error) {
	var (
		count int
		err   error
	)
	switch kind {
	case backup.KindUser:
		count, err = restoreWith(ctx, r, opts, s.repo.RestoreUsers)
	case backup.KindProduct:
		count, err = restoreWith(ctx, r, opts, s.repo.RestoreProducts)
	case backup.KindStockMovement:
		count, err = restoreWith(ctx, r, opts, s.repo.RestoreMovements)
	case backup.KindAlert:
		count, err = restoreWith(ctx, r, opts, s.repo.RestoreAlerts)
	case backup.KindAuditLog:
		count, err = restoreWith(ctx, r, opts, s.repo.RestoreAuditLogs)
	default:
		return 0, fmt.Errorf("unsupported backup kind %q", kind)
	}
	if err != nil {
		return 0, err
	}

	s.logger.Info("Backup restored",
		zap.String("kind", string(kind)),
		zap.Int("count", count),
		zap.Bool("keep_ids", opts.KeepIDs),
	)
	s.publisher.Publish(eventbus.ProductUpdated)

	return count, nil
}

func restoreWith[T any](
	ctx context.Context,
	r io.Reader,
	opts backup.RestoreOptions,
	restore func(context.Context, []T, backup.RestoreOptions) (int, error),
) (int, error) {
	rows, err := backup.Decode[T](r)
	if err != nil {
		return 0, domain.Invalid("body", err.Error())
	}
	return restore(ctx, rows, opts)
}
