package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockledger/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists audit rows.
type Store interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// Entry is one audit record as requested by a business operation.
type Entry struct {
	Action     domain.AuditAction
	EntityType string
	EntityID   string
	UserID     uuid.UUID
	Details    any
}

// WriteError describes an audit write that was dropped.
// It is only ever logged; callers of Record never see it.
type WriteError struct {
	Entry Entry
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("audit %s %s/%s: %v", e.Entry.Action, e.Entry.EntityType, e.Entry.EntityID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Recorder writes audit rows in the background and swallows failures.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Record schedules the entry and returns immediately.
// The write outlives the caller's context cancellation. Entries recorded
// after Close are dropped.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Audit log write dropped",
			zap.Error(&WriteError{Entry: e, Err: errRecorderClosed}))
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		if err := r.write(ctx, e); err != nil {
			r.logger.Warn("Audit log write dropped", zap.Error(err))
		}
	}()
}

// Wait blocks until every scheduled write has finished. Callers that may
// still Record concurrently use Close instead.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Close stops accepting entries and waits for the scheduled writes.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

var errRecorderClosed = errors.New("recorder closed")

func (r *Recorder) write(ctx context.Context, e Entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &WriteError{Entry: e, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var details json.RawMessage
	if e.Details != nil {
		raw, mErr := json.Marshal(e.Details)
		if mErr != nil {
			return &WriteError{Entry: e, Err: mErr}
		}
		details = raw
	}

	row := &domain.AuditLog{
		ID:         uuid.New(),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		UserID:     e.UserID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if sErr := r.store.Create(ctx, row); sErr != nil {
		return &WriteError{Entry: e, Err: sErr}
	}
	return nil
}
