package service

import (
	"context"

	"stockledger/internal/audit"
)

// AuditRecorder receives best-effort audit entries. Implementations must not
// block the caller or report failures back to it.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, audit.Entry) {}

func recorderOrNoop(r AuditRecorder) AuditRecorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}
