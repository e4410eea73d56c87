// Package backup defines the entity kinds that can be dumped and restored and
// the gzip JSON format they travel in.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// Kind is a collection that can be backed up. The set is closed.
type Kind string

const (
	KindUser          Kind = "user"
	KindProduct       Kind = "product"
	KindStockMovement Kind = "stockMovement"
	KindAlert         Kind = "alert"
	KindAuditLog      Kind = "auditLog"
)

var kinds = []Kind{KindUser, KindProduct, KindStockMovement, KindAlert, KindAuditLog}

// Kinds lists every supported kind in restore order: parents before children.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// ParseKind resolves a kind name.
func ParseKind(raw string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == raw {
			return k, nil
		}
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return "", fmt.Errorf("unknown backup type %q, expected one of %s", raw, strings.Join(names, ", "))
}

// Page selects a 1-based page of a collection.
type Page struct {
	Number int
	Size   int
}

// Offset is the number of rows before the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// TotalPages is ceil(total / size).
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// RestoreOptions controls how restored rows are keyed.
type RestoreOptions struct {
	// KeepIDs preserves the backed up identifiers instead of issuing new ones.
	KeepIDs bool
}

// UserRecord is a user including its password hash, which the public user
// representation never carries.
type UserRecord struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Encode writes v as gzip-compressed JSON.
func Encode(w io.Writer, v any) error {
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush backup: %w", err)
	}
	return nil
}

// MaxDecodedBytes caps how much JSON one restore may inflate to.
const MaxDecodedBytes int64 = 256 << 20

// ErrTooLarge is returned when a payload inflates past MaxDecodedBytes.
var ErrTooLarge = errors.New("backup payload too large")

// Decode reads a gzip-compressed JSON array of T.
func Decode[T any](r io.Reader) ([]T, error) {
	return decode[T](r, MaxDecodedBytes)
}

func decode[T any](r io.Reader, limit int64) ([]T, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid gzip payload: %w", err)
	}
	defer zr.Close()

	lr := &io.LimitedReader{R: zr, N: limit + 1}
	var rows []T
	err = json.NewDecoder(lr).Decode(&rows)
	if lr.N == 0 {
		return nil, fmt.Errorf("%w: more than %d bytes once decompressed", ErrTooLarge, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid backup payload, expected a JSON array: %w", err)
	}
	return rows, nil
}
