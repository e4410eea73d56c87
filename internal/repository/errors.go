package repository

import (
	"errors"
	"fmt"

	"stockledger/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUserNotFound     = fmt.Errorf("user %w", domain.ErrNotFound)
	ErrUsernameTaken    = fmt.Errorf("username already in use: %w", domain.ErrConflict)
	ErrProductNotFound  = fmt.Errorf("product %w", domain.ErrNotFound)
	ErrDuplicateBarcode = fmt.Errorf("a product with this barcode already exists: %w", domain.ErrConflict)
	ErrAlertNotFound    = fmt.Errorf("alert %w", domain.ErrNotFound)
	ErrNegativeStock    = fmt.Errorf("movement would make stock negative: %w", domain.ErrInsufficientStock)
)

const uniqueViolation = "23505"

// constraintViolated reports whether err is a unique violation on constraint.
// An empty constraint matches any unique violation.
func constraintViolated(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
