// Package apperr holds the failure taxonomy shared by the ledger and the sale coordinator.
package apperr

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrPartialCommit     = errors.New("partial commit")
	ErrBusy              = errors.New("resource busy, please try again later")
)

func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// FromValidation converts validator failures into ErrInvalidArgument.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return Invalid("%s failed on '%s'", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}

type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PartialCommitError marks a sale whose final state could not be confirmed
// after the sale record was written. It needs reconciliation.
type PartialCommitError struct {
	SaleID string
	Err    error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("sale %s: partial commit: %v", e.SaleID, e.Err)
}

func (e *PartialCommitError) Unwrap() []error { return []error{ErrPartialCommit, e.Err} }
