package allocation

import (
	"errors"
	"fmt"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrStockConflict      = errors.New("insufficient stock")
	ErrAssignmentConflict = errors.New("assignment conflict")
	ErrPersistence        = errors.New("persistence failure")
	ErrInvalidTransition  = errors.New("invalid transition")
)

// ValidationError names the offending field of a caller request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StockShortfallError reports the first product a submission cannot cover.
type StockShortfallError struct {
	ProductID   string
	Requested   int
	Fulfillable int
}

func (e *StockShortfallError) Error() string {
	return fmt.Sprintf("product %s: requested %d, at most %d can be supplied", e.ProductID, e.Requested, e.Fulfillable)
}

func (e *StockShortfallError) Unwrap() error { return ErrStockConflict }

// TransitionError is a unit or line move absent from the allowed table.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func unitTransitionError(from, to repository.UnitStatus) error {
	return &TransitionError{Entity: "unit", From: string(from), To: string(to)}
}

func lineTransitionError(from, to repository.ProcessingStatus) error {
	return &TransitionError{Entity: "order line", From: string(from), To: string(to)}
}
