// Package apperr defines the error kinds the core surfaces to callers.
// Everything here means "retry will not help without changed input"; storage
// failures are wrapped as TransientError to signal the opposite.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
	ErrEmptyCart    = errors.New("cart is empty")
)

// InsufficientStockError is returned by availability checks and reservations.
// It is never partially applied: either every line of a reservation succeeds
// or stock is untouched.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition: %s -> %s", e.From, e.To)
}

// InvariantViolationError is fatal: the enclosing transaction must abort,
// never silently correct the data.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Reason
}

// TransientError wraps lower-level storage failures (connection loss,
// timeout). Callers may retry with the same input.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient storage failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
