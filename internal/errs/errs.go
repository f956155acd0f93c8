// Package errs defines the error taxonomy shared by the venue engines.
// Business rejections (balance, margin, state) are returned as typed values
// so callers can map them to user-facing responses; integrity violations are
// raised as panics by the owning package.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed caller input (quantity, leverage, stake).
// Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown symbol, fund, strategy or order.
type NotFoundError struct {
	Kind string // "symbol", "fund", "order", "strategy"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InsufficientBalanceError reports a cash debit that would overdraw the
// account. A business rejection, not a system fault.
type InsufficientBalanceError struct {
	UserID string
	Need   float64
	Have   float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %s: need %.2f, have %.2f", e.UserID, e.Need, e.Have)
}

// InsufficientMarginError reports a margin reservation the account cannot
// cover.
type InsufficientMarginError struct {
	UserID string
	Need   float64
	Have   float64
}

func (e *InsufficientMarginError) Error() string {
	return fmt.Sprintf("insufficient margin for user %s: need %.2f, have %.2f", e.UserID, e.Need, e.Have)
}

// InvalidStateError reports an operation attempted on an order outside the
// required status, e.g. closing an already-closed position.
type InvalidStateError struct {
	OrderID string
	Status  string
	Want    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %s is %s, want %s", e.OrderID, e.Status, e.Want)
}

// EngineInitializationError is fatal: the engine refuses to start when its
// catalog cannot load. It propagates to main and halts startup.
type EngineInitializationError struct {
	Cause error
}

func (e *EngineInitializationError) Error() string {
	return fmt.Sprintf("engine initialization failed: %v", e.Cause)
}

func (e *EngineInitializationError) Unwrap() error { return e.Cause }

// IsBusiness reports whether err is an expected business rejection that
// should be surfaced to the caller rather than logged as a fault.
func IsBusiness(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		ib *InsufficientBalanceError
		im *InsufficientMarginError
		is *InvalidStateError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) ||
		errors.As(err, &ib) || errors.As(err, &im) || errors.As(err, &is)
}
