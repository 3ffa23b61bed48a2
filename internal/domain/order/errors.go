package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors. Every typed error below matches exactly one of them via
// errors.Is, so callers can branch on the kind without a type assertion.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("operation not allowed in current status")

	// ErrDuplicateNumber is returned by Repository.Create when the order
	// number is already taken.
	ErrDuplicateNumber = errors.New("duplicate order number")
)

// ValidationError reports input that violates a field rule or an aggregate
// invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing order, line or applied discount.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError reports a status change the lifecycle forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InvalidStateError reports an edit attempted on an order that is no longer
// PENDING.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: order is %s", e.Op, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }
