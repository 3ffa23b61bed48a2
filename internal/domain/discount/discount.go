package discount

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// Percent takes Value percent of the order subtotal, rounded down to the
	// minor unit.
	Percent Type = "PERCENT"
	// Fixed takes Value minor units off the order.
	Fixed Type = "FIXED"
)

var (
	// ErrNotFound is returned when a discount definition does not exist.
	ErrNotFound = errors.New("discount not found")
	// ErrInactive is returned when a discount definition has been switched off.
	ErrInactive = errors.New("discount is inactive")
	// ErrExpired is returned when a discount definition is past its expiry.
	ErrExpired = errors.New("discount expired")
	// ErrUnknownType is returned for a type other than PERCENT or FIXED.
	ErrUnknownType = errors.New("unknown discount type")
	// ErrInvalidValue is returned when a value is out of range for its type.
	ErrInvalidValue = errors.New("invalid discount value")
)

// Definition is a catalog entry describing a discount a restaurant offers.
type Definition struct {
	ID           string
	RestaurantID string
	Name         string
	Type         Type
	Value        int64
	Active       bool
	ExpiresAt    *time.Time
}

// Repository provides lookup of discount definitions.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Definition, error)
}

// ParseType parses a case-insensitive discount type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case Percent, Fixed:
		return t, nil
	default:
		return "", errors.Wrapf(ErrUnknownType, "%q", s)
	}
}

// CheckValue reports whether value is valid for t: PERCENT accepts 0..100,
// FIXED accepts any non-negative amount.
func CheckValue(t Type, value int64) error {
	switch t {
	case Percent:
		if value < 0 || value > 100 {
			return errors.Wrapf(ErrInvalidValue, "percent value %d must be between 0 and 100", value)
		}
	case Fixed:
		if value < 0 {
			return errors.Wrapf(ErrInvalidValue, "fixed value %d must not be negative", value)
		}
	default:
		return errors.Wrapf(ErrUnknownType, "%q", string(t))
	}
	return nil
}

// Amount computes the discount amount for subtotal. Fixed amounts are
// returned verbatim even when they exceed the subtotal; the order total is
// clamped at zero instead.
func Amount(t Type, value int64, subtotal money.Minor) (money.Minor, error) {
	if err := CheckValue(t, value); err != nil {
		return 0, err
	}
	if t == Percent {
		return money.PercentOf(subtotal, value), nil
	}
	return money.Minor(value), nil
}
