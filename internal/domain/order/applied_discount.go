package order

import (
	"strings"
	"time"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
)

// AppliedDiscountParams holds the fields of an AppliedDiscount.
type AppliedDiscountParams struct {
	ID         string
	OrderID    string
	DiscountID string
	Type       discount.Type
	Value      int64
	Amount     money.Minor
	CreatedAt  time.Time
}

// AppliedDiscount records a discount attached to an order. Amount is frozen
// at the moment of application and is never recomputed.
type AppliedDiscount struct {
	id         string
	orderID    string
	discountID string
	typ        discount.Type
	value      int64
	amount     money.Minor
	createdAt  time.Time
}

// NewAppliedDiscount validates p. CreatedAt defaults to the current time.
func NewAppliedDiscount(p AppliedDiscountParams) (AppliedDiscount, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return ReconstituteAppliedDiscount(p)
}

// ReconstituteAppliedDiscount rebuilds a stored AppliedDiscount, keeping its
// stored CreatedAt.
func ReconstituteAppliedDiscount(p AppliedDiscountParams) (AppliedDiscount, error) {
	d := AppliedDiscount{
		id:         p.ID,
		orderID:    p.OrderID,
		discountID: p.DiscountID,
		typ:        p.Type,
		value:      p.Value,
		amount:     p.Amount,
		createdAt:  p.CreatedAt,
	}
	if err := d.validate(); err != nil {
		return AppliedDiscount{}, err
	}
	return d, nil
}

func (d AppliedDiscount) validate() error {
	if strings.TrimSpace(d.id) == "" {
		return invalid("discount.id", "is required")
	}
	if strings.TrimSpace(d.discountID) == "" {
		return invalid("discount.discountId", "is required")
	}
	if err := discount.CheckValue(d.typ, d.value); err != nil {
		return invalid("discount.value", err.Error())
	}
	if d.amount < 0 {
		return invalid("discount.amount", "must not be negative")
	}
	return nil
}

// ID returns the id of this application.
func (d AppliedDiscount) ID() string { return d.id }

// OrderID returns the order the discount was applied to.
func (d AppliedDiscount) OrderID() string { return d.orderID }

// DiscountID returns the catalog discount that was applied.
func (d AppliedDiscount) DiscountID() string { return d.discountID }

// Type returns the discount type captured at application time.
func (d AppliedDiscount) Type() discount.Type { return d.typ }

// Value returns the percent or fixed minor-unit value captured at application time.
func (d AppliedDiscount) Value() int64 { return d.value }

// Amount returns the frozen discount amount in minor units.
func (d AppliedDiscount) Amount() money.Minor { return d.amount }

// CreatedAt returns when the discount was applied.
func (d AppliedDiscount) CreatedAt() time.Time { return d.createdAt }

// Equal reports whether both values are the same application.
func (d AppliedDiscount) Equal(other AppliedDiscount) bool { return d.id == other.id }
