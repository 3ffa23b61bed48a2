package order

import (
	"strings"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
)

// LineParams holds the fields needed to build a Line.
type LineParams struct {
	ID        string
	ItemID    string
	Name      string
	Quantity  int
	UnitPrice money.Minor
}

// Line is one menu item on an order. Name and UnitPrice are snapshots taken
// when the line was created. Lines are values: every change produces a new
// Line.
type Line struct {
	id        string
	itemID    string
	name      string
	quantity  int
	unitPrice money.Minor
}

// NewLine validates p and returns the resulting Line.
func NewLine(p LineParams) (Line, error) {
	l := Line{
		id:        p.ID,
		itemID:    p.ItemID,
		name:      p.Name,
		quantity:  p.Quantity,
		unitPrice: p.UnitPrice,
	}
	if err := l.validate(); err != nil {
		return Line{}, err
	}
	return l, nil
}

func (l Line) validate() error {
	switch {
	case strings.TrimSpace(l.id) == "":
		return invalid("line.id", "is required")
	case strings.TrimSpace(l.itemID) == "":
		return invalid("line.itemId", "is required")
	case strings.TrimSpace(l.name) == "":
		return invalid("line.name", "is required")
	case l.quantity < 1:
		return invalid("line.quantity", "must be at least 1")
	case l.unitPrice < 0:
		return invalid("line.unitPrice", "must not be negative")
	}
	if _, err := l.unitPrice.Times(l.quantity); err != nil {
		return invalid("line.subtotal", err.Error())
	}
	return nil
}

// ID returns the line id.
func (l Line) ID() string { return l.id }

// ItemID returns the menu item the line was ordered from.
func (l Line) ItemID() string { return l.itemID }

// Name returns the item name captured when the line was created.
func (l Line) Name() string { return l.name }

// Quantity returns the number of units ordered.
func (l Line) Quantity() int { return l.quantity }

// UnitPrice returns the unit price captured when the line was created.
func (l Line) UnitPrice() money.Minor { return l.unitPrice }

// Subtotal is quantity x unit price. Validation guarantees the product fits.
func (l Line) Subtotal() money.Minor {
	v, _ := l.unitPrice.Times(l.quantity)
	return v
}

// Discount is reserved for line-level discounts and is always zero.
func (l Line) Discount() money.Minor { return 0 }

// Total is Subtotal minus Discount.
func (l Line) Total() money.Minor { return l.Subtotal() - l.Discount() }

// Equal reports whether both values describe the same line.
func (l Line) Equal(other Line) bool { return l.id == other.id }

// IncreaseQuantity returns a copy with quantity raised by n.
func (l Line) IncreaseQuantity(n int) (Line, error) {
	if n <= 0 {
		return Line{}, invalid("quantity", "increase must be positive")
	}
	return l.UpdateQuantity(l.quantity + n)
}

// DecreaseQuantity returns a copy with quantity lowered by n. The result must
// stay at least 1.
func (l Line) DecreaseQuantity(n int) (Line, error) {
	if n <= 0 {
		return Line{}, invalid("quantity", "decrease must be positive")
	}
	if l.quantity-n < 1 {
		return Line{}, invalid("quantity", "cannot go below 1")
	}
	return l.UpdateQuantity(l.quantity - n)
}

// UpdateQuantity returns a copy with quantity set to q.
func (l Line) UpdateQuantity(q int) (Line, error) {
	if q < 1 {
		return Line{}, invalid("quantity", "must be at least 1")
	}
	next := l
	next.quantity = q
	if err := next.validate(); err != nil {
		return Line{}, err
	}
	return next, nil
}
