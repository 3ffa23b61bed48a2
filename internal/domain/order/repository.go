package order

import (
	"context"
	"time"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
)

// SalesStatus is the status whose orders count towards total sales.
const SalesStatus = StatusConfirmed

// Filter narrows FindAll. Zero-valued fields are ignored.
type Filter struct {
	RestaurantID string
	Status       *Status
	// Number matches either the order number or the order id.
	Number string
	From   *time.Time
	To     *time.Time
	// Limit caps the result size when positive.
	Limit int
}

// Repository is the persistence port for orders.
//
// Create, Update and UpdateStatus are atomic: either every row they touch is
// written or none is.
type Repository interface {
	// FindByID returns a *NotFoundError when the order does not exist.
	FindByID(ctx context.Context, id string) (*Order, error)
	// FindAll returns matching orders, newest first.
	FindAll(ctx context.Context, f Filter) ([]*Order, error)
	// StatusHistory returns the audit trail of an order, oldest first.
	StatusHistory(ctx context.Context, orderID string) ([]StatusHistory, error)
	// Create stores a new order with its lines, discounts and the creation
	// history record. Returns ErrDuplicateNumber if the number is taken.
	Create(ctx context.Context, o *Order) error
	// Update rewrites the order row and replaces its lines and discounts.
	// The stored status is left untouched; if it is no longer PENDING the
	// update is refused with ErrInvalidState.
	Update(ctx context.Context, o *Order) error
	// UpdateStatus sets the status and appends a history record.
	UpdateStatus(ctx context.Context, c StatusChange) error
	CountByStatus(ctx context.Context, s Status) (int64, error)
	// TotalSales sums totals of SalesStatus orders created in [from, to).
	TotalSales(ctx context.Context, restaurantID string, from, to time.Time) (money.Minor, error)
}
