package order

import (
	"slices"
	"strings"
	"time"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
)

// NewParams holds the input for New.
type NewParams struct {
	ID           string
	Number       string
	RestaurantID string
	TableID      *string
	CreatedBy    string
	Lines        []Line
	Discounts    []AppliedDiscount
}

// Snapshot is the complete persisted state of an order. Order.Snapshot and
// Reconstitute are inverses.
type Snapshot struct {
	ID           string
	Number       string
	RestaurantID string
	TableID      *string
	CreatedBy    string
	Status       Status
	Lines        []Line
	Discounts    []AppliedDiscount
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Option configures an Order.
type Option func(*Order)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Order) { o.clock = now }
}

// Order is the aggregate root of the ordering domain. It owns its lines and
// applied discounts and enforces the lifecycle. Totals are always derived
// from the children and never stored.
//
// An Order is not safe for concurrent use.
type Order struct {
	id           string
	number       string
	restaurantID string
	tableID      *string
	createdBy    string
	status       Status
	lines        []Line
	discounts    []AppliedDiscount
	createdAt    time.Time
	updatedAt    time.Time

	clock func() time.Time
}

// New creates a PENDING order. Lines that share an item id are merged into
// one line.
func New(p NewParams, opts ...Option) (*Order, error) {
	o := &Order{
		id:           p.ID,
		number:       p.Number,
		restaurantID: p.RestaurantID,
		tableID:      cloneString(p.TableID),
		createdBy:    p.CreatedBy,
		status:       StatusPending,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if len(p.Lines) == 0 {
		return nil, invalid("lines", "order must have at least one line")
	}

	lines := make([]Line, 0, len(p.Lines))
	for _, l := range p.Lines {
		if err := l.validate(); err != nil {
			return nil, err
		}
		var err error
		if lines, err = mergeLine(lines, l); err != nil {
			return nil, err
		}
	}
	discounts := slices.Clone(p.Discounts)
	if err := o.check(lines, discounts); err != nil {
		return nil, err
	}

	o.lines, o.discounts = lines, discounts
	now := o.clock()
	o.createdAt, o.updatedAt = now, now
	return o, nil
}

// Reconstitute rebuilds an order from stored state. Any valid status is
// accepted and timestamps are kept as given.
func Reconstitute(s Snapshot, opts ...Option) (*Order, error) {
	if !s.Status.Valid() {
		return nil, invalid("status", "unknown status "+s.Status.String())
	}
	o := &Order{
		id:           s.ID,
		number:       s.Number,
		restaurantID: s.RestaurantID,
		tableID:      cloneString(s.TableID),
		createdBy:    s.CreatedBy,
		status:       s.Status,
		createdAt:    s.CreatedAt,
		updatedAt:    s.UpdatedAt,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	lines := slices.Clone(s.Lines)
	for _, l := range lines {
		if err := l.validate(); err != nil {
			return nil, err
		}
	}
	discounts := slices.Clone(s.Discounts)
	if err := o.check(lines, discounts); err != nil {
		return nil, err
	}
	o.lines, o.discounts = lines, discounts
	return o, nil
}

// Snapshot returns the state accepted by Reconstitute.
func (o *Order) Snapshot() Snapshot {
	return Snapshot{
		ID:           o.id,
		Number:       o.number,
		RestaurantID: o.restaurantID,
		TableID:      cloneString(o.tableID),
		CreatedBy:    o.createdBy,
		Status:       o.status,
		Lines:        o.Lines(),
		Discounts:    o.Discounts(),
		CreatedAt:    o.createdAt,
		UpdatedAt:    o.updatedAt,
	}
}

// ID returns the order id.
func (o *Order) ID() string { return o.id }

// Number returns the human-readable order number.
func (o *Order) Number() string { return o.number }

// RestaurantID returns the owning restaurant.
func (o *Order) RestaurantID() string { return o.restaurantID }

// TableID returns a copy of the table id, or nil for orders without a table.
func (o *Order) TableID() *string { return cloneString(o.tableID) }

// CreatedBy returns the user who opened the order.
func (o *Order) CreatedBy() string { return o.createdBy }

// Status returns the current lifecycle status.
func (o *Order) Status() Status { return o.status }

// CreatedAt returns the creation time.
func (o *Order) CreatedAt() time.Time { return o.createdAt }

// UpdatedAt returns the time of the last change.
func (o *Order) UpdatedAt() time.Time { return o.updatedAt }

// Lines returns a copy of the order lines in insertion order.
func (o *Order) Lines() []Line { return slices.Clone(o.lines) }

// Discounts returns a copy of the applied discounts in application order.
func (o *Order) Discounts() []AppliedDiscount { return slices.Clone(o.discounts) }

// Line returns the line with the given id.
func (o *Order) Line(lineID string) (Line, bool) {
	i := o.lineIndex(lineID)
	if i < 0 {
		return Line{}, false
	}
	return o.lines[i], true
}

// Subtotal is the sum of line totals.
func (o *Order) Subtotal() money.Minor {
	sub, _ := subtotal(o.lines)
	return sub
}

// DiscountTotal is the sum of applied discount amounts.
func (o *Order) DiscountTotal() money.Minor {
	var total money.Minor
	for _, d := range o.discounts {
		total += d.amount
	}
	return total
}

// Total is Subtotal minus DiscountTotal, never below zero.
func (o *Order) Total() money.Minor {
	return (o.Subtotal() - o.DiscountTotal()).ClampZero()
}

// ItemCount is the total quantity across all lines.
func (o *Order) ItemCount() int {
	var n int
	for _, l := range o.lines {
		n += l.quantity
	}
	return n
}

// AddItem adds a line, merging its quantity into an existing line for the
// same item.
func (o *Order) AddItem(l Line) error {
	if err := o.requirePending("add item"); err != nil {
		return err
	}
	if err := l.validate(); err != nil {
		return err
	}
	lines, err := mergeLine(slices.Clone(o.lines), l)
	if err != nil {
		return err
	}
	return o.commit(lines, o.discounts)
}

// RemoveItem removes a line. The last remaining line cannot be removed.
func (o *Order) RemoveItem(lineID string) error {
	if err := o.requirePending("remove item"); err != nil {
		return err
	}
	i := o.lineIndex(lineID)
	if i < 0 {
		return &NotFoundError{Resource: "line", ID: lineID}
	}
	if len(o.lines) == 1 {
		return invalid("lines", "cannot remove the last line of an order")
	}
	lines := slices.Delete(slices.Clone(o.lines), i, i+1)
	return o.commit(lines, o.discounts)
}

// UpdateItemQuantity sets the quantity of a line.
func (o *Order) UpdateItemQuantity(lineID string, quantity int) error {
	if err := o.requirePending("update item quantity"); err != nil {
		return err
	}
	i := o.lineIndex(lineID)
	if i < 0 {
		return &NotFoundError{Resource: "line", ID: lineID}
	}
	updated, err := o.lines[i].UpdateQuantity(quantity)
	if err != nil {
		return err
	}
	lines := slices.Clone(o.lines)
	lines[i] = updated
	return o.commit(lines, o.discounts)
}

// ApplyDiscount attaches a discount whose amount has already been computed.
func (o *Order) ApplyDiscount(d AppliedDiscount) error {
	if err := o.requirePending("apply discount"); err != nil {
		return err
	}
	if err := d.validate(); err != nil {
		return err
	}
	if slices.ContainsFunc(o.discounts, d.Equal) {
		return invalid("discount.id", "discount "+d.id+" is already applied")
	}
	discounts := append(slices.Clone(o.discounts), d)
	return o.commit(o.lines, discounts)
}

// RemoveDiscount detaches the first applied discount referencing discountID.
func (o *Order) RemoveDiscount(discountID string) error {
	if err := o.requirePending("remove discount"); err != nil {
		return err
	}
	i := slices.IndexFunc(o.discounts, func(d AppliedDiscount) bool {
		return d.discountID == discountID
	})
	if i < 0 {
		return &NotFoundError{Resource: "discount", ID: discountID}
	}
	discounts := slices.Delete(slices.Clone(o.discounts), i, i+1)
	return o.commit(o.lines, discounts)
}

// ClearDiscounts detaches every applied discount.
func (o *Order) ClearDiscounts() error {
	if err := o.requirePending("clear discounts"); err != nil {
		return err
	}
	return o.commit(o.lines, nil)
}

// CanTransitionTo reports whether the order may move to target.
func (o *Order) CanTransitionTo(target Status) bool {
	return o.status.CanTransitionTo(target)
}

// ChangeStatus moves the order to target if the lifecycle allows it.
func (o *Order) ChangeStatus(target Status) error {
	if !o.status.CanTransitionTo(target) {
		return &InvalidTransitionError{From: o.status, To: target}
	}
	if err := o.check(o.lines, o.discounts); err != nil {
		return err
	}
	o.status = target
	o.touch()
	return nil
}

// Confirm moves the order to CONFIRMED.
func (o *Order) Confirm() error { return o.ChangeStatus(StatusConfirmed) }

// Complete moves the order to COMPLETED. The lifecycle table has no edge
// into COMPLETED, so this currently always fails.
func (o *Order) Complete() error { return o.ChangeStatus(StatusCompleted) }

// Cancel moves the order to CANCELLED. A non-blank reason is required.
func (o *Order) Cancel(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return invalid("reason", "cancellation reason is required")
	}
	return o.ChangeStatus(StatusCancelled)
}

func (o *Order) requirePending(op string) error {
	if o.status != StatusPending {
		return &InvalidStateError{Op: op, Status: o.status}
	}
	return nil
}

// commit validates the candidate children and installs them. On error the
// order keeps its previous state.
func (o *Order) commit(lines []Line, discounts []AppliedDiscount) error {
	if err := o.check(lines, discounts); err != nil {
		return err
	}
	o.lines, o.discounts = lines, discounts
	o.touch()
	return nil
}

func (o *Order) check(lines []Line, discounts []AppliedDiscount) error {
	switch {
	case strings.TrimSpace(o.id) == "":
		return invalid("id", "is required")
	case strings.TrimSpace(o.restaurantID) == "":
		return invalid("restaurantId", "is required")
	case strings.TrimSpace(o.createdBy) == "":
		return invalid("createdBy", "is required")
	case len(lines) == 0:
		return invalid("lines", "order must have at least one line")
	}

	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, dup := seen[l.itemID]; dup {
			return invalid("lines", "duplicate item "+l.itemID)
		}
		seen[l.itemID] = struct{}{}
	}

	sub, err := subtotal(lines)
	if err != nil {
		return err
	}
	if sub < 0 {
		return invalid("subtotal", "must not be negative")
	}

	var discounted money.Minor
	for _, d := range discounts {
		if err := d.validate(); err != nil {
			return err
		}
		if d.orderID != "" && d.orderID != o.id {
			return invalid("discount.orderId", "discount "+d.id+" belongs to order "+d.orderID)
		}
		if discounted, err = discounted.Add(d.amount); err != nil {
			return invalid("discountTotal", err.Error())
		}
	}
	return nil
}

func (o *Order) touch() { o.updatedAt = o.clock() }

func (o *Order) lineIndex(lineID string) int {
	return slices.IndexFunc(o.lines, func(l Line) bool { return l.id == lineID })
}

func mergeLine(lines []Line, l Line) ([]Line, error) {
	i := slices.IndexFunc(lines, func(x Line) bool { return x.itemID == l.itemID })
	if i < 0 {
		return append(lines, l), nil
	}
	merged, err := lines[i].IncreaseQuantity(l.quantity)
	if err != nil {
		return nil, err
	}
	lines[i] = merged
	return lines, nil
}

func subtotal(lines []Line) (money.Minor, error) {
	var total money.Minor
	for _, l := range lines {
		var err error
		if total, err = total.Add(l.Total()); err != nil {
			return 0, invalid("subtotal", err.Error())
		}
	}
	return total, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
