package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
)

const defaultNumberAttempts = 3

// LineRequest describes a line to add. Name and UnitPrice are the menu
// values at the time of ordering.
type LineRequest struct {
	ItemID    string
	Name      string
	Quantity  int
	UnitPrice money.Minor
}

// CreateOrderRequest holds the input for CreateOrder.
type CreateOrderRequest struct {
	RestaurantID string
	TableID      *string
	CreatedBy    string
	Items        []LineRequest
	DiscountIDs  []string
}

// UpdateStatusRequest holds the input for UpdateOrderStatus.
type UpdateStatusRequest struct {
	OrderID   string
	Status    Status
	ChangedBy string
	Notes     *string
}

// CancelOrderRequest holds the input for CancelOrder.
type CancelOrderRequest struct {
	OrderID     string
	Reason      string
	CancelledBy string
}

// SalesSummary is the result of Service.SalesSummary.
type SalesSummary struct {
	RestaurantID string
	From         time.Time
	To           time.Time
	Counts       map[Status]int64
	TotalSales   money.Minor
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source used for new orders.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDs overrides the id generator used for orders, lines and discounts.
func WithIDs(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// WithNumbers overrides the order number source.
func WithNumbers(src NumberSource) ServiceOption {
	return func(s *Service) { s.numbers = src }
}

// WithNumberAttempts sets how many order numbers CreateOrder tries before
// giving up on duplicates.
func WithNumberAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithMeterProvider sets the provider for order metrics.
func WithMeterProvider(mp metric.MeterProvider) ServiceOption {
	return func(s *Service) { s.meterProvider = mp }
}

// Service implements the order use-cases on top of a Repository.
type Service struct {
	orders    Repository
	discounts discount.Resolver
	numbers   NumberSource
	newID     func() string
	now       func() time.Time
	attempts  int

	meterProvider metric.MeterProvider
	created       metric.Int64Counter
	transitions   metric.Int64Counter
}

// NewService creates an order Service.
func NewService(orders Repository, discounts discount.Resolver, opts ...ServiceOption) *Service {
	s := &Service{
		orders:        orders,
		discounts:     discounts,
		newID:         uuid.NewString,
		now:           time.Now,
		attempts:      defaultNumberAttempts,
		meterProvider: noop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.numbers == nil {
		s.numbers = NewNumberGenerator(0)
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := s.meterProvider.Meter("github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order")
	fallback := noop.NewMeterProvider().Meter("")

	var err error
	if s.created, err = meter.Int64Counter("pos.orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		s.created, _ = fallback.Int64Counter("pos.orders.created")
	}
	if s.transitions, err = meter.Int64Counter("pos.orders.status_changes",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		s.transitions, _ = fallback.Int64Counter("pos.orders.status_changes")
	}
}

// CreateOrder builds a PENDING order from the request, resolves and prices
// the requested discounts against the new subtotal, and persists it.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, invalid("items", "at least one item is required")
	}
	lines, err := s.buildLines(req.Items)
	if err != nil {
		return nil, err
	}

	orderID := s.newID()
	sub, err := subtotal(lines)
	if err != nil {
		return nil, err
	}
	discounts := make([]AppliedDiscount, 0, len(req.DiscountIDs))
	for _, id := range req.DiscountIDs {
		d, err := s.priceDiscount(ctx, orderID, id, sub)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}

	for attempt := 1; ; attempt++ {
		o, err := New(NewParams{
			ID:           orderID,
			Number:       s.numbers.Next(),
			RestaurantID: req.RestaurantID,
			TableID:      req.TableID,
			CreatedBy:    req.CreatedBy,
			Lines:        lines,
			Discounts:    discounts,
		}, WithClock(s.now))
		if err != nil {
			return nil, err
		}

		err = s.orders.Create(ctx, o)
		switch {
		case err == nil:
			s.created.Add(ctx, 1)
			return o, nil
		case errors.Is(err, ErrDuplicateNumber) && attempt < s.attempts:
			continue
		default:
			return nil, errors.Wrap(err, "create order")
		}
	}
}

// GetOrder returns the order with the given id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.load(ctx, id)
}

// ListOrders returns orders matching f, newest first.
func (s *Service) ListOrders(ctx context.Context, f Filter) ([]*Order, error) {
	orders, err := s.orders.FindAll(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateOrderStatus moves an order to a new status and records the change.
// Moving to CANCELLED requires Notes, which become the cancellation reason.
func (s *Service) UpdateOrderStatus(ctx context.Context, req UpdateStatusRequest) (*Order, error) {
	if !req.Status.Valid() {
		return nil, invalid("status", "unknown status "+req.Status.String())
	}
	if strings.TrimSpace(req.ChangedBy) == "" {
		return nil, invalid("changedBy", "is required")
	}
	o, err := s.load(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	from := o.Status()
	if req.Status == StatusCancelled {
		var reason string
		if req.Notes != nil {
			reason = *req.Notes
		}
		err = o.Cancel(reason)
	} else {
		err = o.ChangeStatus(req.Status)
	}
	if err != nil {
		return nil, err
	}

	if err := s.recordStatus(ctx, o, from, req.ChangedBy, req.Notes); err != nil {
		return nil, err
	}
	return o, nil
}

// CancelOrder cancels an order with a mandatory reason.
func (s *Service) CancelOrder(ctx context.Context, req CancelOrderRequest) (*Order, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, invalid("reason", "cancellation reason is required")
	}
	if strings.TrimSpace(req.CancelledBy) == "" {
		return nil, invalid("cancelledBy", "is required")
	}
	o, err := s.load(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	from := o.Status()
	if err := o.Cancel(req.Reason); err != nil {
		return nil, err
	}
	reason := req.Reason
	if err := s.recordStatus(ctx, o, from, req.CancelledBy, &reason); err != nil {
		return nil, err
	}
	return o, nil
}

// AddItems adds lines to a PENDING order, merging repeated items.
func (s *Service) AddItems(ctx context.Context, orderID string, items []LineRequest) (*Order, error) {
	if len(items) == 0 {
		return nil, invalid("items", "at least one item is required")
	}
	lines, err := s.buildLines(items)
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, orderID, func(o *Order) error {
		for _, l := range lines {
			if err := o.AddItem(l); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveItem removes a line from a PENDING order.
func (s *Service) RemoveItem(ctx context.Context, orderID, lineID string) (*Order, error) {
	return s.edit(ctx, orderID, func(o *Order) error {
		return o.RemoveItem(lineID)
	})
}

// UpdateItemQuantity sets the quantity of a line on a PENDING order.
func (s *Service) UpdateItemQuantity(ctx context.Context, orderID, lineID string, quantity int) (*Order, error) {
	return s.edit(ctx, orderID, func(o *Order) error {
		return o.UpdateItemQuantity(lineID, quantity)
	})
}

// ApplyDiscount prices a catalog discount against the current subtotal and
// attaches it to a PENDING order.
func (s *Service) ApplyDiscount(ctx context.Context, orderID, discountID string) (*Order, error) {
	return s.edit(ctx, orderID, func(o *Order) error {
		if err := o.requirePending("apply discount"); err != nil {
			return err
		}
		d, err := s.priceDiscount(ctx, o.ID(), discountID, o.Subtotal())
		if err != nil {
			return err
		}
		return o.ApplyDiscount(d)
	})
}

// RemoveDiscount detaches a discount from a PENDING order.
func (s *Service) RemoveDiscount(ctx context.Context, orderID, discountID string) (*Order, error) {
	return s.edit(ctx, orderID, func(o *Order) error {
		return o.RemoveDiscount(discountID)
	})
}

// History returns the status audit trail of an order, oldest first.
func (s *Service) History(ctx context.Context, orderID string) ([]StatusHistory, error) {
	if _, err := s.load(ctx, orderID); err != nil {
		return nil, err
	}
	h, err := s.orders.StatusHistory(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "status history of %q", orderID)
	}
	return h, nil
}

// OrderExists reports whether an order with the given id exists.
func (s *Service) OrderExists(ctx context.Context, id string) (bool, error) {
	_, err := s.load(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// OrderTotal returns the current total of an order.
func (s *Service) OrderTotal(ctx context.Context, id string) (money.Minor, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	return o.Total(), nil
}

// SalesSummary counts orders per status and sums the sales of a restaurant
// in [from, to).
func (s *Service) SalesSummary(ctx context.Context, restaurantID string, from, to time.Time) (*SalesSummary, error) {
	if !from.Before(to) {
		return nil, invalid("range", "from must be before to")
	}
	counts := make([]int64, len(Statuses))
	sum := &SalesSummary{RestaurantID: restaurantID, From: from, To: to}

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range Statuses {
		g.Go(func() error {
			n, err := s.orders.CountByStatus(gctx, st)
			if err != nil {
				return errors.Wrapf(err, "count %s", st)
			}
			counts[i] = n
			return nil
		})
	}
	g.Go(func() error {
		total, err := s.orders.TotalSales(gctx, restaurantID, from, to)
		if err != nil {
			return errors.Wrap(err, "total sales")
		}
		sum.TotalSales = total
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum.Counts = make(map[Status]int64, len(Statuses))
	for i, st := range Statuses {
		sum.Counts[st] = counts[i]
	}
	return sum, nil
}

func (s *Service) load(ctx context.Context, id string) (*Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalid("id", "is required")
	}
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "find order %q", id)
	}
	return o, nil
}

// edit loads an order, applies fn and persists the result. Nothing is
// written when fn fails.
func (s *Service) edit(ctx context.Context, orderID string, fn func(*Order) error) (*Order, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "update order %q", orderID)
	}
	return o, nil
}

func (s *Service) recordStatus(ctx context.Context, o *Order, from Status, by string, notes *string) error {
	err := s.orders.UpdateStatus(ctx, StatusChange{
		OrderID:   o.ID(),
		To:        o.Status(),
		ChangedBy: by,
		Notes:     notes,
		At:        o.UpdatedAt(),
	})
	if err != nil {
		return errors.Wrapf(err, "update status of %q", o.ID())
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", o.Status().String()),
	))
	return nil
}

func (s *Service) buildLines(items []LineRequest) ([]Line, error) {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		l, err := NewLine(LineParams{
			ID:        s.newID(),
			ItemID:    it.ItemID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (s *Service) priceDiscount(ctx context.Context, orderID, discountID string, base money.Minor) (AppliedDiscount, error) {
	if strings.TrimSpace(discountID) == "" {
		return AppliedDiscount{}, invalid("discountId", "is required")
	}
	def, err := s.discounts.Resolve(ctx, discountID)
	switch {
	case errors.Is(err, discount.ErrNotFound):
		return AppliedDiscount{}, &NotFoundError{Resource: "discount", ID: discountID}
	case errors.Is(err, discount.ErrInactive), errors.Is(err, discount.ErrExpired),
		errors.Is(err, discount.ErrInvalidValue), errors.Is(err, discount.ErrUnknownType):
		return AppliedDiscount{}, invalid("discountId", err.Error())
	case err != nil:
		return AppliedDiscount{}, errors.Wrap(err, "resolve discount")
	}

	amount, err := discount.Amount(def.Type, def.Value, base)
	if err != nil {
		return AppliedDiscount{}, invalid("discountId", err.Error())
	}
	return NewAppliedDiscount(AppliedDiscountParams{
		ID:         s.newID(),
		OrderID:    orderID,
		DiscountID: def.ID,
		Type:       def.Type,
		Value:      def.Value,
		Amount:     amount,
		CreatedAt:  s.now(),
	})
}
