package order

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders  map[string]Snapshot
	history map[string][]StatusHistory

	createErrs []error // consumed one per Create call
	updateErr  error
	findErr    error
	creates    int
	updates    int
	counts     map[Status]int64
	sales      money.Minor
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		orders:  make(map[string]Snapshot),
		history: make(map[string][]StatusHistory),
	}
}

func (m *mockOrderRepo) FindByID(_ context.Context, id string) (*Order, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	s, ok := m.orders[id]
	if !ok {
		return nil, &NotFoundError{Resource: "order", ID: id}
	}
	return Reconstitute(s)
}

func (m *mockOrderRepo) FindAll(_ context.Context, f Filter) ([]*Order, error) {
	var out []*Order
	for _, s := range m.orders {
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		o, err := Reconstitute(s)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *mockOrderRepo) StatusHistory(_ context.Context, orderID string) ([]StatusHistory, error) {
	return slices.Clone(m.history[orderID]), nil
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.creates++
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return err
		}
	}
	m.orders[o.ID()] = o.Snapshot()
	m.history[o.ID()] = append(m.history[o.ID()], CreationRecord(fmt.Sprintf("h%d", len(m.history[o.ID()])), o))
	return nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	m.orders[o.ID()] = o.Snapshot()
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, c StatusChange) error {
	s, ok := m.orders[c.OrderID]
	if !ok {
		return &NotFoundError{Resource: "order", ID: c.OrderID}
	}
	h := c.Record(fmt.Sprintf("h%d", len(m.history[c.OrderID])), s.Status)
	if err := h.Validate(); err != nil {
		return err
	}
	s.Status = c.To
	s.UpdatedAt = c.At
	m.orders[c.OrderID] = s
	m.history[c.OrderID] = append(m.history[c.OrderID], h)
	return nil
}

func (m *mockOrderRepo) CountByStatus(_ context.Context, s Status) (int64, error) {
	return m.counts[s], nil
}

func (m *mockOrderRepo) TotalSales(_ context.Context, _ string, _, _ time.Time) (money.Minor, error) {
	return m.sales, nil
}

type mockResolver struct {
	defs map[string]*discount.Definition
	err  error
}

func (m *mockResolver) Resolve(_ context.Context, id string) (*discount.Definition, error) {
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.defs[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

type seqNumbers struct{ n int }

func (s *seqNumbers) Next() string {
	s.n++
	return fmt.Sprintf("ORD-TEST-%03d", s.n)
}

// --- Helpers ---

func goldenForkCatalog() *mockResolver {
	return &mockResolver{defs: map[string]*discount.Definition{
		"happy-hour": {ID: "happy-hour", Name: "Happy Hour 20%", Type: discount.Percent, Value: 20, Active: true},
		"five-off":   {ID: "five-off", Name: "$5 Off", Type: discount.Fixed, Value: 500, Active: true},
		"vip":        {ID: "vip", Name: "VIP Member 25%", Type: discount.Percent, Value: 25, Active: true},
	}}
}

func newTestService(repo *mockOrderRepo, opts ...ServiceOption) *Service {
	var seq int
	base := []ServiceOption{
		WithServiceClock(fixedClock()),
		WithIDs(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
		WithNumbers(&seqNumbers{}),
	}
	return NewService(repo, goldenForkCatalog(), append(base, opts...)...)
}

func dinnerRequest() CreateOrderRequest {
	return CreateOrderRequest{
		RestaurantID: "golden-fork",
		CreatedBy:    "cashier-1",
		Items: []LineRequest{
			{ItemID: "caesar", Name: "Caesar Salad", Quantity: 1, UnitPrice: 895},
			{ItemID: "salmon", Name: "Grilled Salmon", Quantity: 1, UnitPrice: 2495},
			{ItemID: "lava-cake", Name: "Chocolate Lava Cake", Quantity: 1, UnitPrice: 795},
		},
	}
}

// --- Tests ---

func TestCreateOrder_EmptyItems(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{RestaurantID: "r", CreatedBy: "u"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, repo.creates)
}

func TestCreateOrder_WithDiscounts(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)

	req := dinnerRequest()
	req.DiscountIDs = []string{"happy-hour", "five-off"}

	o, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status())
	assert.Equal(t, "ORD-TEST-001", o.Number())
	assert.Equal(t, money.Minor(4185), o.Subtotal())
	assert.Equal(t, money.Minor(1337), o.DiscountTotal())
	assert.Equal(t, money.Minor(2848), o.Total())
	assert.Equal(t, testNow, o.CreatedAt())

	ds := o.Discounts()
	require.Len(t, ds, 2)
	assert.Equal(t, money.Minor(837), ds[0].Amount())
	assert.Equal(t, o.ID(), ds[0].OrderID())
	assert.Equal(t, money.Minor(500), ds[1].Amount())

	stored, ok := repo.orders[o.ID()]
	require.True(t, ok)
	assert.Equal(t, StatusPending, stored.Status)
	require.Len(t, repo.history[o.ID()], 1)
	assert.Nil(t, repo.history[o.ID()][0].From)
}

func TestCreateOrder_MergesRepeatedItems(t *testing.T) {
	svc := newTestService(newMockOrderRepo())

	req := dinnerRequest()
	req.Items = append(req.Items, LineRequest{ItemID: "caesar", Name: "Caesar Salad", Quantity: 2, UnitPrice: 895})

	o, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, o.Lines(), 3)
	assert.Equal(t, 3, o.Lines()[0].Quantity())
	assert.Equal(t, 5, o.ItemCount())
}

func TestCreateOrder_DiscountErrors(t *testing.T) {
	t.Run("unknown discount", func(t *testing.T) {
		repo := newMockOrderRepo()
		svc := newTestService(repo)
		req := dinnerRequest()
		req.DiscountIDs = []string{"nope"}

		_, err := svc.CreateOrder(context.Background(), req)
		var nfErr *NotFoundError
		require.ErrorAs(t, err, &nfErr)
		assert.Equal(t, "discount", nfErr.Resource)
		assert.Zero(t, repo.creates)
	})

	t.Run("inactive discount", func(t *testing.T) {
		svc := NewService(newMockOrderRepo(), &mockResolver{err: errors.Wrap(discount.ErrInactive, "discount \"old\"")})
		req := dinnerRequest()
		req.DiscountIDs = []string{"old"}

		_, err := svc.CreateOrder(context.Background(), req)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("resolver failure", func(t *testing.T) {
		svc := NewService(newMockOrderRepo(), &mockResolver{err: errors.New("db down")})
		req := dinnerRequest()
		req.DiscountIDs = []string{"happy-hour"}

		_, err := svc.CreateOrder(context.Background(), req)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrValidation)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestCreateOrder_RetriesDuplicateNumber(t *testing.T) {
	repo := newMockOrderRepo()
	repo.createErrs = []error{ErrDuplicateNumber, nil}
	svc := newTestService(repo)

	o, err := svc.CreateOrder(context.Background(), dinnerRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.creates)
	assert.Equal(t, "ORD-TEST-002", o.Number())
}

func TestCreateOrder_GivesUpAfterAttempts(t *testing.T) {
	repo := newMockOrderRepo()
	repo.createErrs = []error{ErrDuplicateNumber, ErrDuplicateNumber, ErrDuplicateNumber}
	svc := newTestService(repo, WithNumberAttempts(2))

	_, err := svc.CreateOrder(context.Background(), dinnerRequest())
	require.ErrorIs(t, err, ErrDuplicateNumber)
	assert.Equal(t, 2, repo.creates)
}

func TestGetOrder(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, dinnerRequest())
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, created.Snapshot(), got.Snapshot())

	_, err = svc.GetOrder(ctx, "missing")
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "missing", nfErr.ID)

	_, err = svc.GetOrder(ctx, "")
	require.ErrorIs(t, err, ErrValidation)

	repo.findErr = errors.New("connection refused")
	_, err = svc.GetOrder(ctx, created.ID())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestConfirmThenCancelAudit(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, dinnerRequest())
	require.NoError(t, err)

	o, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: o.ID(), Status: StatusConfirmed, ChangedBy: "cashier-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status())

	o, err = svc.CancelOrder(ctx, CancelOrderRequest{OrderID: o.ID(), Reason: "refund", CancelledBy: "manager-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status())

	h, err := svc.History(ctx, o.ID())
	require.NoError(t, err)
	require.Len(t, h, 3)

	changes := h[1:]
	require.NotNil(t, changes[0].From)
	assert.Equal(t, StatusPending, *changes[0].From)
	assert.Equal(t, StatusConfirmed, changes[0].To)
	assert.Nil(t, changes[0].Notes)

	require.NotNil(t, changes[1].From)
	assert.Equal(t, StatusConfirmed, *changes[1].From)
	assert.Equal(t, StatusCancelled, changes[1].To)
	require.NotNil(t, changes[1].Notes)
	assert.Equal(t, "refund", *changes[1].Notes)
	assert.Equal(t, "manager-1", changes[1].ChangedBy)
}

func TestUpdateOrderStatus_Errors(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, dinnerRequest())
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: o.ID(), Status: "SHIPPED", ChangedBy: "u"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: o.ID(), Status: StatusConfirmed})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: o.ID(), Status: StatusCompleted, ChangedBy: "u"})
	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusPending, tErr.From)

	_, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: o.ID(), Status: StatusCancelled, ChangedBy: "u"})
	require.ErrorIs(t, err, ErrValidation, "cancelling needs a note")

	_, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: "missing", Status: StatusConfirmed, ChangedBy: "u"})
	require.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, repo.history[o.ID()], 1, "failed changes leave no audit records")
	assert.Equal(t, StatusPending, repo.orders[o.ID()].Status)
}

func TestUpdateOrderStatus_CancelWithNotes(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, dinnerRequest())
	require.NoError(t, err)

	notes := "table walked out"
	o, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: o.ID(), Status: StatusCancelled, ChangedBy: "u", Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status())
}

func TestCancelOrder_BlankReason(t *testing.T) {
	repo := newMockOrderRepo()
	repo.findErr = errors.New("must not be called")
	svc := newTestService(repo)

	for _, reason := range []string{"", "   "} {
		_, err := svc.CancelOrder(context.Background(), CancelOrderRequest{OrderID: "o1", Reason: reason, CancelledBy: "u"})
		require.ErrorIs(t, err, ErrValidation)
	}
}

func TestCancelOrder_Terminal(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, dinnerRequest())
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, CancelOrderRequest{OrderID: o.ID(), Reason: "first", CancelledBy: "u"})
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, CancelOrderRequest{OrderID: o.ID(), Reason: "again", CancelledBy: "u"})
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, repo.history[o.ID()], 2)
}

func TestEditUseCases(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, dinnerRequest())
	require.NoError(t, err)

	o, err = svc.AddItems(ctx, o.ID(), []LineRequest{
		{ItemID: "coffee", Name: "Coffee", Quantity: 2, UnitPrice: 350},
		{ItemID: "caesar", Name: "Caesar Salad", Quantity: 1, UnitPrice: 895},
	})
	require.NoError(t, err)
	require.Len(t, o.Lines(), 4)
	assert.Equal(t, money.Minor(4185+700+895), o.Subtotal())

	coffee := o.Lines()[3]
	o, err = svc.UpdateItemQuantity(ctx, o.ID(), coffee.ID(), 1)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(4185+350+895), o.Subtotal())

	o, err = svc.RemoveItem(ctx, o.ID(), coffee.ID())
	require.NoError(t, err)
	assert.Len(t, o.Lines(), 3)

	o, err = svc.ApplyDiscount(ctx, o.ID(), "vip")
	require.NoError(t, err)
	require.Len(t, o.Discounts(), 1)
	assert.Equal(t, money.Minor((4185+895)/4), o.DiscountTotal())

	o, err = svc.RemoveDiscount(ctx, o.ID(), "vip")
	require.NoError(t, err)
	assert.Empty(t, o.Discounts())

	stored, err := repo.FindByID(ctx, o.ID())
	require.NoError(t, err)
	assert.Equal(t, o.Snapshot(), stored.Snapshot())
	assert.Equal(t, 5, repo.updates)
}

func TestEditUseCases_Rejected(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, CreateOrderRequest{
		RestaurantID: "golden-fork",
		CreatedBy:    "cashier-1",
		Items:        []LineRequest{{ItemID: "coffee", Name: "Coffee", Quantity: 1, UnitPrice: 350}},
	})
	require.NoError(t, err)

	_, err = svc.RemoveItem(ctx, o.ID(), o.Lines()[0].ID())
	require.ErrorIs(t, err, ErrValidation, "last line")

	_, err = svc.ApplyDiscount(ctx, o.ID(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: o.ID(), Status: StatusConfirmed, ChangedBy: "u"})
	require.NoError(t, err)

	_, err = svc.AddItems(ctx, o.ID(), []LineRequest{{ItemID: "tea", Name: "Thai Iced Tea", Quantity: 1, UnitPrice: 450}})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.ApplyDiscount(ctx, o.ID(), "happy-hour")
	require.ErrorIs(t, err, ErrInvalidState)

	assert.Zero(t, repo.updates)
}

func TestPublicHelpers(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	req := dinnerRequest()
	req.DiscountIDs = []string{"happy-hour", "five-off"}
	o, err := svc.CreateOrder(ctx, req)
	require.NoError(t, err)

	ok, err := svc.OrderExists(ctx, o.ID())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.OrderExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	total, err := svc.OrderTotal(ctx, o.ID())
	require.NoError(t, err)
	assert.Equal(t, money.Minor(2848), total)
}

func TestSalesSummary(t *testing.T) {
	repo := newMockOrderRepo()
	repo.counts = map[Status]int64{StatusPending: 4, StatusConfirmed: 7, StatusCancelled: 1}
	repo.sales = 19_935
	svc := newTestService(repo)

	from := testNow.Add(-24 * time.Hour)
	sum, err := svc.SalesSummary(context.Background(), "golden-fork", from, testNow)
	require.NoError(t, err)

	assert.Equal(t, int64(4), sum.Counts[StatusPending])
	assert.Equal(t, int64(7), sum.Counts[StatusConfirmed])
	assert.Equal(t, int64(0), sum.Counts[StatusCompleted])
	assert.Equal(t, int64(1), sum.Counts[StatusCancelled])
	assert.Equal(t, money.Minor(19_935), sum.TotalSales)

	_, err = svc.SalesSummary(context.Background(), "golden-fork", testNow, from)
	require.ErrorIs(t, err, ErrValidation)
}

func TestListOrders(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, dinnerRequest())
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, dinnerRequest())
	require.NoError(t, err)
	_, err = svc.UpdateOrderStatus(ctx, UpdateStatusRequest{OrderID: first.ID(), Status: StatusConfirmed, ChangedBy: "u"})
	require.NoError(t, err)

	all, err := svc.ListOrders(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	confirmed := StatusConfirmed
	only, err := svc.ListOrders(ctx, Filter{Status: &confirmed})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, first.ID(), only[0].ID())
}
