//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pos",
				"POSTGRES_PASSWORD": "pos",
				"POSTGRES_DB":       "pos",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	url := fmt.Sprintf("postgres://pos:pos@%s:%s/pos?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, PoolConfig{URL: url, ConnectAttempts: 5})
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	return m.Run()
}

var integrationNow = time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

func newStoredOrder(t *testing.T, id, number string) *order.Order {
	t.Helper()

	var lines []order.Line
	for i, p := range []order.LineParams{
		{ItemID: "item-pad-thai", Name: "Pad Thai", Quantity: 1, UnitPrice: 895},
		{ItemID: "item-curry", Name: "Green Curry", Quantity: 1, UnitPrice: 2495},
		{ItemID: "item-tea", Name: "Thai Iced Tea", Quantity: 1, UnitPrice: 795},
	} {
		p.ID = fmt.Sprintf("%s-line-%d", id, i)
		l, err := order.NewLine(p)
		require.NoError(t, err)
		lines = append(lines, l)
	}
	pct, err := order.NewAppliedDiscount(order.AppliedDiscountParams{
		ID: id + "-d1", OrderID: id, DiscountID: "happy-hour",
		Type: discount.Percent, Value: 20, Amount: 837, CreatedAt: integrationNow,
	})
	require.NoError(t, err)

	table := "T-4"
	o, err := order.New(order.NewParams{
		ID:           id,
		Number:       number,
		RestaurantID: "golden-fork",
		TableID:      &table,
		CreatedBy:    "cashier-1",
		Lines:        lines,
		Discounts:    []order.AppliedDiscount{pct},
	}, order.WithClock(func() time.Time { return integrationNow }))
	require.NoError(t, err)
	return o
}

func TestOrderRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := newStoredOrder(t, "it-create", "ORD-1772389800000-101")
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.FindByID(ctx, o.ID())
	require.NoError(t, err)
	assert.Equal(t, o.Number(), got.Number())
	assert.Equal(t, money.Minor(4185), got.Subtotal())
	assert.Equal(t, money.Minor(837), got.DiscountTotal())
	assert.Equal(t, money.Minor(3348), got.Total())
	require.Len(t, got.Lines(), 3)
	assert.Equal(t, "item-pad-thai", got.Lines()[0].ItemID())
	assert.True(t, got.CreatedAt().Equal(integrationNow))

	history, err := repo.StatusHistory(ctx, o.ID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].From)
	assert.Equal(t, order.StatusPending, history[0].To)

	err = repo.Create(ctx, newStoredOrder(t, "it-create-dup", o.Number()))
	require.ErrorIs(t, err, order.ErrDuplicateNumber)
}

func TestOrderRepository_FindByIDMissing(t *testing.T) {
	_, err := NewOrderRepository(testPool).FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := newStoredOrder(t, "it-update", "ORD-1772389800000-102")
	require.NoError(t, repo.Create(ctx, o))

	require.NoError(t, o.UpdateItemQuantity("it-update-line-0", 3))
	require.NoError(t, o.RemoveDiscount("happy-hour"))
	require.NoError(t, repo.Update(ctx, o))

	got, err := repo.FindByID(ctx, o.ID())
	require.NoError(t, err)
	assert.Equal(t, 3, got.Lines()[0].Quantity())
	assert.Empty(t, got.Discounts())
	assert.Equal(t, money.Minor(895*3+2495+795), got.Total())
}

func TestOrderRepository_UpdateKeepsStoredStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := newStoredOrder(t, "it-stale", "ORD-1772389800000-110")
	require.NoError(t, repo.Create(ctx, o))

	stale, err := repo.FindByID(ctx, o.ID())
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, order.StatusChange{
		OrderID: o.ID(), To: order.StatusConfirmed, ChangedBy: "cashier-1", At: integrationNow.Add(time.Minute),
	}))

	require.NoError(t, stale.UpdateItemQuantity("it-stale-line-0", 5))
	err = repo.Update(ctx, stale)
	require.ErrorIs(t, err, order.ErrInvalidState)

	got, err := repo.FindByID(ctx, o.ID())
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status())
	assert.Equal(t, 1, got.Lines()[0].Quantity())
	assert.Equal(t, money.Minor(3348), got.Total())

	missing := newStoredOrder(t, "it-never-stored", "ORD-1772389800000-111")
	require.ErrorIs(t, repo.Update(ctx, missing), order.ErrNotFound)
}

func TestOrderStatusHistoryBlocksOrderDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := newStoredOrder(t, "it-audit", "ORD-1772389800000-112")
	require.NoError(t, repo.Create(ctx, o))

	_, err := testPool.Exec(ctx, `DELETE FROM orders WHERE order_id = $1`, o.ID())
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23503", pgErr.Code, "foreign key violation")

	history, err := repo.StatusHistory(ctx, o.ID())
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := newStoredOrder(t, "it-status", "ORD-1772389800000-103")
	require.NoError(t, repo.Create(ctx, o))

	at := integrationNow.Add(time.Minute)
	require.NoError(t, repo.UpdateStatus(ctx, order.StatusChange{
		OrderID: o.ID(), To: order.StatusConfirmed, ChangedBy: "cashier-1", At: at,
	}))

	reason := "refund"
	require.NoError(t, repo.UpdateStatus(ctx, order.StatusChange{
		OrderID: o.ID(), To: order.StatusCancelled, ChangedBy: "manager-1", Notes: &reason, At: at.Add(time.Minute),
	}))

	err := repo.UpdateStatus(ctx, order.StatusChange{
		OrderID: o.ID(), To: order.StatusConfirmed, ChangedBy: "cashier-1", At: at,
	})
	require.ErrorIs(t, err, order.ErrInvalidTransition)

	err = repo.UpdateStatus(ctx, order.StatusChange{OrderID: "missing", To: order.StatusConfirmed, ChangedBy: "u"})
	require.ErrorIs(t, err, order.ErrNotFound)

	history, err := repo.StatusHistory(ctx, o.ID())
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, order.StatusConfirmed, history[1].To)
	assert.Equal(t, order.StatusCancelled, history[2].To)
	require.NotNil(t, history[2].From)
	assert.Equal(t, order.StatusConfirmed, *history[2].From)
	assert.Equal(t, "refund", *history[2].Notes)

	got, err := repo.FindByID(ctx, o.ID())
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status())
}

func TestOrderRepository_ReportingQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := newStoredOrder(t, "it-sales", "ORD-1772389800000-104")
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.UpdateStatus(ctx, order.StatusChange{
		OrderID: o.ID(), To: order.StatusConfirmed, ChangedBy: "cashier-1", At: integrationNow,
	}))

	n, err := repo.CountByStatus(ctx, order.StatusConfirmed)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	total, err := repo.TotalSales(ctx, "golden-fork", integrationNow.Add(-time.Hour), integrationNow.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, money.Minor(3348))

	none, err := repo.TotalSales(ctx, "nobody", integrationNow.Add(-time.Hour), integrationNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, money.Zero, none)

	confirmed := order.StatusConfirmed
	list, err := repo.FindAll(ctx, order.Filter{RestaurantID: "golden-fork", Status: &confirmed, Number: o.Number()})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, o.ID(), list[0].ID())
}

func TestDiscountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDiscountRepository(testPool)

	def := discount.Definition{
		ID: "it-happy-hour", RestaurantID: "golden-fork", Name: "Happy Hour",
		Type: discount.Percent, Value: 20, Active: true,
	}
	require.NoError(t, repo.Upsert(ctx, def))

	def.Active = false
	require.NoError(t, repo.Upsert(ctx, def))

	got, err := repo.FindByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def, *got)

	_, err = repo.FindByID(ctx, "missing")
	require.ErrorIs(t, err, discount.ErrNotFound)

	err = repo.Upsert(ctx, discount.Definition{ID: "bad", Type: discount.Percent, Value: 150})
	require.ErrorIs(t, err, discount.ErrInvalidValue)
}
