package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/storage/postgres"
)

// seedNamespace derives stable ids so that re-running the seed upserts the
// same catalog rows instead of duplicating them.
var seedNamespace = uuid.MustParse("5b0c7f1e-3a7d-4c55-9d1e-7d1f2a6c9e40")

func stableID(name string) string {
	return uuid.NewSHA1(seedNamespace, []byte(name)).String()
}

var (
	goldenFork   = stableID("restaurant/the-golden-fork")
	sunsetBistro = stableID("restaurant/sunset-bistro")

	cashier = stableID("user/charlie-cashier")
	manager = stableID("user/bob-manager")
)

type menuItem struct {
	name  string
	price money.Minor
}

var menu = map[string]menuItem{
	"caesar":   {"Caesar Salad", 895},
	"garlic":   {"Garlic Bread", 595},
	"wings":    {"Buffalo Wings", 1295},
	"salmon":   {"Grilled Salmon", 2495},
	"ribeye":   {"Ribeye Steak", 3495},
	"pizza":    {"Margherita Pizza", 1695},
	"lava":     {"Chocolate Lava Cake", 795},
	"tiramisu": {"Tiramisu", 895},
	"coffee":   {"Coffee", 350},
}

func catalog(now time.Time) []discount.Definition {
	at := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	defs := []discount.Definition{
		{ID: stableID("discount/happy-hour"), RestaurantID: goldenFork, Name: "Happy Hour 20%", Type: discount.Percent, Value: 20, ExpiresAt: at(2026, time.December, 31)},
		{ID: stableID("discount/senior"), RestaurantID: goldenFork, Name: "Senior Discount", Type: discount.Percent, Value: 15},
		{ID: stableID("discount/five-off"), RestaurantID: goldenFork, Name: "$5 Off", Type: discount.Fixed, Value: 500, ExpiresAt: at(2026, time.March, 31)},
		{ID: stableID("discount/vip"), RestaurantID: goldenFork, Name: "VIP Member 25%", Type: discount.Percent, Value: 25},
		{ID: stableID("discount/lunch"), RestaurantID: sunsetBistro, Name: "Lunch Special 10%", Type: discount.Percent, Value: 10, ExpiresAt: at(2026, time.June, 30)},
		{ID: stableID("discount/ten-off"), RestaurantID: sunsetBistro, Name: "$10 Off Orders Above $50", Type: discount.Fixed, Value: 1000},
	}
	for i := range defs {
		defs[i].Active = true
		// Keep demo discounts usable after their nominal expiry.
		if defs[i].ExpiresAt != nil && !defs[i].ExpiresAt.After(now) {
			defs[i].ExpiresAt = nil
		}
	}
	return defs
}

type portion struct {
	item string
	qty  int
}

type demoOrder struct {
	table     string
	createdBy string
	items     []portion
	discounts []string
	// steps advance the order after creation.
	steps func(ctx context.Context, svc *order.Service, id string) error
}

func main() {
	var (
		databaseURL string
		attempts    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&attempts, "connect-attempts", 5, "number of connection attempts")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, postgres.PoolConfig{URL: databaseURL, ConnectAttempts: attempts}); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, cfg postgres.PoolConfig) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	discounts := postgres.NewDiscountRepository(pool)
	for _, d := range catalog(time.Now()) {
		if err := discounts.Upsert(ctx, d); err != nil {
			return errors.Wrapf(err, "upsert discount %q", d.Name)
		}
		slog.Info("upserted discount",
			slog.String("id", d.ID),
			slog.String("name", d.Name),
		)
	}

	svc := order.NewService(postgres.NewOrderRepository(pool), discount.NewCatalog(discounts))
	for i, demo := range demoOrders() {
		if err := seedOrder(ctx, svc, demo); err != nil {
			return errors.Wrapf(err, "seed order %d", i+1)
		}
	}

	slog.Info("restaurants",
		slog.String("the_golden_fork", goldenFork),
		slog.String("sunset_bistro", sunsetBistro),
	)
	return nil
}

func seedOrder(ctx context.Context, svc *order.Service, demo demoOrder) error {
	table := stableID("table/" + demo.table)
	req := order.CreateOrderRequest{
		RestaurantID: goldenFork,
		TableID:      &table,
		CreatedBy:    demo.createdBy,
	}
	for _, p := range demo.items {
		item := menu[p.item]
		req.Items = append(req.Items, order.LineRequest{
			ItemID:    stableID("item/" + p.item),
			Name:      item.name,
			Quantity:  p.qty,
			UnitPrice: item.price,
		})
	}
	for _, key := range demo.discounts {
		req.DiscountIDs = append(req.DiscountIDs, stableID("discount/"+key))
	}

	o, err := svc.CreateOrder(ctx, req)
	if err != nil {
		return errors.Wrap(err, "create")
	}
	if demo.steps != nil {
		if err := demo.steps(ctx, svc, o.ID()); err != nil {
			return err
		}
		if o, err = svc.GetOrder(ctx, o.ID()); err != nil {
			return errors.Wrap(err, "reload")
		}
	}

	slog.Info("created order",
		slog.String("id", o.ID()),
		slog.String("number", o.Number()),
		slog.String("status", string(o.Status())),
		slog.String("subtotal", o.Subtotal().String()),
		slog.String("total", o.Total().String()),
	)
	return nil
}

func demoOrders() []demoOrder {
	confirm := func(by, notes string) func(context.Context, *order.Service, string) error {
		return func(ctx context.Context, svc *order.Service, id string) error {
			_, err := svc.UpdateOrderStatus(ctx, order.UpdateStatusRequest{
				OrderID:   id,
				Status:    order.StatusConfirmed,
				ChangedBy: by,
				Notes:     &notes,
			})
			if err != nil {
				return errors.Wrap(err, "confirm")
			}
			return nil
		}
	}
	return []demoOrder{
		{
			// 4185 - 837 - 500 = 2848
			table:     "table-1",
			createdBy: cashier,
			items:     []portion{{"caesar", 1}, {"salmon", 1}, {"lava", 1}},
			discounts: []string{"happy-hour", "five-off"},
			steps:     confirm(cashier, "Order confirmed"),
		},
		{
			// 7935 - 1190 - 1983 = 4762
			table:     "vip-room",
			createdBy: manager,
			items:     []portion{{"ribeye", 2}, {"garlic", 1}, {"coffee", 1}},
			discounts: []string{"senior", "vip"},
			steps:     confirm(manager, "Order confirmed by manager"),
		},
		{
			// 3885 - 500 - 777 = 2608
			table:     "patio-a",
			createdBy: cashier,
			items:     []portion{{"wings", 1}, {"pizza", 1}, {"tiramisu", 1}},
			discounts: []string{"five-off", "happy-hour"},
		},
		{
			table:     "table-2",
			createdBy: cashier,
			items:     []portion{{"coffee", 2}},
			steps: func(ctx context.Context, svc *order.Service, id string) error {
				if err := confirm(cashier, "Order confirmed")(ctx, svc, id); err != nil {
					return err
				}
				_, err := svc.CancelOrder(ctx, order.CancelOrderRequest{
					OrderID:     id,
					Reason:      "refund",
					CancelledBy: manager,
				})
				if err != nil {
					return errors.Wrap(err, "cancel")
				}
				return nil
			},
		},
	}
}
