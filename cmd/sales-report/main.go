package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/storage/postgres"
)

const maxExport = 100_000

type options struct {
	databaseURL  string
	restaurantID string
	from, to     time.Time
	out          string
}

func main() {
	var (
		opts     options
		from, to string
	)

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.restaurantID, "restaurant", "", "restaurant id to report on")
	flag.StringVar(&from, "from", "", "start of the range, RFC 3339 (default: 24h ago)")
	flag.StringVar(&to, "to", "", "end of the range, RFC 3339 (default: now)")
	flag.StringVar(&opts.out, "out", "", "write matching orders as gzipped NDJSON to this path")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.restaurantID == "" {
		slog.Error("restaurant is required: set --restaurant")
		os.Exit(1)
	}

	var err error
	if opts.from, opts.to, err = parseRange(from, to, time.Now()); err != nil {
		slog.Error("invalid range", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("sales report failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func parseRange(from, to string, now time.Time) (start, end time.Time, err error) {
	end = now
	if to != "" {
		if end, err = time.Parse(time.RFC3339, to); err != nil {
			return start, end, errors.Wrap(err, "parse --to")
		}
	}
	start = end.Add(-24 * time.Hour)
	if from != "" {
		if start, err = time.Parse(time.RFC3339, from); err != nil {
			return start, end, errors.Wrap(err, "parse --from")
		}
	}
	if !start.Before(end) {
		return start, end, errors.New("--from must be before --to")
	}
	return start, end, nil
}

func run(ctx context.Context, opts options) error {
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: opts.databaseURL})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	svc := order.NewService(
		postgres.NewOrderRepository(pool),
		discount.NewCatalog(postgres.NewDiscountRepository(pool)),
	)

	g, gctx := errgroup.WithContext(ctx)

	var summary *order.SalesSummary
	g.Go(func() error {
		s, err := svc.SalesSummary(gctx, opts.restaurantID, opts.from, opts.to)
		if err != nil {
			return errors.Wrap(err, "summary")
		}
		summary = s
		return nil
	})

	var exported int
	if opts.out != "" {
		g.Go(func() error {
			orders, err := svc.ListOrders(gctx, order.Filter{
				RestaurantID: opts.restaurantID,
				From:         &opts.from,
				To:           &opts.to,
				Limit:        maxExport,
			})
			if err != nil {
				return errors.Wrap(err, "list orders")
			}
			if err := export(opts.out, orders); err != nil {
				return errors.Wrap(err, "export")
			}
			exported = len(orders)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	attrs := []any{
		slog.String("restaurant", summary.RestaurantID),
		slog.Time("from", summary.From),
		slog.Time("to", summary.To),
		slog.String("total_sales", summary.TotalSales.String()),
	}
	for _, st := range order.Statuses {
		attrs = append(attrs, slog.Int64(string(st), summary.Counts[st]))
	}
	slog.Info("sales summary", attrs...)
	if opts.out != "" {
		slog.Info("orders exported", slog.String("path", opts.out), slog.Int("count", exported))
	}
	return nil
}

// export writes one JSON object per order to a gzip file at path.
func export(path string, orders []*order.Order) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create file")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close file")
		}
	}()

	zw := pgzip.NewWriter(f)
	bw := bufio.NewWriter(zw)
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	for _, o := range orders {
		e.Reset()
		encodeRow(e, o)
		if _, err := bw.Write(append(e.Bytes(), '\n')); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "close gzip")
	}
	return nil
}

func encodeRow(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID())
	e.FieldStart("orderNumber")
	e.Str(o.Number())
	e.FieldStart("status")
	e.Str(string(o.Status()))
	e.FieldStart("itemCount")
	e.Int(o.ItemCount())
	e.FieldStart("subtotalMinor")
	e.Int64(int64(o.Subtotal()))
	e.FieldStart("discountTotalMinor")
	e.Int64(int64(o.DiscountTotal()))
	e.FieldStart("totalMinor")
	e.Int64(int64(o.Total()))
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt().UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}
