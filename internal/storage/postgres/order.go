package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order"
)

const (
	orderColumns = `order_id, order_number, restaurant_id, table_id, created_by_user_id, status, created_at, updated_at`

	selectOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	selectItemsSQL = `SELECT order_id, order_item_id, item_id, item_name_snapshot, quantity, unit_price_minor
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	selectDiscountsSQL = `SELECT order_id, order_discount_id, discount_id, type, value, applied_amount_minor, created_at
		FROM order_discounts WHERE order_id = ANY($1) ORDER BY order_id, position`

	insertOrderSQL = `INSERT INTO orders (order_id, order_number, restaurant_id, table_id, created_by_user_id, status,
		subtotal_minor, discount_total_minor, total_minor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	updateOrderSQL = `UPDATE orders SET table_id = $2, subtotal_minor = $3,
		discount_total_minor = $4, total_minor = $5, updated_at = $6
		WHERE order_id = $1`

	deleteItemsSQL     = `DELETE FROM order_items WHERE order_id = $1`
	deleteDiscountsSQL = `DELETE FROM order_discounts WHERE order_id = $1`

	insertItemSQL = `INSERT INTO order_items (order_item_id, order_id, position, item_id, item_name_snapshot,
		quantity, unit_price_minor, line_subtotal_minor, line_discount_minor, line_total_minor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertDiscountSQL = `INSERT INTO order_discounts (order_discount_id, order_id, position, discount_id, type,
		value, applied_amount_minor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	lockStatusSQL = `SELECT status FROM orders WHERE order_id = $1 FOR UPDATE`
	setStatusSQL  = `UPDATE orders SET status = $2, updated_at = $3 WHERE order_id = $1`

	insertHistorySQL = `INSERT INTO order_status_history (history_id, order_id, from_status, to_status, notes,
		changed_by_user_id, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectHistorySQL = `SELECT history_id, order_id, from_status, to_status, notes, changed_by_user_id, changed_at
		FROM order_status_history WHERE order_id = $1 ORDER BY seq`

	countByStatusSQL = `SELECT count(*) FROM orders WHERE status = $1`

	totalSalesSQL = `SELECT COALESCE(SUM(total_minor), 0) FROM orders
		WHERE restaurant_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4`

	uniqueViolation     = "23505"
	orderNumberUniqueIx = "orders_order_number_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
	tracing
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool, opts ...Option) *OrderRepository {
	return &OrderRepository{pool: pool, tracing: newTracing(opts)}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type orderRow struct {
	ID           string
	Number       string
	RestaurantID string
	TableID      *string
	CreatedBy    string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FindByID returns the order with its lines and applied discounts.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (_ *order.Order, err error) {
	ctx, span := r.start(ctx, "FindByID", attribute.String("order.id", id))
	defer func() { finish(span, err) }()

	rows, err := r.pool.Query(ctx, selectOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "find order %q", id)
	}
	row, err := pgx.CollectExactlyOneRow(rows, scanOrderRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{Resource: "order", ID: id}
		}
		return nil, errors.Wrapf(err, "find order %q", id)
	}

	orders, err := hydrate(ctx, r.pool, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return orders[0], nil
}

// FindAll returns orders matching f, newest first.
func (r *OrderRepository) FindAll(ctx context.Context, f order.Filter) (_ []*order.Order, err error) {
	ctx, span := r.start(ctx, "FindAll")
	defer func() { finish(span, err) }()

	sql, args := buildFindAll(f)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orderRows, err := pgx.CollectRows(rows, scanOrderRow)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return hydrate(ctx, r.pool, orderRows)
}

// buildFindAll renders the filtered listing query. Only placeholders are
// interpolated; values travel as arguments.
func buildFindAll(f order.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.RestaurantID != "" {
		where = append(where, "restaurant_id = "+arg(f.RestaurantID))
	}
	if f.Status != nil {
		where = append(where, "status = "+arg(string(*f.Status)))
	}
	if f.Number != "" {
		p := arg(f.Number)
		where = append(where, "(order_number = "+p+" OR order_id = "+p+")")
	}
	if f.From != nil {
		where = append(where, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "created_at < "+arg(*f.To))
	}

	var b strings.Builder
	b.WriteString("SELECT " + orderColumns + " FROM orders")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, order_id")
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + arg(f.Limit))
	}
	return b.String(), args
}

// StatusHistory returns the audit trail of an order, oldest first.
func (r *OrderRepository) StatusHistory(ctx context.Context, orderID string) (_ []order.StatusHistory, err error) {
	ctx, span := r.start(ctx, "StatusHistory", attribute.String("order.id", orderID))
	defer func() { finish(span, err) }()

	rows, err := r.pool.Query(ctx, selectHistorySQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "status history of %q", orderID)
	}
	return pgx.CollectRows(rows, scanHistory)
}

// Create inserts the order, its lines and discounts, and the creation
// history record in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (err error) {
	ctx, span := r.start(ctx, "Create", attribute.String("order.id", o.ID()))
	defer func() { finish(span, err) }()

	creation := order.CreationRecord(uuid.NewString(), o)
	if err := creation.Validate(); err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID(), o.Number(), o.RestaurantID(), o.TableID(), o.CreatedBy(), string(o.Status()),
			int64(o.Subtotal()), int64(o.DiscountTotal()), int64(o.Total()),
			o.CreatedAt(), o.UpdatedAt(),
		)
		if err != nil {
			return err
		}
		if err := insertChildren(ctx, tx, o); err != nil {
			return err
		}
		return insertHistory(ctx, tx, creation)
	})
	if err != nil {
		if isDuplicateNumber(err) {
			return errors.Wrapf(order.ErrDuplicateNumber, "order number %q", o.Number())
		}
		return errors.Wrapf(err, "create order %q", o.ID())
	}
	return nil
}

// Update locks the order row and, while the stored status is still PENDING,
// rewrites its amounts and replaces its lines and discounts. Status is only
// ever changed by UpdateStatus.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) (err error) {
	ctx, span := r.start(ctx, "Update", attribute.String("order.id", o.ID()))
	defer func() { finish(span, err) }()

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current string
		if err := tx.QueryRow(ctx, lockStatusSQL, o.ID()).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &order.NotFoundError{Resource: "order", ID: o.ID()}
			}
			return err
		}
		if s := order.Status(current); s != order.StatusPending {
			return &order.InvalidStateError{Op: "update order", Status: s}
		}

		if _, err := tx.Exec(ctx, updateOrderSQL,
			o.ID(), o.TableID(),
			int64(o.Subtotal()), int64(o.DiscountTotal()), int64(o.Total()),
			o.UpdatedAt(),
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteItemsSQL, o.ID()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteDiscountsSQL, o.ID()); err != nil {
			return err
		}
		return insertChildren(ctx, tx, o)
	})
	if err != nil {
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrInvalidState) {
			return err
		}
		return errors.Wrapf(err, "update order %q", o.ID())
	}
	return nil
}

// UpdateStatus locks the order row, checks the transition against the
// stored status, updates it and appends the history record.
func (r *OrderRepository) UpdateStatus(ctx context.Context, c order.StatusChange) (err error) {
	ctx, span := r.start(ctx, "UpdateStatus",
		attribute.String("order.id", c.OrderID),
		attribute.String("order.status", string(c.To)),
	)
	defer func() { finish(span, err) }()

	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	c.At = at

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current string
		if err := tx.QueryRow(ctx, lockStatusSQL, c.OrderID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &order.NotFoundError{Resource: "order", ID: c.OrderID}
			}
			return err
		}
		from := order.Status(current)
		if !from.CanTransitionTo(c.To) {
			return &order.InvalidTransitionError{From: from, To: c.To}
		}

		h := c.Record(uuid.NewString(), from)
		if err := h.Validate(); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, setStatusSQL, c.OrderID, string(c.To), at); err != nil {
			return err
		}
		return insertHistory(ctx, tx, h)
	})
	if err != nil {
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrInvalidTransition) || errors.Is(err, order.ErrValidation) {
			return err
		}
		return errors.Wrapf(err, "update status of %q", c.OrderID)
	}
	return nil
}

// CountByStatus counts orders in status s.
func (r *OrderRepository) CountByStatus(ctx context.Context, s order.Status) (n int64, err error) {
	ctx, span := r.start(ctx, "CountByStatus", attribute.String("order.status", string(s)))
	defer func() { finish(span, err) }()

	if err := r.pool.QueryRow(ctx, countByStatusSQL, string(s)).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count %s orders", s)
	}
	return n, nil
}

// TotalSales sums the totals of order.SalesStatus orders created in
// [from, to).
func (r *OrderRepository) TotalSales(ctx context.Context, restaurantID string, from, to time.Time) (_ money.Minor, err error) {
	ctx, span := r.start(ctx, "TotalSales", attribute.String("restaurant.id", restaurantID))
	defer func() { finish(span, err) }()

	// SUM(bigint) is NUMERIC; scanned through the registered decimal codec.
	var sum decimal.Decimal
	err = r.pool.QueryRow(ctx, totalSalesSQL, restaurantID, string(order.SalesStatus), from, to).Scan(&sum)
	if err != nil {
		return 0, errors.Wrap(err, "total sales")
	}
	return money.Minor(sum.IntPart()), nil
}

func insertChildren(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	b := &pgx.Batch{}
	for i, l := range o.Lines() {
		b.Queue(insertItemSQL,
			l.ID(), o.ID(), i, l.ItemID(), l.Name(),
			l.Quantity(), int64(l.UnitPrice()),
			int64(l.Subtotal()), int64(l.Discount()), int64(l.Total()),
		)
	}
	for i, d := range o.Discounts() {
		id := d.ID()
		if id == "" {
			id = uuid.NewString()
		}
		b.Queue(insertDiscountSQL,
			id, o.ID(), i, d.DiscountID(), string(d.Type()),
			d.Value(), int64(d.Amount()), d.CreatedAt(),
		)
	}
	return sendBatch(ctx, tx, b)
}

func insertHistory(ctx context.Context, tx pgx.Tx, h order.StatusHistory) error {
	var from *string
	if h.From != nil {
		s := string(*h.From)
		from = &s
	}
	_, err := tx.Exec(ctx, insertHistorySQL,
		h.ID, h.OrderID, from, string(h.To), h.Notes, h.ChangedBy, h.ChangedAt,
	)
	return err
}

func sendBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// hydrate loads lines and discounts for the given rows with one query each
// and rebuilds the aggregates in row order.
func hydrate(ctx context.Context, q querier, rows []orderRow) ([]*order.Order, error) {
	if len(rows) == 0 {
		return []*order.Order{}, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	lines, err := loadLines(ctx, q, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load order lines")
	}
	discounts, err := loadDiscounts(ctx, q, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load order discounts")
	}

	orders := make([]*order.Order, 0, len(rows))
	for _, row := range rows {
		o, err := order.Reconstitute(order.Snapshot{
			ID:           row.ID,
			Number:       row.Number,
			RestaurantID: row.RestaurantID,
			TableID:      row.TableID,
			CreatedBy:    row.CreatedBy,
			Status:       order.Status(row.Status),
			Lines:        lines[row.ID],
			Discounts:    discounts[row.ID],
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "reconstitute order %q", row.ID)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func loadLines(ctx context.Context, q querier, ids []string) (map[string][]order.Line, error) {
	rows, err := q.Query(ctx, selectItemsSQL, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]order.Line, len(ids))
	var (
		orderID string
		p       order.LineParams
		price   int64
	)
	_, err = pgx.ForEachRow(rows, []any{&orderID, &p.ID, &p.ItemID, &p.Name, &p.Quantity, &price}, func() error {
		p.UnitPrice = money.Minor(price)
		l, err := order.NewLine(p)
		if err != nil {
			return err
		}
		out[orderID] = append(out[orderID], l)
		return nil
	})
	return out, err
}

func loadDiscounts(ctx context.Context, q querier, ids []string) (map[string][]order.AppliedDiscount, error) {
	rows, err := q.Query(ctx, selectDiscountsSQL, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]order.AppliedDiscount, len(ids))
	var (
		p      order.AppliedDiscountParams
		typ    string
		amount int64
	)
	_, err = pgx.ForEachRow(rows, []any{&p.OrderID, &p.ID, &p.DiscountID, &typ, &p.Value, &amount, &p.CreatedAt}, func() error {
		p.Type = discount.Type(typ)
		p.Amount = money.Minor(amount)
		d, err := order.ReconstituteAppliedDiscount(p)
		if err != nil {
			return err
		}
		out[p.OrderID] = append(out[p.OrderID], d)
		return nil
	})
	return out, err
}

func scanOrderRow(row pgx.CollectableRow) (orderRow, error) {
	var r orderRow
	err := row.Scan(&r.ID, &r.Number, &r.RestaurantID, &r.TableID, &r.CreatedBy, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func scanHistory(row pgx.CollectableRow) (order.StatusHistory, error) {
	var (
		h    order.StatusHistory
		from *string
		to   string
	)
	if err := row.Scan(&h.ID, &h.OrderID, &from, &to, &h.Notes, &h.ChangedBy, &h.ChangedAt); err != nil {
		return h, err
	}
	if from != nil {
		s := order.Status(*from)
		h.From = &s
	}
	h.To = order.Status(to)
	return h, nil
}

func isDuplicateNumber(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == orderNumberUniqueIx
}
