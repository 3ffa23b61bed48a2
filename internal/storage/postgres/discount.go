package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
)

const (
	selectDiscountSQL = `SELECT discount_id, restaurant_id, name, type, value, is_active, expires_at
		FROM discounts WHERE discount_id = $1`

	upsertDiscountSQL = `INSERT INTO discounts (discount_id, restaurant_id, name, type, value, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (discount_id) DO UPDATE SET
			restaurant_id = EXCLUDED.restaurant_id,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			is_active = EXCLUDED.is_active,
			expires_at = EXCLUDED.expires_at`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
	tracing
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool, opts ...Option) *DiscountRepository {
	return &DiscountRepository{pool: pool, tracing: newTracing(opts)}
}

// FindByID returns the definition with the given id, active or not.
// Returns discount.ErrNotFound when no row matches.
func (r *DiscountRepository) FindByID(ctx context.Context, id string) (_ *discount.Definition, err error) {
	ctx, span := r.start(ctx, "FindDiscount", attribute.String("discount.id", id))
	defer func() { finish(span, err) }()

	rows, err := r.pool.Query(ctx, selectDiscountSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "find discount %q", id)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanDefinition)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find discount %q", id)
	}
	return &d, nil
}

// Upsert inserts d or overwrites the stored definition with the same id.
func (r *DiscountRepository) Upsert(ctx context.Context, d discount.Definition) (err error) {
	ctx, span := r.start(ctx, "UpsertDiscount", attribute.String("discount.id", d.ID))
	defer func() { finish(span, err) }()

	if err := discount.CheckValue(d.Type, d.Value); err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, upsertDiscountSQL,
		d.ID, d.RestaurantID, d.Name, string(d.Type), d.Value, d.Active, d.ExpiresAt,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert discount %q", d.ID)
	}
	return nil
}

func scanDefinition(row pgx.CollectableRow) (discount.Definition, error) {
	var (
		d   discount.Definition
		typ string
	)
	err := row.Scan(&d.ID, &d.RestaurantID, &d.Name, &typ, &d.Value, &d.Active, &d.ExpiresAt)
	d.Type = discount.Type(typ)
	return d, err
}
