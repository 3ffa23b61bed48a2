// Package postgres implements the order and discount repositories on top of
// a pgx connection pool.
package postgres

import (
	"context"
	"io/fs"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/xiaoyoufung/lmwn-swe-assignment/db"
)

// PoolConfig tunes the connection pool. Zero values keep pgx defaults.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// ConnectAttempts is how many times the initial ping is tried.
	ConnectAttempts int
}

// NewPool creates a pgxpool.Pool with shopspring/decimal registered for
// NUMERIC values and waits until the database answers a ping.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	attempts := max(cfg.ConnectAttempts, 1)
	for i := 1; ; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		if i >= attempts {
			pool.Close()
			return nil, errors.Wrapf(err, "ping database after %d attempts", attempts)
		}

		wait := time.Duration(i) * 2 * time.Second
		zctx.From(ctx).Warn("Database not ready, retrying",
			zap.Int("attempt", i),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RunMigrations applies the embedded migrations that have not run yet.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	sub, err := fs.Sub(db.Migrations, db.MigrationsDir)
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return errors.Wrap(err, "create migration source")
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		return errors.Wrap(err, "create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}

	version, dirty, err := m.Version()
	if err == nil {
		zctx.From(ctx).Info("Migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
