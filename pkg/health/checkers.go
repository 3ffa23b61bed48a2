package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is implemented by connection pools such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p does not answer a ping.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// PoolStats exposes connection pool saturation.
type PoolStats interface {
	AcquiredConns() int32
	MaxConns() int32
}

// PoolSaturationCheck fails when the share of acquired connections reaches
// limit (0..1). stats is called on every run.
func PoolSaturationCheck(stats func() PoolStats, limit float64) CheckFunc {
	return func(context.Context) error {
		s := stats()
		if s.MaxConns() == 0 {
			return nil
		}
		used := float64(s.AcquiredConns()) / float64(s.MaxConns())
		if used >= limit {
			return errors.Errorf("%d of %d connections in use", s.AcquiredConns(), s.MaxConns())
		}
		return nil
	}
}
