// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A check flips to unhealthy only after failing FailureThreshold times in a
// row and back to healthy after SuccessThreshold consecutive passes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports a problem with a component by returning an error.
type CheckFunc func(ctx context.Context) error

// CheckOption tunes a registered check.
type CheckOption func(*probe)

// WithThresholds overrides the default 3 failures / 1 success thresholds.
func WithThresholds(failures, successes int) CheckOption {
	return func(p *probe) {
		p.failureThreshold = max(failures, 1)
		p.successThreshold = max(successes, 1)
	}
}

// probe is one registered check. step runs on a single goroutine, so the
// streak counters need no locking; healthy and lastErr are read by handlers.
type probe struct {
	name             string
	timeout          time.Duration
	check            CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	fails, passes int
}

func newProbe(name string, timeout time.Duration, check CheckFunc, opts []CheckOption) *probe {
	p := &probe{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.healthy.Store(true)
	return p
}

func (p *probe) step(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.check(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.passes = 0
		if p.fails++; p.fails >= p.failureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	if p.passes++; p.passes >= p.successThreshold {
		p.healthy.Store(true)
	}
}

// state returns "ok" or the reason the probe is unhealthy.
func (p *probe) state() (string, bool) {
	if p.healthy.Load() {
		return "ok", true
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, false
	}
	return "unhealthy", false
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	p.step(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.step(ctx)
		}
	}
}

// Health tracks liveness and readiness of the service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check reported by LiveEndpoint.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check, opts))
}

// AddReadinessCheck registers a check reported by ReadyEndpoint.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check, opts))
}

// Start runs every registered check immediately and then every interval
// until Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	probes := slices.Concat(h.liveness, h.readiness)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop halts the background checks. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady marks the service as accepting traffic or draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshot(false) {
		if _, ok := p.state(); !ok {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(live bool) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if live {
		return slices.Clone(h.liveness)
	}
	return slices.Clone(h.readiness)
}

// LiveEndpoint serves /livez: 200 when every liveness check passes, 503
// otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, true, h.snapshot(true))
}

// ReadyEndpoint serves /readyz: 200 when the service is marked ready and
// every readiness check passes, 503 otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.ready.Load(), h.snapshot(false))
}

// writeReport responds with {"status": "ok"|"unhealthy", "checks": {...}}
// listing every check by name.
func writeReport(w http.ResponseWriter, ready bool, probes []*probe) {
	healthy := ready
	states := make([]string, len(probes))
	for i, p := range probes {
		state, ok := p.state()
		states[i] = state
		healthy = healthy && ok
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	if healthy {
		e.Str("ok")
	} else {
		e.Str("unhealthy")
	}
	if len(probes) > 0 || !ready {
		e.FieldStart("checks")
		e.ObjStart()
		if !ready {
			e.FieldStart("_readiness")
			e.Str("service is not ready")
		}
		for i, p := range probes {
			e.FieldStart(p.name)
			e.Str(states[i])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
