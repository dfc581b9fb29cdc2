package guard

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/gelka-enerji/invoice-ops/internal/guardconfig"
	"github.com/gelka-enerji/invoice-ops/internal/ports"
	"github.com/gelka-enerji/invoice-ops/internal/svcerrors"
)

// OpKind distinguishes read and write dependency calls — write calls
// are not retried by default (spec §4.2 item 4), since a retried
// write risks duplicating a side effect the first attempt already
// committed.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
)

// Sleeper abstracts time.Sleep so the harness and tests can run the
// backoff schedule without real wall-clock delay.
type Sleeper func(ctx context.Context, d time.Duration)

// RealSleep blocks for d or until ctx is done, whichever comes first.
func RealSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Wrapper is the Dependency Wrapper of spec §4.2 item 4: a circuit
// breaker precheck, a per-call timeout, bounded retry with
// exponential backoff and jitter, and a fail-open policy on read
// exhaustion. Grounded on the teacher's resilience.Retry combined
// with resilience.CircuitBreaker.Execute, generalized into a single
// call path shared by every outbound dependency.
type Wrapper struct {
	cfg     *guardconfig.Config
	cbs     *CircuitBreakerRegistry
	metrics ports.MetricsSink
	rng     ports.Rng
	sleep   Sleeper
}

// NewWrapper constructs a Wrapper. A nil rng defaults to the package
// global math/rand source; a nil sleep defaults to RealSleep.
func NewWrapper(cfg *guardconfig.Config, cbs *CircuitBreakerRegistry, metrics ports.MetricsSink, rng ports.Rng, sleep Sleeper) *Wrapper {
	if metrics == nil {
		metrics = ports.NoopMetricsSink{}
	}
	if sleep == nil {
		sleep = RealSleep
	}
	return &Wrapper{cfg: cfg, cbs: cbs, metrics: metrics, rng: rng, sleep: sleep}
}

// Call executes fn against dependency under full guard protection.
// fn is invoked at least once; on a read-path call that exhausts all
// retries, Call returns nil (fail-open) when FailOpenEnabled is set,
// incrementing dependency_call_total{outcome="fail_open"} rather than
// returning an error so the caller can proceed with a degraded result.
func (w *Wrapper) Call(ctx context.Context, dependency string, op OpKind, fn func(ctx context.Context) error) error {
	cb := w.cbs.For(dependency)
	if w.cfg.CircuitBreaker.PrecheckEnabled && !cb.Allow() {
		w.metrics.Inc("dependency_call_total", map[string]string{"dependency": dependency, "outcome": "circuit_open"})
		return svcerrors.New(svcerrors.CodeCircuitOpen, "circuit breaker open for "+dependency)
	}

	maxAttempts := w.cfg.MaxAttemptsFor(dependency)
	if op == OpWrite && !w.cfg.Wrapper.RetryOnWrite {
		maxAttempts = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	timeout := time.Duration(w.cfg.TimeoutFor(dependency) * float64(time.Second))
	backoff := time.Duration(w.cfg.Wrapper.BackoffBaseMs) * time.Millisecond
	backoffCap := time.Duration(w.cfg.Wrapper.BackoffCapMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(callCtx)
		cancel()

		cb.Report(err == nil)
		if err == nil {
			w.metrics.Inc("dependency_call_total", map[string]string{"dependency": dependency, "outcome": "success"})
			return nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		w.metrics.Inc("dependency_retry_total", map[string]string{"dependency": dependency})
		w.sleep(ctx, withJitter(backoff, w.cfg.Wrapper.JitterPct, w.rng))
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}

	if op == OpRead && w.cfg.Wrapper.FailOpenEnabled {
		w.metrics.Inc("dependency_call_total", map[string]string{"dependency": dependency, "outcome": "fail_open"})
		return nil
	}

	w.metrics.Inc("dependency_call_total", map[string]string{"dependency": dependency, "outcome": "exhausted"})
	return svcerrors.Wrap(svcerrors.CodeDependencyExhausted, "dependency calls exhausted for "+dependency, lastErr)
}

func withJitter(d time.Duration, jitterPct float64, rng ports.Rng) time.Duration {
	if jitterPct <= 0 || d <= 0 {
		return d
	}
	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64()
	}
	delta := float64(d) * jitterPct
	offset := f*delta*2 - delta
	out := time.Duration(math.Max(0, float64(d)+offset))
	return out
}
