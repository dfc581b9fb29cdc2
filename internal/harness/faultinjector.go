package harness

import (
	"sync"
	"time"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// InjectionPoint is one of the five fault-injection hooks the guard
// and dependency wrapper check before doing real work.
type InjectionPoint string

const (
	InjectDBTimeout          InjectionPoint = "DB_TIMEOUT"
	InjectExternal5xxBurst   InjectionPoint = "EXTERNAL_5XX_BURST"
	InjectKillswitchToggle   InjectionPoint = "KILLSWITCH_TOGGLE"
	InjectRateLimitSpike     InjectionPoint = "RATE_LIMIT_SPIKE"
	InjectGuardInternalError InjectionPoint = "GUARD_INTERNAL_ERROR"
)

var allInjectionPoints = []InjectionPoint{
	InjectDBTimeout, InjectExternal5xxBurst, InjectKillswitchToggle,
	InjectRateLimitSpike, InjectGuardInternalError,
}

// injectionState is one point's enabled/params/TTL state.
type injectionState struct {
	enabled   bool
	params    map[string]any
	enabledAt time.Duration // monotonic millis at enable time
	ttl       time.Duration // 0 = no expiry
}

// FaultInjector is the load harness's controlled-fault singleton: each
// test run (or a dedicated harness run against a staging deployment)
// enables/disables injection points, and the guard-facing code under
// test consults IsEnabled/Params before doing its real work. It is
// deliberately a single process-wide instance — exactly like the
// original's classmethod-backed singleton — since that is the contract
// test helpers and the guard layer they drive agree on.
type FaultInjector struct {
	mu     sync.Mutex
	clock  ports.Clock
	points map[InjectionPoint]*injectionState
}

var (
	instanceMu sync.Mutex
	instance   *FaultInjector
)

// GetInstance returns the process-wide FaultInjector, constructing it
// on first use with the production system clock.
func GetInstance() *FaultInjector {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = newFaultInjector(ports.NewSystemClock())
	}
	return instance
}

// ResetInstance drops the singleton so the next GetInstance call starts
// fresh. Call this in test teardown — it is the only supported way to
// guarantee no injection point leaks into the next test.
func ResetInstance() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}

func newFaultInjector(clock ports.Clock) *FaultInjector {
	points := make(map[InjectionPoint]*injectionState, len(allInjectionPoints))
	for _, p := range allInjectionPoints {
		points[p] = &injectionState{}
	}
	return &FaultInjector{clock: clock, points: points}
}

// Enable turns on injection at point with the given params and TTL
// (0 means no expiry). ttl is measured from the call's monotonic
// timestamp, not wall-clock, so injected faults survive clock skew
// during a long-running scenario.
func (f *FaultInjector) Enable(point InjectionPoint, params map[string]any, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.points[point]
	state.enabled = true
	state.params = params
	state.enabledAt = time.Duration(f.clock.MonotonicMillis()) * time.Millisecond
	state.ttl = ttl
}

// Disable turns off injection at point.
func (f *FaultInjector) Disable(point InjectionPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.points[point]
	state.enabled = false
	state.params = nil
}

// DisableAll turns off every injection point — the guaranteed-reset
// path callers should defer immediately after a scenario run, so a
// panic mid-scenario can never leave a fault wedged on for later tests.
func (f *FaultInjector) DisableAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, state := range f.points {
		state.enabled = false
		state.params = nil
	}
}

// IsEnabled reports whether point is currently active, auto-expiring it
// (and returning false) if its TTL has elapsed.
func (f *FaultInjector) IsEnabled(point InjectionPoint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.points[point]
	if !state.enabled {
		return false
	}
	if state.ttl > 0 {
		now := time.Duration(f.clock.MonotonicMillis()) * time.Millisecond
		if now-state.enabledAt > state.ttl {
			state.enabled = false
			return false
		}
	}
	return true
}

// Params returns a copy of point's current injection params.
func (f *FaultInjector) Params(point InjectionPoint) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.points[point].params
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
