package guard

import (
	"errors"
	"sync"
	"time"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// CBState is the three-state circuit breaker state machine (spec §4.2
// item 3), adapted from the teacher's resilience.State.
// Its numeric values match the circuit_state gauge encoding
// (0=closed, 1=half_open, 2=open).
type CBState int

const (
	CBClosed CBState = iota
	CBHalfOpen
	CBOpen
)

func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "closed"
	case CBOpen:
		return "open"
	case CBHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute when the breaker is open (or
// half-open and already at its trial-request cap).
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig mirrors the teacher's resilience.Config, plus
// an injected clock so state transitions are deterministic in tests
// and in the load-characterization harness. Closed -> Open trips on a
// rolling failure ratio, not a consecutive-failure count (spec §4.2):
// WindowSize is the number of most-recent Closed-state observations
// considered (cb_error_threshold_count), and ErrorThresholdPct is the
// failure-ratio percentage (0-100) that must be exceeded over that
// window (cb_error_threshold_pct) before the breaker trips.
type CircuitBreakerConfig struct {
	WindowSize        int
	ErrorThresholdPct float64
	OpenFor           time.Duration
	HalfOpenMax       int
	Clock             ports.Clock
}

// CircuitBreaker guards a single dependency.
type CircuitBreaker struct {
	mu           sync.Mutex
	cfg          CircuitBreakerConfig
	state        CBState
	window       []bool // ring buffer of Closed-state outcomes; true = failure
	windowPos    int
	windowFilled int
	windowFails  int
	successes    int
	halfOpenReqs int
	openedAt     time.Time
}

// NewCircuitBreaker constructs a breaker starting Closed.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 5
	}
	if cfg.ErrorThresholdPct <= 0 {
		cfg.ErrorThresholdPct = 50
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	return &CircuitBreaker{cfg: cfg, state: CBClosed, window: make([]bool, cfg.WindowSize)}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed without executing it,
// transitioning Open -> HalfOpen once OpenFor has elapsed. Used by the
// Dependency Wrapper's precheck (spec §4.2 item 4).
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.allowLocked()
}

func (cb *CircuitBreaker) allowLocked() bool {
	switch cb.state {
	case CBOpen:
		if cb.cfg.Clock.Now().Sub(cb.openedAt) >= cb.cfg.OpenFor {
			cb.setStateLocked(CBHalfOpen)
			cb.halfOpenReqs = 1
			return true
		}
		return false
	case CBHalfOpen:
		if cb.halfOpenReqs >= cb.cfg.HalfOpenMax {
			return false
		}
		cb.halfOpenReqs++
		return true
	default:
		return true
	}
}

// Execute runs fn under the breaker's protection, returning
// ErrCircuitOpen without calling fn if the breaker denies the call.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.Report(err == nil)
	return err
}

// Report records the outcome of a call that Allow already admitted.
func (cb *CircuitBreaker) Report(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if success {
		cb.onSuccessLocked()
	} else {
		cb.onFailureLocked()
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	switch cb.state {
	case CBHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			cb.setStateLocked(CBClosed)
		}
	case CBClosed:
		cb.recordObservationLocked(false)
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	switch cb.state {
	case CBHalfOpen:
		cb.setStateLocked(CBOpen)
	case CBClosed:
		cb.recordObservationLocked(true)
	}
}

// recordObservationLocked pushes one Closed-state outcome into the
// rolling window, evicting the oldest observation once the window is
// full, then trips the breaker open when the failure ratio over the
// window strictly exceeds ErrorThresholdPct (spec §4.2: "Closed -> Open
// when rolling failure ratio exceeds cb_error_threshold_pct over a
// window of cb_error_threshold_count observations"). The breaker
// cannot trip until the window has accumulated a full
// cb_error_threshold_count observations.
func (cb *CircuitBreaker) recordObservationLocked(failed bool) {
	if cb.windowFilled == len(cb.window) && cb.window[cb.windowPos] {
		cb.windowFails--
	}
	cb.window[cb.windowPos] = failed
	if failed {
		cb.windowFails++
	}
	cb.windowPos = (cb.windowPos + 1) % len(cb.window)
	if cb.windowFilled < len(cb.window) {
		cb.windowFilled++
	}

	if cb.windowFilled < len(cb.window) {
		return
	}
	ratioPct := float64(cb.windowFails) / float64(len(cb.window)) * 100
	if ratioPct > cb.cfg.ErrorThresholdPct {
		cb.setStateLocked(CBOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(s CBState) {
	if cb.state == s {
		return
	}
	cb.state = s
	cb.windowPos = 0
	cb.windowFilled = 0
	cb.windowFails = 0
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.successes = 0
	cb.halfOpenReqs = 0
	if s == CBOpen {
		cb.openedAt = cb.cfg.Clock.Now()
	}
}

// Reset forces the breaker back to Closed. Used by tests and between
// harness scenarios.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setStateLocked(CBClosed)
}

// CircuitBreakerRegistry lazily creates and retains one breaker per
// dependency name.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	newCB    func(dependency string) *CircuitBreaker
}

// NewCircuitBreakerRegistry constructs a registry. newCB builds a
// fresh breaker for a dependency name the first time it's seen.
func NewCircuitBreakerRegistry(newCB func(dependency string) *CircuitBreaker) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{breakers: make(map[string]*CircuitBreaker), newCB: newCB}
}

// For returns the breaker for dependency, creating it on first use.
func (r *CircuitBreakerRegistry) For(dependency string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[dependency]; ok {
		return cb
	}
	cb := r.newCB(dependency)
	r.breakers[dependency] = cb
	return cb
}

// ResetAll forces every known breaker back to Closed.
func (r *CircuitBreakerRegistry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}
