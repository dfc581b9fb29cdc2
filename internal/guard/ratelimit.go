package guard

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// RateLimiter enforces a per-(endpoint, tenant) token bucket, keyed
// lazily on first use (spec §4.2 item 2). Grounded on the teacher's
// infrastructure/ratelimit.RateLimiter, generalized from a single
// process-wide limiter to a keyed registry.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	metrics  ports.MetricsSink
	lookupFn func(endpoint string) int
}

// NewRateLimiter constructs a RateLimiter. perMinuteFor returns the
// effective per-minute quota for an endpoint (e.g.
// guardconfig.Config.RateLimitFor).
func NewRateLimiter(perMinuteFor func(endpoint string) int, metrics ports.MetricsSink) *RateLimiter {
	if metrics == nil {
		metrics = ports.NoopMetricsSink{}
	}
	return &RateLimiter{
		buckets:  make(map[string]*rate.Limiter),
		metrics:  metrics,
		lookupFn: perMinuteFor,
	}
}

// Allow reports whether a request to endpoint on behalf of tenantID
// may proceed, consuming one token if so.
func (r *RateLimiter) Allow(endpoint, tenantID string) bool {
	limiter := r.limiterFor(endpoint, tenantID)
	ok := limiter.Allow()
	if !ok {
		r.metrics.Inc("rate_limit_rejected_total", map[string]string{"endpoint": endpoint})
	}
	return ok
}

func (r *RateLimiter) limiterFor(endpoint, tenantID string) *rate.Limiter {
	key := endpoint + "|" + tenantID

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.buckets[key]; ok {
		return l
	}

	perMinute := 600
	if r.lookupFn != nil {
		if v := r.lookupFn(endpoint); v > 0 {
			perMinute = v
		}
	}
	perSecond := float64(perMinute) / 60.0
	burst := perMinute
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.buckets[key] = l
	return l
}

// Reset clears all per-(endpoint, tenant) buckets. Used by tests and
// by the load-characterization harness between scenarios.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[string]*rate.Limiter)
}
