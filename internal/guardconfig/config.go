// Package guardconfig loads the Operational Guard's configuration
// (killswitch, rate limit, circuit breaker, dependency wrapper
// defaults) from environment with typed coercion, following the
// teacher repo's config-loading shape: compiled defaults, then env
// overlay, then normalize. Any overlay error never aborts startup — it
// falls back to the last good snapshot and the caller is expected to
// increment the guard_config_fallback metric (spec §4.2).
package guardconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/gelka-enerji/invoice-ops/internal/fingerprint"
)

// KillswitchConfig holds the global deny flag and per-tenant blocklist.
type KillswitchConfig struct {
	GlobalImportDisabled bool     `env:"OPS_GUARD_KILLSWITCH_GLOBAL_IMPORT_DISABLED"`
	DisabledTenants      []string `env:"-"`
}

// RateLimitConfig holds per-endpoint per-minute quotas.
type RateLimitConfig struct {
	DefaultPerMinute int            `env:"OPS_GUARD_RATE_LIMIT_DEFAULT_PER_MINUTE"`
	PerEndpoint      map[string]int `env:"-"`
}

// CircuitBreakerConfig holds the per-dependency three-state machine
// thresholds (spec §4.2).
type CircuitBreakerConfig struct {
	ErrorThresholdPct   float64 `env:"OPS_GUARD_CB_ERROR_THRESHOLD_PCT"`
	ErrorThresholdCount int     `env:"OPS_GUARD_CB_ERROR_THRESHOLD_COUNT"`
	OpenDurationSeconds int     `env:"OPS_GUARD_CB_OPEN_DURATION_SECONDS"`
	PrecheckEnabled     bool    `env:"OPS_GUARD_CB_PRECHECK_ENABLED"`
}

// WrapperConfig holds the Dependency Wrapper's timeout/retry/backoff
// defaults and per-dependency overrides.
type WrapperConfig struct {
	TimeoutSecondsDefault        float64            `env:"OPS_GUARD_WRAPPER_TIMEOUT_SECONDS_DEFAULT"`
	TimeoutSecondsByDependency   map[string]float64 `env:"-"`
	RetryMaxAttemptsDefault      int                `env:"OPS_GUARD_WRAPPER_RETRY_MAX_ATTEMPTS_DEFAULT"`
	RetryMaxAttemptsByDependency map[string]int     `env:"-"`
	BackoffBaseMs                int                `env:"OPS_GUARD_WRAPPER_RETRY_BACKOFF_BASE_MS"`
	BackoffCapMs                 int                `env:"OPS_GUARD_WRAPPER_RETRY_BACKOFF_CAP_MS"`
	JitterPct                    float64            `env:"OPS_GUARD_WRAPPER_RETRY_JITTER_PCT"`
	RetryOnWrite                 bool               `env:"OPS_GUARD_WRAPPER_RETRY_ON_WRITE"`
	FailOpenEnabled              bool               `env:"OPS_GUARD_WRAPPER_FAIL_OPEN_ENABLED"`
}

// Config is the immutable Guard Config snapshot described in spec §3.
type Config struct {
	SchemaVersion  string `env:"OPS_GUARD_SCHEMA_VERSION"`
	Killswitch     KillswitchConfig
	RateLimit      RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
	Wrapper        WrapperConfig
}

// Defaults returns the compiled-in fallback configuration.
func Defaults() Config {
	return Config{
		SchemaVersion: "1",
		Killswitch:    KillswitchConfig{},
		RateLimit:     RateLimitConfig{DefaultPerMinute: 600, PerEndpoint: map[string]int{}},
		CircuitBreaker: CircuitBreakerConfig{
			ErrorThresholdPct:   50,
			ErrorThresholdCount: 10,
			OpenDurationSeconds: 30,
			PrecheckEnabled:     true,
		},
		Wrapper: WrapperConfig{
			TimeoutSecondsDefault:        5,
			TimeoutSecondsByDependency:   map[string]float64{},
			RetryMaxAttemptsDefault:      3,
			RetryMaxAttemptsByDependency: map[string]int{},
			BackoffBaseMs:                100,
			BackoffCapMs:                 2000,
			JitterPct:                    0.2,
			RetryOnWrite:                 false,
			FailOpenEnabled:              true,
		},
	}
}

// Load reads Config from the process environment, falling back to the
// last good snapshot (here, the compiled defaults) on any decode
// error. The returned bool reports whether a fallback occurred so the
// caller can emit the guard_config_fallback metric.
func Load() (cfg Config, fellBack bool) {
	_ = godotenv.Load()

	base := Defaults()
	overlaid := base

	if err := envdecode.Decode(&overlaid); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return base, true
	}

	if tenants := strings.TrimSpace(os.Getenv("OPS_GUARD_KILLSWITCH_DISABLED_TENANTS")); tenants != "" {
		overlaid.Killswitch.DisabledTenants = splitCSV(tenants)
	}

	perEndpoint, err := parsePerEndpointRateLimits(base.RateLimit.PerEndpoint)
	if err != nil {
		return base, true
	}
	overlaid.RateLimit.PerEndpoint = perEndpoint

	if raw := strings.TrimSpace(os.Getenv("OPS_GUARD_WRAPPER_TIMEOUT_SECONDS_BY_DEPENDENCY")); raw != "" {
		var m map[string]float64
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return base, true
		}
		overlaid.Wrapper.TimeoutSecondsByDependency = m
	}

	if raw := strings.TrimSpace(os.Getenv("OPS_GUARD_WRAPPER_RETRY_MAX_ATTEMPTS_BY_DEPENDENCY")); raw != "" {
		var m map[string]int
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return base, true
		}
		overlaid.Wrapper.RetryMaxAttemptsByDependency = m
	}

	if err := overlaid.validate(); err != nil {
		return base, true
	}

	return overlaid, false
}

// validate enforces the config invariants named in spec §4.2:
// backoff_base_ms <= backoff_cap_ms and 0 <= jitter_pct <= 1.
func (c Config) validate() error {
	if c.Wrapper.BackoffBaseMs > c.Wrapper.BackoffCapMs {
		return fmt.Errorf("backoff_base_ms (%d) must be <= backoff_cap_ms (%d)", c.Wrapper.BackoffBaseMs, c.Wrapper.BackoffCapMs)
	}
	if c.Wrapper.JitterPct < 0 || c.Wrapper.JitterPct > 1 {
		return fmt.Errorf("jitter_pct (%v) must be in [0, 1]", c.Wrapper.JitterPct)
	}
	return nil
}

// TimeoutFor returns the effective timeout (seconds) for dependency,
// falling back to the default on missing or invalid override, per
// spec §4.2 item 2.
func (c Config) TimeoutFor(dependency string) float64 {
	if v, ok := c.Wrapper.TimeoutSecondsByDependency[dependency]; ok && v > 0 {
		return v
	}
	return c.Wrapper.TimeoutSecondsDefault
}

// MaxAttemptsFor returns the effective retry cap for dependency.
func (c Config) MaxAttemptsFor(dependency string) int {
	if v, ok := c.Wrapper.RetryMaxAttemptsByDependency[dependency]; ok && v > 0 {
		return v
	}
	return c.Wrapper.RetryMaxAttemptsDefault
}

// RateLimitFor returns the effective per-minute quota for endpoint.
func (c Config) RateLimitFor(endpoint string) int {
	if v, ok := c.RateLimit.PerEndpoint[endpoint]; ok && v > 0 {
		return v
	}
	return c.RateLimit.DefaultPerMinute
}

// Hash returns a truncated SHA-256 hex digest over canonicalJSON's
// serialization of c, deterministic across processes, used by the
// Drift Guard to detect configuration drift (spec §3, §4.2).
func (c Config) Hash() string {
	canonical := canonicalJSON(c)
	return fingerprint.SHA256Hex(canonical)[:16]
}

// canonicalJSON serializes c as a "|"-delimited string (not JSON),
// with tenants and map keys sorted so the digest is stable regardless
// of Go's randomized map iteration order. The per-dependency timeout
// and retry override maps are not part of the serialization.
func canonicalJSON(c Config) string {
	var b strings.Builder
	b.WriteString(c.SchemaVersion)
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(c.Killswitch.GlobalImportDisabled))
	b.WriteByte('|')
	tenants := append([]string(nil), c.Killswitch.DisabledTenants...)
	sort.Strings(tenants)
	b.WriteString(strings.Join(tenants, ","))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(c.RateLimit.DefaultPerMinute))
	b.WriteByte('|')
	writeSortedIntMap(&b, c.RateLimit.PerEndpoint)
	b.WriteByte('|')
	b.WriteString(fmt.Sprintf("%v,%d,%d,%v", c.CircuitBreaker.ErrorThresholdPct, c.CircuitBreaker.ErrorThresholdCount, c.CircuitBreaker.OpenDurationSeconds, c.CircuitBreaker.PrecheckEnabled))
	b.WriteByte('|')
	b.WriteString(fmt.Sprintf("%v,%d,%d,%d,%v,%v,%v", c.Wrapper.TimeoutSecondsDefault, c.Wrapper.RetryMaxAttemptsDefault, c.Wrapper.BackoffBaseMs, c.Wrapper.BackoffCapMs, c.Wrapper.JitterPct, c.Wrapper.RetryOnWrite, c.Wrapper.FailOpenEnabled))
	return b.String()
}

func writeSortedIntMap(b *strings.Builder, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(m[k]))
		b.WriteByte(',')
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePerEndpointRateLimits scans the process environment for
// OPS_GUARD_RATE_LIMIT_<ENDPOINT>_PER_MINUTE keys and extracts the
// endpoint segment, matching the literal env-key pattern in spec §6.
func parsePerEndpointRateLimits(base map[string]int) (map[string]int, error) {
	out := make(map[string]int, len(base))
	for k, v := range base {
		out[k] = v
	}
	const prefix = "OPS_GUARD_RATE_LIMIT_"
	const suffix = "_PER_MINUTE"
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if k == "OPS_GUARD_RATE_LIMIT_DEFAULT_PER_MINUTE" {
			continue
		}
		if !strings.HasPrefix(k, prefix) || !strings.HasSuffix(k, suffix) {
			continue
		}
		endpoint := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(k, prefix), suffix))
		if endpoint == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", k, err)
		}
		out[endpoint] = n
	}
	return out, nil
}
