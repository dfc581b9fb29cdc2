package validation

import (
	"os"
	"strconv"
	"strings"

	"github.com/gelka-enerji/invoice-ops/internal/fingerprint"
)

const shadowBuckets = 10000

var defaultWhitelist = map[string]bool{"missing_totals_skips": true}

// ShadowConfig tunes the shadow-compare sampling rate and the set of
// known, benign divergence patterns that should not count as
// actionable mismatches.
type ShadowConfig struct {
	SampleRate float64
	Whitelist  map[string]bool
}

// DefaultShadowConfig samples 1% of invoices and whitelists the one
// known benign divergence between the legacy and new validators.
func DefaultShadowConfig() ShadowConfig {
	return ShadowConfig{SampleRate: 0.01, Whitelist: defaultWhitelist}
}

// LoadShadowConfig reads INVOICE_SHADOW_SAMPLE_RATE and
// INVOICE_SHADOW_WHITELIST, clamping the rate to [0,1] and falling back
// to defaults on any parse failure.
func LoadShadowConfig() ShadowConfig {
	cfg := DefaultShadowConfig()

	if raw := os.Getenv("INVOICE_SHADOW_SAMPLE_RATE"); raw != "" {
		if rate, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.SampleRate = clamp01(rate)
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INVOICE_SHADOW_WHITELIST")); raw != "" {
		wl := map[string]bool{}
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				wl[s] = true
			}
		}
		if len(wl) > 0 {
			cfg.Whitelist = wl
		}
	}

	return cfg
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// ShouldSample decides deterministically, per spec §4.8's sampling
// requirement, whether invoiceID falls within rate's bucket share of
// shadowBuckets. An empty invoiceID always samples at rate — there is
// no per-process random fallback, since every code path in this repo
// that reaches shadow comparison already has an invoice identifier.
func ShouldSample(invoiceID string, rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	bucket := fingerprint.BucketOf(invoiceID, shadowBuckets)
	return bucket < int(rate*shadowBuckets)
}

// missingTotalsSkips is the one known benign divergence: the legacy
// validator emitted ZERO_CONSUMPTION when the lines section was simply
// missing, whereas the new validator correctly skips an absent
// optional section instead of failing it.
func missingTotalsSkips(r ShadowCompareResult) bool {
	if r.ValidMatch {
		return false
	}
	if len(r.CodesOnlyOld) != 1 || !r.CodesOnlyOld[string(CodeZeroConsumption)] {
		return false
	}
	return len(r.CodesOnlyNew) == 0
}

var divergencePatterns = map[string]func(ShadowCompareResult) bool{
	"missing_totals_skips": missingTotalsSkips,
}

// IsWhitelisted reports whether a mismatch matches one of cfg's
// whitelisted divergence patterns.
func IsWhitelisted(r ShadowCompareResult, whitelist map[string]bool) bool {
	if r.ValidMatch {
		return false
	}
	for name := range whitelist {
		if matcher, ok := divergencePatterns[name]; ok && matcher(r) {
			return true
		}
	}
	return false
}
