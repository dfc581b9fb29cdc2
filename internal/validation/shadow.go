package validation

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gelka-enerji/invoice-ops/internal/logging"
)

// oldCodePrefixes are the only legacy error-string prefixes this
// package recognizes; anything else found in an old-validator error
// string is silently dropped, matching the legacy validator's code
// namespace exactly.
var oldCodePrefixes = map[string]bool{
	string(CodePayableTotalMismatch): true,
	string(CodeTotalMismatch):        true,
	string(CodeZeroConsumption):      true,
	string(CodeLineCrosscheckFail):   true,
}

// ExtractOldCodes pulls the code prefix out of each legacy
// "CODE: detail..." error string. Unrecognized prefixes are dropped
// rather than surfaced, since an unknown string here means the legacy
// validator changed shape, not that a new divergence occurred.
func ExtractOldCodes(oldErrors []string) map[string]bool {
	codes := map[string]bool{}
	for _, e := range oldErrors {
		prefix := strings.TrimSpace(strings.SplitN(e, ":", 2)[0])
		if oldCodePrefixes[prefix] {
			codes[prefix] = true
		}
	}
	return codes
}

// ShadowCompareResult is the outcome of comparing the legacy
// string-coded validator against the new closed-set validator on the
// same invoice.
type ShadowCompareResult struct {
	OldValid     bool
	NewValid     bool
	ValidMatch   bool
	OldCodes     map[string]bool
	NewCodes     map[string]bool
	CodesOnlyOld map[string]bool
	CodesOnlyNew map[string]bool
	CodesCommon  map[string]bool
}

// CompareValidators runs the new validator against inv and diffs it
// against the codes recovered from oldErrors, the legacy validator's
// string-coded output.
//
// This intentionally differs from the upstream shadow module's
// compare_validators, which rebuilds a parallel legacy model
// (CanonicalInvoice) from the same dict and re-validates it. This repo
// has no such parallel legacy validator to port, and the one call site
// that actually invokes shadow comparison (enforce_validation's SHADOW
// branch) already receives the legacy errors as a parameter rather
// than recomputing them — so the caller-supplied oldErrors is treated
// as the one and only "old" side.
func CompareValidators(inv Invoice, oldErrors []string) ShadowCompareResult {
	oldCodes := ExtractOldCodes(oldErrors)
	oldValid := len(oldCodes) == 0 && len(oldErrors) == 0

	newResult := Validate(inv)
	newCodes := map[string]bool{}
	for _, e := range newResult.Errors {
		newCodes[string(e.Code)] = true
	}

	onlyOld := map[string]bool{}
	for c := range oldCodes {
		if !newCodes[c] {
			onlyOld[c] = true
		}
	}
	onlyNew := map[string]bool{}
	for c := range newCodes {
		if !oldCodes[c] {
			onlyNew[c] = true
		}
	}
	common := map[string]bool{}
	for c := range oldCodes {
		if newCodes[c] {
			common[c] = true
		}
	}

	return ShadowCompareResult{
		OldValid:     oldValid,
		NewValid:     newResult.Valid,
		ValidMatch:   oldValid == newResult.Valid,
		OldCodes:     oldCodes,
		NewCodes:     newCodes,
		CodesOnlyOld: onlyOld,
		CodesOnlyNew: onlyNew,
		CodesCommon:  common,
	}
}

// Shadow metric names, reserved here so the enforcement package and
// any future Prometheus-backed sink agree on the exact strings.
const (
	MetricShadowMismatchTotal    = "invoice_validation_shadow_mismatch_total"
	MetricShadowSampledTotal     = "invoice_validation_shadow_sampled_total"
	MetricShadowWhitelistedTotal = "invoice_validation_shadow_whitelisted_total"
	MetricShadowActionableTotal  = "invoice_validation_shadow_actionable_total"
)

// ShadowCounters is a MetricsSink-independent snapshot used by tests
// and by RecordShadowMetrics's caller to inspect current totals without
// depending on a live Prometheus registry.
type ShadowCounters struct {
	Sampled     int
	Whitelisted int
	Actionable  int
	Mismatch    int
}

// ShadowMetrics accumulates shadow-compare counters. It is deliberately
// a small mutable struct rather than package-level globals (the shape
// the legacy module used) so concurrent enforcement runs in tests don't
// share state.
type ShadowMetrics struct {
	counters ShadowCounters
}

// Snapshot returns a copy of the current counters.
func (m *ShadowMetrics) Snapshot() ShadowCounters { return m.counters }

// Reset zeroes all counters.
func (m *ShadowMetrics) Reset() { m.counters = ShadowCounters{} }

// Record increments the sampled counter always, and on a mismatch
// increments either whitelisted or actionable — never both.
func (m *ShadowMetrics) Record(result ShadowCompareResult, whitelisted bool) {
	m.counters.Sampled++
	if result.ValidMatch {
		return
	}
	m.counters.Mismatch++
	if whitelisted {
		m.counters.Whitelisted++
	} else {
		m.counters.Actionable++
	}
}

// ShadowValidateHook runs the post-validation shadow comparison: it
// samples deterministically on invoiceID, compares the new validator
// against oldErrors, classifies the divergence against cfg's whitelist,
// records metrics, and logs actionable (non-whitelisted) mismatches.
//
// It never returns an error and never affects the caller's enforcement
// decision — a panic-free, side-effect-only hook, matching
// shadow_validate_hook's try/except-everything contract.
func ShadowValidateHook(inv Invoice, oldErrors []string, invoiceID string, cfg ShadowConfig, metrics *ShadowMetrics, log *logging.Logger) *ShadowCompareResult {
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.WithFields(logrus.Fields{"invoice_id": invoiceID, "recover": r}).Error("shadow_validate_hook panicked")
		}
	}()

	if !ShouldSample(invoiceID, cfg.SampleRate) {
		return nil
	}

	result := CompareValidators(inv, oldErrors)
	whitelisted := IsWhitelisted(result, cfg.Whitelist)
	if metrics != nil {
		metrics.Record(result, whitelisted)
	}

	if !result.ValidMatch && !whitelisted && log != nil {
		log.WithFields(logrus.Fields{
			"invoice_id": invoiceID,
			"old_valid":  result.OldValid,
			"new_valid":  result.NewValid,
		}).Warn("shadow_validation_mismatch")
	}

	return &result
}
