package harness

import (
	"fmt"
	"sort"
)

// MetricSnapshot is a point-in-time read of call-outcome counters used
// by a scenario run's before/after comparison.
type MetricSnapshot struct {
	CallTotalByOutcome map[string]float64
	RetryTotal         float64
}

// MetricDelta is the difference between two snapshots.
type MetricDelta struct {
	CallTotalByOutcome map[string]float64
	RetryTotal         float64
}

// RetryAmplification is retry_total / total_calls across every outcome,
// 0 when there were no calls at all.
func (d MetricDelta) RetryAmplification() float64 {
	var total float64
	for _, v := range d.CallTotalByOutcome {
		total += v
	}
	if total <= 0 {
		return 0
	}
	return d.RetryTotal / total
}

// AssertRetryAmpClose returns an error if the observed retry
// amplification deviates from expected by more than RetryAmpTolerance.
func (d MetricDelta) AssertRetryAmpClose(expected float64) error {
	observed := d.RetryAmplification()
	diff := abs(observed - expected)
	if diff > RetryAmpTolerance(expected) {
		return fmt.Errorf("retry_amplification mismatch: observed=%f expected=%f diff=%f", observed, expected, diff)
	}
	return nil
}

// NegativeDeltaDiagnostics implements spec §4.7's invariant check:
// dependency counters are monotonic within a scenario run, so any
// negative delta can only mean a counter reset or a scraping race
// between snapshots. Each offending series produces a FailDiagnostic
// instead of being silently dropped; scenarioID and seed are threaded
// through so the diagnostic is reproducible.
func (d MetricDelta) NegativeDeltaDiagnostics(scenarioID string, seed int) []FailDiagnostic {
	var diags []FailDiagnostic

	outcomes := make([]string, 0, len(d.CallTotalByOutcome))
	for outcome := range d.CallTotalByOutcome {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		if v := d.CallTotalByOutcome[outcome]; v < 0 {
			diags = append(diags, FailDiagnostic{
				ScenarioID: scenarioID,
				Dependency: "dependency_call_total{outcome=" + outcome + "}",
				Outcome:    "negative_counter_delta",
				Observed:   v,
				Expected:   0,
				Seed:       seed,
			})
		}
	}

	if d.RetryTotal < 0 {
		diags = append(diags, FailDiagnostic{
			ScenarioID: scenarioID,
			Dependency: "dependency_retry_total",
			Outcome:    "negative_counter_delta",
			Observed:   d.RetryTotal,
			Expected:   0,
			Seed:       seed,
		})
	}

	return diags
}

// InvariantOK reports whether d carries no negative-counter-delta
// violations (spec §4.7); a clean run has invariant_ok=true.
func (d MetricDelta) InvariantOK() bool {
	return len(d.NegativeDeltaDiagnostics("", 0)) == 0
}

// MetricsCapture isolates a baseline snapshot so a scenario run can
// compute its own delta without touching any global metrics state —
// pure math, no side effects, safe to use concurrently across scenarios.
type MetricsCapture struct {
	initial MetricSnapshot
}

// NewMetricsCapture anchors a capture at initial (zero value if nil
// fields are left unset).
func NewMetricsCapture(initial MetricSnapshot) *MetricsCapture {
	if initial.CallTotalByOutcome == nil {
		initial.CallTotalByOutcome = map[string]float64{}
	}
	return &MetricsCapture{initial: initial}
}

// Delta computes current's difference from the captured baseline.
func (c *MetricsCapture) Delta(current MetricSnapshot) MetricDelta {
	deltaCalls := make(map[string]float64, len(current.CallTotalByOutcome))
	for k, v := range current.CallTotalByOutcome {
		deltaCalls[k] = v - c.initial.CallTotalByOutcome[k]
	}
	return MetricDelta{
		CallTotalByOutcome: deltaCalls,
		RetryTotal:         current.RetryTotal - c.initial.RetryTotal,
	}
}
