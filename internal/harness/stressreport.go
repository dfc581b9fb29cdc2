package harness

import (
	"encoding/json"
	"sort"
)

// FailDiagnostic pins down one failed assertion to a seed, a
// dependency, and an observed-vs-expected pair so a flaky-looking
// failure can be reproduced byte-for-byte.
type FailDiagnostic struct {
	ScenarioID string `json:"scenario_id"`
	Dependency string `json:"dependency"`
	Outcome    string `json:"outcome"`
	Observed   any    `json:"observed"`
	Expected   any    `json:"expected"`
	Seed       int    `json:"seed"`
}

// FlakyCorrelationSegment records a timing deviation suspected of
// causing a flaky result, for a human to follow up on.
type FlakyCorrelationSegment struct {
	TimingDeviationMs float64 `json:"timing_deviation_ms"`
	SuspectedSource   string  `json:"suspected_source"`
	ReproSteps        string  `json:"repro_steps"`
}

// TuningRecommendation is a suggested config change a stress run surfaced.
type TuningRecommendation struct {
	Kind    string         `json:"kind"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// StressReport aggregates one harness run's results into the shape
// operators and CI consume. WriteSafe reflects the write_path_safe
// invariant (see ComputeWriteSafe): true only when no write-tagged
// scenario in this run recorded a retry.
type StressReport struct {
	Results               []map[string]any        `json:"results"`
	Table                 []map[string]any        `json:"table"`
	FailSummary           []map[string]any        `json:"fail_summary"`
	Diagnostics           []FailDiagnostic         `json:"diagnostics"`
	FlakySegment          *FlakyCorrelationSegment `json:"flaky_segment"`
	Metadata              map[string]any           `json:"metadata"`
	TuningRecommendations []TuningRecommendation   `json:"tuning_recommendations"`
	WriteSafe             bool                     `json:"write_path_safe"`
}

// ToJSON renders a deterministic, stably-key-ordered JSON document —
// Go's encoding/json already sorts map keys on marshal, matching the
// upstream report's explicit sort_keys=True.
func (r StressReport) ToJSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ComputeWriteSafe implements spec §8's P-REPORT-WPS: write_path_safe is
// true iff every scenario tagged IsWrite has RetryCount==0; an empty
// result set or a set with no write-tagged scenarios is vacuously safe.
func ComputeWriteSafe(results []ScenarioResult) bool {
	for _, r := range results {
		if r.IsWrite && r.RetryCount != 0 {
			return false
		}
	}
	return true
}

// BuildStressReport assembles a StressReport from a run's scenario
// outcomes and their paired metric deltas (keyed by scenario ID):
// WriteSafe is derived from the outcomes themselves (ComputeWriteSafe),
// and Diagnostics accumulates every negative-counter-delta violation
// across all scenarios (spec §4.7), on top of any diagnostics the
// caller already collected by other means.
func BuildStressReport(results []ScenarioResult, deltas map[string]MetricDelta, seed int, extra ...FailDiagnostic) StressReport {
	diags := append([]FailDiagnostic{}, extra...)

	scenarioIDs := make([]string, 0, len(deltas))
	for id := range deltas {
		scenarioIDs = append(scenarioIDs, id)
	}
	sort.Strings(scenarioIDs)
	for _, id := range scenarioIDs {
		diags = append(diags, deltas[id].NegativeDeltaDiagnostics(id, seed)...)
	}

	return StressReport{
		Diagnostics: diags,
		WriteSafe:   ComputeWriteSafe(results),
		Metadata:    map[string]any{"seed": seed},
	}
}

// SortedKeys is a small helper scenario code uses when it needs a
// deterministic iteration order over a map before building a report
// table row, since Go map iteration is intentionally randomized.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
