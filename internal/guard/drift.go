package guard

import (
	"github.com/gelka-enerji/invoice-ops/internal/ports"
	"github.com/gelka-enerji/invoice-ops/internal/svcerrors"
)

// DriftMode selects whether the Drift Guard only observes (Shadow) or
// actively blocks (Enforce) a detected drift (spec §4.2 item 5).
type DriftMode int

const (
	DriftShadow DriftMode = iota
	DriftEnforce
)

// RiskClass orders how severe a drifted call is treated. A detected
// drift never escalates risk class beyond what the caller already
// assigned — it can only downgrade a High-risk call to Medium under
// Shadow mode so a false positive can't silently widen a blast radius
// (spec §4.2 item 5 risk-class downgrade rule).
type RiskClass int

const (
	RiskLow RiskClass = iota
	RiskMedium
	RiskHigh
)

// Baseline is the accepted (config_hash, endpoint signature) pair a
// call is compared against.
type Baseline struct {
	ConfigHash        string
	EndpointSignature string
}

// DriftInputProvider supplies the current observed (config_hash,
// endpoint signature) for a call, decoupling the Drift Guard from how
// those values are computed (guardconfig.Config.Hash, an HTTP
// fingerprint, etc).
type DriftInputProvider interface {
	CurrentConfigHash() string
	CurrentEndpointSignature(endpoint string) string
}

// DriftGuard compares a call's live (config_hash, endpoint signature)
// against a pinned Baseline.
type DriftGuard struct {
	baseline Baseline
	mode     DriftMode
	input    DriftInputProvider
	metrics  ports.MetricsSink
}

// NewDriftGuard constructs a DriftGuard pinned to baseline.
func NewDriftGuard(baseline Baseline, mode DriftMode, input DriftInputProvider, metrics ports.MetricsSink) *DriftGuard {
	if metrics == nil {
		metrics = ports.NoopMetricsSink{}
	}
	return &DriftGuard{baseline: baseline, mode: mode, input: input, metrics: metrics}
}

// Check evaluates drift for endpoint at the given risk class, returning
// the (possibly downgraded) effective risk class and an error when
// Enforce mode blocks the call. Shadow mode never blocks — it only
// emits a drift_detected metric and downgrades risk for callers that
// consult the returned RiskClass.
func (d *DriftGuard) Check(endpoint string, risk RiskClass) (RiskClass, error) {
	observedConfig := d.input.CurrentConfigHash()
	observedEndpoint := d.input.CurrentEndpointSignature(endpoint)

	drifted := observedConfig != d.baseline.ConfigHash || observedEndpoint != d.baseline.EndpointSignature
	if !drifted {
		return risk, nil
	}

	d.metrics.Inc("drift_detected_total", map[string]string{"endpoint": endpoint, "mode": driftModeLabel(d.mode)})

	if d.mode == DriftEnforce {
		return risk, svcerrors.New(svcerrors.CodeDriftBlocked, "configuration or endpoint drift detected for "+endpoint)
	}

	if risk == RiskHigh {
		return RiskMedium, nil
	}
	return risk, nil
}

func driftModeLabel(m DriftMode) string {
	if m == DriftEnforce {
		return "enforce"
	}
	return "shadow"
}
