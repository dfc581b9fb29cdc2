package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AlertEvalResult is one simplified PromQL evaluation against a metric
// snapshot, without needing a running Prometheus server.
type AlertEvalResult struct {
	AlertName   string
	Expr        string
	WouldFire   bool
	MetricValue float64
	Threshold   float64
}

type alertRuleFile struct {
	Spec struct {
		Groups []struct {
			Rules []struct {
				Alert string `yaml:"alert"`
				Expr  string `yaml:"expr"`
			} `yaml:"rules"`
		} `yaml:"groups"`
	} `yaml:"spec"`
}

// AlertValidator evaluates a fixed set of alert thresholds deterministically
// in CI, reading the PromQL expression text straight out of the checked-in
// alert rule file so the expression shown in a failure message always
// matches what's actually deployed.
type AlertValidator struct {
	exprByName map[string]string
}

// defaultAlertPaths mirrors the candidate-path probing the upstream
// validator does when no explicit path is given.
var defaultAlertPaths = []string{
	"monitoring/prometheus/invoice-ops-alerts.yml",
	"../monitoring/prometheus/invoice-ops-alerts.yml",
}

// NewAlertValidator loads alert rules from path. If path is empty, it
// probes defaultAlertPaths in order and uses the first one that exists.
func NewAlertValidator(path string) (*AlertValidator, error) {
	if path == "" {
		path = defaultAlertPaths[0]
		for _, candidate := range defaultAlertPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alert rules %s: %w", path, err)
	}
	var doc alertRuleFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse alert rules %s: %w", path, err)
	}

	exprByName := map[string]string{}
	for _, group := range doc.Spec.Groups {
		for _, rule := range group.Rules {
			if rule.Alert != "" {
				exprByName[rule.Alert] = rule.Expr
			}
		}
	}
	return &AlertValidator{exprByName: exprByName}, nil
}

// AlertNames lists every alert this validator knows the expression for.
func (v *AlertValidator) AlertNames() []string {
	return SortedKeys(exprMapToAny(v.exprByName))
}

func exprMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (v *AlertValidator) expr(name string) string {
	return v.exprByName[name]
}

// CheckCircuitBreakerOpen evaluates InvoiceOpsCircuitBreakerOpen against
// cbStates (dependency name -> numeric circuit state, 2 == open).
func (v *AlertValidator) CheckCircuitBreakerOpen(cbStates map[string]int) AlertEvalResult {
	const name = "InvoiceOpsCircuitBreakerOpen"
	maxState := 0
	for _, s := range cbStates {
		if s > maxState {
			maxState = s
		}
	}
	return AlertEvalResult{
		AlertName:   name,
		Expr:        v.expr(name),
		WouldFire:   maxState == 2,
		MetricValue: float64(maxState),
		Threshold:   2.0,
	}
}

// CheckRateLimitSpike evaluates InvoiceOpsRateLimitSpike against an
// observed denied-requests-per-minute rate.
func (v *AlertValidator) CheckRateLimitSpike(denyRatePerMin float64) AlertEvalResult {
	const name = "InvoiceOpsRateLimitSpike"
	return AlertEvalResult{
		AlertName:   name,
		Expr:        v.expr(name),
		WouldFire:   denyRatePerMin > 5,
		MetricValue: denyRatePerMin,
		Threshold:   5.0,
	}
}

// CheckGuardInternalError evaluates InvoiceOpsGuardInternalError against
// observed killswitch error/fallback-open rates.
func (v *AlertValidator) CheckGuardInternalError(errorRate, fallbackRate float64) AlertEvalResult {
	const name = "InvoiceOpsGuardInternalError"
	return AlertEvalResult{
		AlertName:   name,
		Expr:        v.expr(name),
		WouldFire:   errorRate > 0 || fallbackRate > 0,
		MetricValue: max(errorRate, fallbackRate),
		Threshold:   0.0,
	}
}
