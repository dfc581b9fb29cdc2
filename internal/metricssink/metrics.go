// Package metricssink provides the production ports.MetricsSink: a
// Prometheus registry of counters and gauges covering the guard,
// incident, and validation subsystems, plus an HTTP handler for
// scraping. Grounded on the teacher's pkg/metrics/metrics.go package
// global registry/init() pattern.
package metricssink

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this repo registers. Exported like the
// teacher's Registry so cmd/jobworker can mount it directly.
var Registry = prometheus.NewRegistry()

var (
	guardConfigFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "guard",
		Name:      "config_fallback_total",
		Help:      "Count of guard config loads that fell back to compiled defaults.",
	})

	killswitchErrorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "guard",
		Name:      "killswitch_error_total",
		Help:      "Count of killswitch checks that errored (e.g. nil config).",
	}, []string{"reason"})

	killswitchFallbackOpenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "guard",
		Name:      "killswitch_fallback_open_total",
		Help:      "Count of killswitch checks that fell open (treated as not disabled) after an error.",
	})

	rateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "guard",
		Name:      "rate_limit_rejected_total",
		Help:      "Count of requests rejected by the per-(endpoint,tenant) rate limiter.",
	}, []string{"endpoint"})

	dependencyCallTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "guard",
		Name:      "dependency_call_total",
		Help:      "Count of guarded dependency calls grouped by dependency and outcome.",
	}, []string{"dependency", "outcome"})

	dependencyRetryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "guard",
		Name:      "dependency_retry_total",
		Help:      "Count of retry attempts made by the dependency wrapper.",
	}, []string{"dependency"})

	driftDetectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "guard",
		Name:      "drift_detected_total",
		Help:      "Count of drift-guard checks that detected a config/endpoint signature drift.",
	}, []string{"endpoint", "mode"})

	circuitStateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "invoice_ops",
		Subsystem: "guard",
		Name:      "circuit_state",
		Help:      "Current circuit breaker state per dependency (0=closed, 1=half_open, 2=open).",
	}, []string{"dependency"})

	incidentUpsertTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "incident",
		Name:      "upsert_total",
		Help:      "Count of incident upserts grouped by whether they created a new row.",
	}, []string{"result"})

	shadowMismatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "validation",
		Name:      "shadow_mismatch_total",
		Help:      "Count of shadow-compare runs where the old and new validators disagreed.",
	})

	shadowSampledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "validation",
		Name:      "shadow_sampled_total",
		Help:      "Count of invoices sampled for shadow validation comparison.",
	})

	shadowWhitelistedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "validation",
		Name:      "shadow_whitelisted_total",
		Help:      "Count of shadow mismatches matched by a known benign divergence pattern.",
	})

	shadowActionableTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "validation",
		Name:      "shadow_actionable_total",
		Help:      "Count of shadow mismatches that were not whitelisted and need investigation.",
	})

	enforceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoice_ops",
		Subsystem: "validation",
		Name:      "enforce_total",
		Help:      "Count of enforcement decisions grouped by mode and action.",
	}, []string{"mode", "action"})

	enforceModeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "invoice_ops",
		Subsystem: "validation",
		Name:      "enforce_mode",
		Help:      "Currently configured enforcement mode (one-hot by mode label).",
	}, []string{"mode"})
)

func init() {
	Registry.MustRegister(
		guardConfigFallbackTotal,
		killswitchErrorTotal,
		killswitchFallbackOpenTotal,
		rateLimitRejectedTotal,
		dependencyCallTotal,
		dependencyRetryTotal,
		driftDetectedTotal,
		circuitStateGauge,
		incidentUpsertTotal,
		shadowMismatchTotal,
		shadowSampledTotal,
		shadowWhitelistedTotal,
		shadowActionableTotal,
		enforceTotal,
		enforceModeGauge,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Sink implements ports.MetricsSink by routing named Inc/Set calls to
// the package-level collectors above. Unrecognized names are dropped
// rather than erroring — a metrics sink must never be the reason a
// guard or validation call fails.
type Sink struct{}

// Inc increments the counter identified by name with the given labels.
func (Sink) Inc(name string, labels map[string]string) {
	switch name {
	case "guard_config_fallback":
		guardConfigFallbackTotal.Inc()
	case "killswitch_error":
		killswitchErrorTotal.WithLabelValues(labels["reason"]).Inc()
	case "killswitch_fallback_open_total":
		killswitchFallbackOpenTotal.Inc()
	case "rate_limit_rejected_total":
		rateLimitRejectedTotal.WithLabelValues(labels["endpoint"]).Inc()
	case "dependency_call_total":
		dependencyCallTotal.WithLabelValues(labels["dependency"], labels["outcome"]).Inc()
	case "dependency_retry_total":
		dependencyRetryTotal.WithLabelValues(labels["dependency"]).Inc()
	case "drift_detected_total":
		driftDetectedTotal.WithLabelValues(labels["endpoint"], labels["mode"]).Inc()
	case "incident_upsert_total":
		incidentUpsertTotal.WithLabelValues(labels["result"]).Inc()
	case "shadow_mismatch_total":
		shadowMismatchTotal.Inc()
	case "shadow_sampled_total":
		shadowSampledTotal.Inc()
	case "shadow_whitelisted_total":
		shadowWhitelistedTotal.Inc()
	case "shadow_actionable_total":
		shadowActionableTotal.Inc()
	case "enforce_total":
		enforceTotal.WithLabelValues(labels["mode"], labels["action"]).Inc()
	}
}

// Set updates the gauge identified by name.
func (Sink) Set(name string, labels map[string]string, value float64) {
	switch name {
	case "circuit_state":
		circuitStateGauge.WithLabelValues(labels["dependency"]).Set(value)
	case "enforce_mode":
		enforceModeGauge.Reset()
		enforceModeGauge.WithLabelValues(labels["mode"]).Set(value)
	}
}
