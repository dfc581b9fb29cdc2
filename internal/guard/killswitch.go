package guard

import (
	"github.com/gelka-enerji/invoice-ops/internal/guardconfig"
	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// Killswitch answers whether import processing is currently disabled,
// globally or for a specific tenant (spec §4.2 item 1). It fails open
// — treats an internal error as "not killed" — so a bug in this guard
// can never itself halt the pipeline; callers are expected to record
// the failure via metrics rather than propagate it.
type Killswitch struct {
	metrics ports.MetricsSink
}

// NewKillswitch constructs a Killswitch reporting to metrics. A nil
// sink is replaced with a no-op one.
func NewKillswitch(metrics ports.MetricsSink) *Killswitch {
	if metrics == nil {
		metrics = ports.NoopMetricsSink{}
	}
	return &Killswitch{metrics: metrics}
}

// IsDisabled reports whether cfg disables processing for tenantID. A
// nil cfg is treated as an internal error: it fails open (returns
// false) and increments killswitch_error and
// killswitch_fallback_open_total.
func (k *Killswitch) IsDisabled(cfg *guardconfig.Config, tenantID string) bool {
	if cfg == nil {
		k.metrics.Inc("killswitch_error", map[string]string{"reason": "nil_config"})
		k.metrics.Inc("killswitch_fallback_open_total", nil)
		return false
	}

	if cfg.Killswitch.GlobalImportDisabled {
		return true
	}
	for _, t := range cfg.Killswitch.DisabledTenants {
		if t == tenantID {
			return true
		}
	}
	return false
}
