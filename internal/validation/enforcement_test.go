package validation

import "testing"

func invalidInvoice() Invoice {
	inv := validInvoice()
	inv["ettn"] = "not-a-uuid" // triggers INVALID_ETTN, a blocker code
	return inv
}

func TestEnforceOffAlwaysPasses(t *testing.T) {
	cfg := EnforcementConfig{Mode: ModeOff}
	d := EnforceValidation(invalidInvoice(), nil, "inv-1", cfg, ShadowConfig{}, nil, nil, nil)
	if d.Action != ActionPass {
		t.Fatalf("expected pass in off mode, got %s", d.Action)
	}
}

func TestEnforceShadowAlwaysPassesEvenOnMismatch(t *testing.T) {
	cfg := EnforcementConfig{Mode: ModeShadow}
	shadowCfg := ShadowConfig{SampleRate: 1.0, Whitelist: defaultWhitelist}
	d := EnforceValidation(invalidInvoice(), []string{"PAYABLE_TOTAL_MISMATCH: diff"}, "inv-1", cfg, shadowCfg, &ShadowMetrics{}, nil, nil)
	if d.Action != ActionPass {
		t.Fatalf("expected pass in shadow mode regardless of mismatch, got %s", d.Action)
	}
	if d.ShadowResult == nil {
		t.Fatalf("expected a shadow result to be attached when sampled at rate 1.0")
	}
}

func TestEnforceSoftWarnsButNeverBlocks(t *testing.T) {
	cfg := EnforcementConfig{Mode: ModeEnforceSoft, BlockerCodes: defaultBlockerCodes}
	d := EnforceValidation(invalidInvoice(), nil, "inv-1", cfg, ShadowConfig{}, nil, nil, nil)
	if d.Action != ActionWarn {
		t.Fatalf("expected warn in enforce_soft mode, got %s", d.Action)
	}
	if len(d.Errors) == 0 {
		t.Fatalf("expected errors to be attached")
	}
}

func TestEnforceHardBlocksOnBlockerCode(t *testing.T) {
	cfg := EnforcementConfig{Mode: ModeEnforceHard, BlockerCodes: defaultBlockerCodes}
	d := EnforceValidation(invalidInvoice(), nil, "inv-1", cfg, ShadowConfig{}, nil, nil, nil)
	if d.Action != ActionBlock {
		t.Fatalf("expected block for a blocker code in enforce_hard mode, got %s", d.Action)
	}
	if len(d.BlockerCodes) == 0 {
		t.Fatalf("expected at least one blocker code recorded")
	}
}

func TestEnforceHardWarnsOnAdvisoryOnlyCodes(t *testing.T) {
	inv := validInvoice()
	// NEGATIVE_VALUE is not in the default blocker set.
	periods := inv["periods"].([]any)
	p := periods[0].(map[string]any)
	p["amount"] = -10.0

	cfg := EnforcementConfig{Mode: ModeEnforceHard, BlockerCodes: defaultBlockerCodes}
	d := EnforceValidation(inv, nil, "inv-1", cfg, ShadowConfig{}, nil, nil, nil)
	if d.Action != ActionWarn {
		t.Fatalf("expected warn for advisory-only codes in enforce_hard mode, got %s", d.Action)
	}
	if len(d.BlockerCodes) != 0 {
		t.Fatalf("expected no blocker codes, got %+v", d.BlockerCodes)
	}
}

func TestEnforceValidInvoiceAlwaysPasses(t *testing.T) {
	for _, mode := range []Mode{ModeOff, ModeShadow, ModeEnforceSoft, ModeEnforceHard} {
		cfg := EnforcementConfig{Mode: mode, BlockerCodes: defaultBlockerCodes}
		d := EnforceValidation(validInvoice(), nil, "inv-1", cfg, ShadowConfig{SampleRate: 0}, nil, nil, nil)
		if d.Action != ActionPass {
			t.Fatalf("mode %s: expected pass for a valid invoice, got %s", mode, d.Action)
		}
	}
}

func TestEnforcementMetricsCountBlockedAndWarned(t *testing.T) {
	metrics := &EnforcementMetrics{}
	cfg := EnforcementConfig{Mode: ModeEnforceHard, BlockerCodes: defaultBlockerCodes}
	EnforceValidation(invalidInvoice(), nil, "inv-1", cfg, ShadowConfig{}, nil, metrics, nil)
	EnforceValidation(validInvoice(), nil, "inv-2", cfg, ShadowConfig{}, nil, metrics, nil)
	snap := metrics.Snapshot()
	if snap.Total != 2 || snap.Blocked != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}
