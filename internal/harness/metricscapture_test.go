package harness

import "testing"

func TestMetricsCaptureDelta(t *testing.T) {
	initial := MetricSnapshot{CallTotalByOutcome: map[string]float64{"success": 10, "failure": 2}, RetryTotal: 1}
	capture := NewMetricsCapture(initial)
	current := MetricSnapshot{CallTotalByOutcome: map[string]float64{"success": 25, "failure": 5}, RetryTotal: 4}
	delta := capture.Delta(current)
	if delta.CallTotalByOutcome["success"] != 15 || delta.CallTotalByOutcome["failure"] != 3 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
	if delta.RetryTotal != 3 {
		t.Fatalf("expected retry delta 3, got %f", delta.RetryTotal)
	}
}

func TestMetricDeltaRetryAmplification(t *testing.T) {
	delta := MetricDelta{CallTotalByOutcome: map[string]float64{"success": 18, "failure": 2}, RetryTotal: 4}
	amp := delta.RetryAmplification()
	if amp != 4.0/20.0 {
		t.Fatalf("expected 0.2, got %f", amp)
	}
}

func TestMetricDeltaRetryAmplificationZeroCalls(t *testing.T) {
	delta := MetricDelta{CallTotalByOutcome: map[string]float64{}, RetryTotal: 0}
	if amp := delta.RetryAmplification(); amp != 0 {
		t.Fatalf("expected 0 with no calls, got %f", amp)
	}
}

func TestAssertRetryAmpCloseWithinTolerance(t *testing.T) {
	delta := MetricDelta{CallTotalByOutcome: map[string]float64{"success": 100}, RetryTotal: 0}
	if err := delta.AssertRetryAmpClose(0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAssertRetryAmpCloseOutOfTolerance(t *testing.T) {
	delta := MetricDelta{CallTotalByOutcome: map[string]float64{"success": 90, "failure": 10}, RetryTotal: 20}
	if err := delta.AssertRetryAmpClose(0); err == nil {
		t.Fatal("expected an error when observed amplification diverges sharply from expected")
	}
}

func TestMetricDeltaInvariantOKOnCleanDelta(t *testing.T) {
	delta := MetricDelta{CallTotalByOutcome: map[string]float64{"success": 10, "failure": 2}, RetryTotal: 1}
	if !delta.InvariantOK() {
		t.Fatalf("expected invariant_ok on a monotonic delta, got diagnostics=%v", delta.NegativeDeltaDiagnostics("s1", 1))
	}
	if diags := delta.NegativeDeltaDiagnostics("s1", 1); len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", diags)
	}
}

func TestMetricDeltaNegativeCallDeltaProducesDiagnostic(t *testing.T) {
	delta := MetricDelta{CallTotalByOutcome: map[string]float64{"success": -5}, RetryTotal: 0}
	if delta.InvariantOK() {
		t.Fatal("expected invariant_ok=false for a negative counter delta")
	}
	diags := delta.NegativeDeltaDiagnostics("s1", 42)
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %+v", diags)
	}
	if diags[0].ScenarioID != "s1" || diags[0].Seed != 42 || diags[0].Outcome != "negative_counter_delta" || diags[0].Observed != -5.0 {
		t.Fatalf("unexpected diagnostic: %+v", diags[0])
	}
}

func TestMetricDeltaNegativeRetryDeltaProducesDiagnostic(t *testing.T) {
	delta := MetricDelta{CallTotalByOutcome: map[string]float64{"success": 10}, RetryTotal: -3}
	diags := delta.NegativeDeltaDiagnostics("s2", 7)
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %+v", diags)
	}
	if diags[0].Dependency != "dependency_retry_total" || diags[0].Observed != -3.0 {
		t.Fatalf("unexpected diagnostic: %+v", diags[0])
	}
}
