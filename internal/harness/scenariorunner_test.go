package harness

import "testing"

func TestRunScenarioNoopWhenDisabled(t *testing.T) {
	r := NewScenarioRunner(DefaultRuntimeConfig())
	result := r.RunScenario("s1", InjectionConfig{Enabled: false}, 100)
	if result.ScenarioID != "noop" {
		t.Fatalf("expected noop scenario, got %s", result.ScenarioID)
	}
}

func TestRunScenarioDeterministicForSameSeed(t *testing.T) {
	r := NewScenarioRunner(DefaultRuntimeConfig())
	injection := InjectionConfig{Enabled: true, FaultType: FaultDBTimeout, FailureRate: 0.3, Seed: 42}
	a := r.RunScenario("s1", injection, 100)
	b := r.RunScenario("s1", injection, 100)
	if len(a.Outcomes) != len(b.Outcomes) {
		t.Fatalf("expected same outcome length, got %d vs %d", len(a.Outcomes), len(b.Outcomes))
	}
	for i := range a.Outcomes {
		if a.Outcomes[i] != b.Outcomes[i] {
			t.Fatalf("outcome %d diverged: %s vs %s", i, a.Outcomes[i], b.Outcomes[i])
		}
	}
}

func TestRunScenarioDefaultsRequestCount(t *testing.T) {
	r := NewScenarioRunner(DefaultRuntimeConfig())
	result := r.RunScenario("s1", InjectionConfig{Enabled: true, FaultType: FaultExternal5xx, FailureRate: 0.1, Seed: 7}, 0)
	if len(result.Outcomes) != 200 {
		t.Fatalf("expected default 200 requests, got %d", len(result.Outcomes))
	}
}

func TestRunScenarioCircuitBreakerOpensOnHighFailureRate(t *testing.T) {
	r := NewScenarioRunner(DefaultRuntimeConfig())
	result := r.RunScenario("s1", InjectionConfig{Enabled: true, FaultType: FaultDBTimeout, FailureRate: 0.9, Seed: 1}, 200)
	if !result.CBOpened {
		t.Fatal("expected circuit breaker to open under a high DB timeout failure rate")
	}
}

func TestRunScenarioNeverOpensCircuitForRateLimitFaults(t *testing.T) {
	r := NewScenarioRunner(DefaultRuntimeConfig())
	result := r.RunScenario("s1", InjectionConfig{Enabled: true, FaultType: FaultRateLimit, FailureRate: 1.0, Seed: 1}, 200)
	if result.CBOpened {
		t.Fatal("rate-limit rejections must never be attributed to the circuit breaker")
	}
}

func TestInjectionPointForKnownFault(t *testing.T) {
	p, ok := InjectionPointFor(FaultKillswitch)
	if !ok || p != InjectKillswitchToggle {
		t.Fatalf("expected InjectKillswitchToggle, got %v, ok=%v", p, ok)
	}
}

func TestInjectionPointForUnknownFault(t *testing.T) {
	if _, ok := InjectionPointFor(FaultType("unknown")); ok {
		t.Fatal("expected ok=false for an unrecognized fault type")
	}
}

func TestTagWriteMarksScenarioAndPreservesScenarioID(t *testing.T) {
	r := NewScenarioRunner(DefaultRuntimeConfig())
	result := r.RunScenario("s1", InjectionConfig{Enabled: false}, 0)
	tagged := result.TagWrite(3)

	if !tagged.IsWrite || tagged.RetryCount != 3 {
		t.Fatalf("expected IsWrite=true RetryCount=3, got %+v", tagged)
	}
	if result.IsWrite {
		t.Fatal("expected TagWrite to return a copy, not mutate the receiver")
	}
	if tagged.ScenarioID != result.ScenarioID {
		t.Fatalf("expected TagWrite to preserve ScenarioID, got %q", tagged.ScenarioID)
	}
}
