package guard

import "testing"

func TestRateLimiterPerEndpointIsolation(t *testing.T) {
	quotas := map[string]int{"extract": 60}
	rl := NewRateLimiter(func(endpoint string) int { return quotas[endpoint] }, nil)

	// burst == perMinute, so the first perMinute calls succeed and the
	// next one is rejected.
	allowed := 0
	for i := 0; i < 61; i++ {
		if rl.Allow("extract", "tenant-a") {
			allowed++
		}
	}
	if allowed != 60 {
		t.Fatalf("expected 60 allowed requests before exhaustion, got %d", allowed)
	}

	if !rl.Allow("extract", "tenant-b") {
		t.Fatalf("expected a different tenant to have its own bucket")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(func(string) int { return 1 }, nil)
	if !rl.Allow("validate", "tenant-a") {
		t.Fatalf("expected first call to be allowed")
	}
	if rl.Allow("validate", "tenant-a") {
		t.Fatalf("expected second call to be rejected")
	}
	rl.Reset()
	if !rl.Allow("validate", "tenant-a") {
		t.Fatalf("expected allowance after reset")
	}
}
