package harness

import (
	"testing"
	"time"
)

func TestFaultInjectorEnableDisable(t *testing.T) {
	fi := newFaultInjector(fakeClockPort{ms: 0})
	if fi.IsEnabled(InjectDBTimeout) {
		t.Fatal("expected disabled by default")
	}
	fi.Enable(InjectDBTimeout, map[string]any{"delay_seconds": 2.0}, 0)
	if !fi.IsEnabled(InjectDBTimeout) {
		t.Fatal("expected enabled after Enable")
	}
	if got := fi.Params(InjectDBTimeout)["delay_seconds"]; got != 2.0 {
		t.Fatalf("expected delay_seconds=2.0, got %v", got)
	}
	fi.Disable(InjectDBTimeout)
	if fi.IsEnabled(InjectDBTimeout) {
		t.Fatal("expected disabled after Disable")
	}
}

func TestFaultInjectorTTLExpiry(t *testing.T) {
	clock := &mutableFakeClock{ms: 0}
	fi := newFaultInjector(clock)
	fi.Enable(InjectRateLimitSpike, nil, 100*time.Millisecond)
	if !fi.IsEnabled(InjectRateLimitSpike) {
		t.Fatal("expected enabled immediately after Enable")
	}
	clock.ms = 50
	if !fi.IsEnabled(InjectRateLimitSpike) {
		t.Fatal("expected still enabled before TTL elapses")
	}
	clock.ms = 200
	if fi.IsEnabled(InjectRateLimitSpike) {
		t.Fatal("expected auto-expired after TTL elapses")
	}
}

func TestFaultInjectorDisableAll(t *testing.T) {
	fi := newFaultInjector(fakeClockPort{ms: 0})
	fi.Enable(InjectDBTimeout, nil, 0)
	fi.Enable(InjectGuardInternalError, nil, 0)
	fi.DisableAll()
	for _, p := range allInjectionPoints {
		if fi.IsEnabled(p) {
			t.Fatalf("expected %s disabled after DisableAll", p)
		}
	}
}

func TestGetInstanceIsSingletonUntilReset(t *testing.T) {
	ResetInstance()
	defer ResetInstance()
	a := GetInstance()
	b := GetInstance()
	if a != b {
		t.Fatal("expected GetInstance to return the same instance")
	}
	ResetInstance()
	c := GetInstance()
	if a == c {
		t.Fatal("expected a fresh instance after ResetInstance")
	}
}

type mutableFakeClock struct{ ms int64 }

func (c *mutableFakeClock) Now() time.Time         { return time.Unix(0, c.ms*int64(time.Millisecond)) }
func (c *mutableFakeClock) MonotonicMillis() int64 { return c.ms }
