package harness

import (
	"math/rand"
	"testing"
)

func TestFakeClockAdvance(t *testing.T) {
	c := NewFakeClock(1000)
	c.Advance(500)
	if c.MonotonicMillis() != 1500 {
		t.Fatalf("expected 1500, got %d", c.MonotonicMillis())
	}
}

func TestFakeClockAdvanceNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Advance(-1) to panic")
		}
	}()
	NewFakeClock(0).Advance(-1)
}

func TestFakeClockJumpBackwardFloorsAtZero(t *testing.T) {
	c := NewFakeClock(100)
	c.JumpBackward(500)
	if c.MonotonicMillis() != 0 {
		t.Fatalf("expected floor at 0, got %d", c.MonotonicMillis())
	}
}

func TestFakeClockJumpForwardTakesAbsoluteValue(t *testing.T) {
	c := NewFakeClock(1000)
	c.JumpForward(-200)
	if c.MonotonicMillis() != 1200 {
		t.Fatalf("expected 1200, got %d", c.MonotonicMillis())
	}
}

func TestFakeClockJitterNeverNegative(t *testing.T) {
	c := NewFakeClock(0)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		c.Jitter(10, rng)
		if c.MonotonicMillis() < 0 {
			t.Fatal("clock went negative after jitter")
		}
	}
}

func TestFaultScheduleDeterministicForSameSeed(t *testing.T) {
	a := NewFaultSchedule(5, 100, 0.3, nil)
	b := NewFaultSchedule(5, 100, 0.3, nil)
	aEvents, bEvents := a.Events(), b.Events()
	for i := range aEvents {
		if aEvents[i].Action != bEvents[i].Action {
			t.Fatalf("step %d diverged: %s vs %s", i, aEvents[i].Action, bEvents[i].Action)
		}
	}
}

func TestFaultScheduleActionAtOutOfRangeReturnsSkip(t *testing.T) {
	s := NewFaultSchedule(1, 10, 0.3, nil)
	e := s.ActionAt(999)
	if e.Action != FaultActionSkip {
		t.Fatalf("expected skip for out-of-range step, got %s", e.Action)
	}
}

func TestFaultScheduleFaultCountMatchesEvents(t *testing.T) {
	s := NewFaultSchedule(9, 200, 0.4, nil)
	count := 0
	for _, e := range s.Events() {
		if e.Action != FaultActionSkip {
			count++
		}
	}
	if count != s.FaultCount() {
		t.Fatalf("FaultCount() %d != manual count %d", s.FaultCount(), count)
	}
}

func TestFaultBudgetValidateRejectsExcessiveFaultRate(t *testing.T) {
	s := NewFaultSchedule(3, 100, 0.95, nil)
	budget := FaultBudget{MaxFaultRate: 0.1, MaxBurst: 1000, MaxClockJumps: 1000}
	if budget.Validate(s) {
		t.Fatal("expected validation to fail when fault rate exceeds the budget")
	}
}

func TestFaultBudgetValidateAcceptsEmptySchedule(t *testing.T) {
	s := NewFaultSchedule(1, 0, 0.5, nil)
	if !DefaultFaultBudget().Validate(s) {
		t.Fatal("expected an empty schedule to always validate")
	}
}

func TestChaosTraceReplayInfoCollectsFailedSteps(t *testing.T) {
	s := NewFaultSchedule(2, 10, 0.3, nil)
	trace := NewChaosTrace(2, s)
	trace.Add(0, FaultActionSkip, 0, "ok", nil)
	trace.Add(1, FaultActionFail, 10, "invariant_violation", map[string]any{"reason": "x"})
	info := trace.ReplayInfo()
	failedSteps, ok := info["failed_steps"].([]int)
	if !ok || len(failedSteps) != 1 || failedSteps[0] != 1 {
		t.Fatalf("expected failed_steps=[1], got %v", info["failed_steps"])
	}
}
