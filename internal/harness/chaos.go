package harness

import "math/rand"

// FakeClock is a deterministic virtual clock for time-anomaly testing —
// forward jump, backward jump, jitter — all reproducible given the same
// call sequence. It implements ports.Clock's MonotonicMillis shape so a
// chaos test can hand it to code that only needs monotonic time.
type FakeClock struct {
	currentMs int64
}

// NewFakeClock starts the clock at startMs (defaults to 1_000_000 when 0).
func NewFakeClock(startMs int64) *FakeClock {
	if startMs == 0 {
		startMs = 1_000_000
	}
	return &FakeClock{currentMs: startMs}
}

// MonotonicMillis satisfies the same shape callers expect from
// ports.Clock.MonotonicMillis.
func (c *FakeClock) MonotonicMillis() int64 { return c.currentMs }

// Advance moves time forward by deltaMs, panicking on a negative delta —
// use JumpBackward for that.
func (c *FakeClock) Advance(deltaMs int64) {
	if deltaMs < 0 {
		panic("harness: Advance requires a non-negative delta; use JumpBackward")
	}
	c.currentMs += deltaMs
}

// JumpForward simulates a forward time correction (e.g. an NTP step).
func (c *FakeClock) JumpForward(deltaMs int64) {
	if deltaMs < 0 {
		deltaMs = -deltaMs
	}
	c.currentMs += deltaMs
}

// JumpBackward simulates a backward time correction, flooring at 0 so the
// clock never reports a negative timestamp.
func (c *FakeClock) JumpBackward(deltaMs int64) {
	if deltaMs < 0 {
		deltaMs = -deltaMs
	}
	c.currentMs -= deltaMs
	if c.currentMs < 0 {
		c.currentMs = 0
	}
}

// Jitter nudges the clock by a random amount in [-maxJitterMs, +maxJitterMs],
// flooring at 0.
func (c *FakeClock) Jitter(maxJitterMs int64, rng *rand.Rand) {
	if maxJitterMs <= 0 {
		return
	}
	delta := rng.Int63n(2*maxJitterMs+1) - maxJitterMs
	c.currentMs += delta
	if c.currentMs < 0 {
		c.currentMs = 0
	}
}

// FaultAction is one step's scheduled chaos action.
type FaultAction string

const (
	FaultActionFail         FaultAction = "fail"
	FaultActionTimeout      FaultAction = "timeout"
	FaultActionTruncate     FaultAction = "truncate"
	FaultActionSkip         FaultAction = "skip" // no fault
	FaultActionClockJumpFwd FaultAction = "clock_jump_fwd"
	FaultActionClockJumpBwd FaultAction = "clock_jump_bwd"
)

// ScheduledFault is one event in a FaultSchedule.
type ScheduledFault struct {
	Step   int
	Action FaultAction
	Params map[string]any
}

// FaultSchedule is a deterministic, seed-reproducible fault plan: the
// same seed and config always produce the same schedule, so a chaos
// test failure can be replayed exactly.
type FaultSchedule struct {
	seed      int
	totalStep int
	faultRate float64
	allowed   []FaultAction
	events    []ScheduledFault
}

var defaultAllowedFaultActions = []FaultAction{FaultActionFail, FaultActionTimeout}

// NewFaultSchedule builds and immediately generates a schedule of
// totalSteps events. allowed defaults to [fail, timeout] when nil.
func NewFaultSchedule(seed int, totalSteps int, faultRate float64, allowed []FaultAction) *FaultSchedule {
	if allowed == nil {
		allowed = defaultAllowedFaultActions
	}
	s := &FaultSchedule{seed: seed, totalStep: totalSteps, faultRate: faultRate, allowed: allowed}
	s.events = s.generate()
	return s
}

func (s *FaultSchedule) generate() []ScheduledFault {
	rng := rand.New(rand.NewSource(int64(s.seed)))
	events := make([]ScheduledFault, 0, s.totalStep)
	for step := 0; step < s.totalStep; step++ {
		if rng.Float64() < s.faultRate {
			action := s.allowed[rng.Intn(len(s.allowed))]
			params := map[string]any{}
			switch action {
			case FaultActionTimeout:
				params["delay_ms"] = 100 + rng.Intn(4901)
			case FaultActionClockJumpFwd, FaultActionClockJumpBwd:
				params["delta_ms"] = 10 + rng.Intn(491)
			case FaultActionTruncate:
				params["truncate_pct"] = 0.1 + rng.Float64()*0.8
			}
			events = append(events, ScheduledFault{Step: step, Action: action, Params: params})
		} else {
			events = append(events, ScheduledFault{Step: step, Action: FaultActionSkip, Params: map[string]any{}})
		}
	}
	return events
}

// Seed returns the schedule's originating seed.
func (s *FaultSchedule) Seed() int { return s.seed }

// TotalSteps returns the schedule's step count.
func (s *FaultSchedule) TotalSteps() int { return s.totalStep }

// Events returns a copy of the scheduled events.
func (s *FaultSchedule) Events() []ScheduledFault {
	out := make([]ScheduledFault, len(s.events))
	copy(out, s.events)
	return out
}

// FaultCount returns how many steps are not FaultActionSkip.
func (s *FaultSchedule) FaultCount() int {
	n := 0
	for _, e := range s.events {
		if e.Action != FaultActionSkip {
			n++
		}
	}
	return n
}

// ActionAt returns the scheduled event for step, or a FaultActionSkip
// placeholder if step is out of range.
func (s *FaultSchedule) ActionAt(step int) ScheduledFault {
	if step >= 0 && step < len(s.events) {
		return s.events[step]
	}
	return ScheduledFault{Step: step, Action: FaultActionSkip, Params: map[string]any{}}
}

// FaultBudget bounds a schedule's fault density so a chaos test stays
// reproducibly stressful without becoming unreasonably flaky.
type FaultBudget struct {
	MaxFaultRate  float64
	MaxBurst      int
	MaxClockJumps int
}

// DefaultFaultBudget mirrors the upstream harness's defaults.
func DefaultFaultBudget() FaultBudget {
	return FaultBudget{MaxFaultRate: 0.5, MaxBurst: 5, MaxClockJumps: 3}
}

// Validate reports whether schedule respects the budget's fault-rate,
// burst, and clock-jump-count limits.
func (b FaultBudget) Validate(schedule *FaultSchedule) bool {
	events := schedule.Events()
	total := len(events)
	if total == 0 {
		return true
	}

	if float64(schedule.FaultCount())/float64(total) > b.MaxFaultRate {
		return false
	}

	consecutive := 0
	for _, e := range events {
		if e.Action != FaultActionSkip {
			consecutive++
			if consecutive > b.MaxBurst {
				return false
			}
		} else {
			consecutive = 0
		}
	}

	clockJumps := 0
	for _, e := range events {
		if e.Action == FaultActionClockJumpFwd || e.Action == FaultActionClockJumpBwd {
			clockJumps++
		}
	}
	return clockJumps <= b.MaxClockJumps
}

// TraceEntry is one step's recorded outcome in a ChaosTrace.
type TraceEntry struct {
	Step    int
	Action  FaultAction
	ClockMs int64
	Outcome string
	Detail  map[string]any
}

// ChaosTrace captures a full execution trace so a failing chaos run can
// be replayed from its seed alone.
type ChaosTrace struct {
	Seed            int
	ScheduleSummary map[string]any
	Entries         []TraceEntry
}

// NewChaosTrace builds an empty trace for seed, summarizing schedule.
func NewChaosTrace(seed int, schedule *FaultSchedule) *ChaosTrace {
	return &ChaosTrace{
		Seed: seed,
		ScheduleSummary: map[string]any{
			"total_steps": schedule.TotalSteps(),
			"fault_count": schedule.FaultCount(),
		},
	}
}

// Add appends one step's outcome to the trace.
func (t *ChaosTrace) Add(step int, action FaultAction, clockMs int64, outcome string, detail map[string]any) {
	if detail == nil {
		detail = map[string]any{}
	}
	t.Entries = append(t.Entries, TraceEntry{Step: step, Action: action, ClockMs: clockMs, Outcome: outcome, Detail: detail})
}

// ReplayInfo summarizes the minimal facts needed to reproduce this run.
func (t *ChaosTrace) ReplayInfo() map[string]any {
	failedSteps := make([]int, 0)
	for _, e := range t.Entries {
		if e.Outcome == "invariant_violation" {
			failedSteps = append(failedSteps, e.Step)
		}
	}
	return map[string]any{
		"seed":          t.Seed,
		"total_steps":   t.ScheduleSummary["total_steps"],
		"fault_count":   t.ScheduleSummary["fault_count"],
		"entries_count": len(t.Entries),
		"failed_steps":  failedSteps,
	}
}
