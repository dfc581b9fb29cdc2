package harness

import (
	"fmt"
	"math"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// LoadProfile pins the request rate and duration of one simulated load
// shape. TargetRequests applies the same deterministic-rounding rule as
// the original: ceil(rate*duration), floored at the profile's
// MinRequestsByProfile entry so a short/slow profile never simulates
// too few requests to be statistically meaningful (GNK-3).
type LoadProfile struct {
	Type            ProfileType
	TargetRPS       float64
	DurationSeconds float64

	// RecurringCadence, if set, is a standard 5-field cron expression
	// describing when this profile should be re-run unattended (e.g.
	// a nightly peak-load rehearsal). Empty means the profile only
	// runs on demand.
	RecurringCadence string
}

// NextRuns parses RecurringCadence and returns the next n scheduled run
// times strictly after from. It returns an error for a profile with no
// cadence or a cadence string cron can't parse.
func (p LoadProfile) NextRuns(from time.Time, n int) ([]time.Time, error) {
	if p.RecurringCadence == "" {
		return nil, fmt.Errorf("profile %s has no recurring cadence", p.Type)
	}
	schedule, err := cron.ParseStandard(p.RecurringCadence)
	if err != nil {
		return nil, fmt.Errorf("parse cadence %q: %w", p.RecurringCadence, err)
	}
	runs := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		runs = append(runs, next)
	}
	return runs, nil
}

// MinRequests returns the GNK-3 floor for this profile's type.
func (p LoadProfile) MinRequests() int { return MinRequestsByProfile[p.Type] }

// TargetRequests is the planned request count for this profile.
func (p LoadProfile) TargetRequests() int {
	planned := int(math.Ceil(p.TargetRPS * p.DurationSeconds))
	if min := p.MinRequests(); planned < min {
		return min
	}
	return planned
}

// DefaultProfiles mirrors the Python module's DEFAULT_PROFILES table.
var DefaultProfiles = map[ProfileType]LoadProfile{
	ProfileBaseline: {Type: ProfileBaseline, TargetRPS: 50, DurationSeconds: 10},
	ProfilePeak:     {Type: ProfilePeak, TargetRPS: 200, DurationSeconds: 10},
	ProfileStress:   {Type: ProfileStress, TargetRPS: 500, DurationSeconds: 5, RecurringCadence: "0 2 * * *"},
	ProfileBurst:    {Type: ProfileBurst, TargetRPS: 1000, DurationSeconds: 0.5},
}

// LoadResult is the outcome of one simulated (dry-run) load execution.
type LoadResult struct {
	Profile          LoadProfile
	StartedAtMs      int64
	FinishedAtMs     int64
	PlannedRequests  int
	ExecutedRequests int
	AchievedRPS      float64
	ScaleFactor      float64 // achieved / target
}

// LoadHarness plans and dry-runs load profiles. It never performs real
// I/O — it validates a profile's shape and computes the deterministic
// counters a real load generator would need to hit, matching the
// Python skeleton's "PR-1: plan + dry-run only" scope exactly; wiring
// this to an actual concurrent request generator is future work the
// upstream module itself defers.
type LoadHarness struct {
	clock ports.Clock
}

// NewLoadHarness builds a LoadHarness using clock for timestamps.
func NewLoadHarness(clock ports.Clock) *LoadHarness {
	return &LoadHarness{clock: clock}
}

// Plan returns the planned request count for profile, guarding against
// the (should-never-happen) case where TargetRequests undercuts the
// profile's own floor.
func (h *LoadHarness) Plan(profile LoadProfile) (int, error) {
	planned := profile.TargetRequests()
	if planned < profile.MinRequests() {
		return 0, fmt.Errorf("planned_requests %d < min_requests %d (GNK-3 violated)", planned, profile.MinRequests())
	}
	return planned, nil
}

// RunDry builds a LoadResult without performing real load. executedOverride,
// if non-negative, substitutes for the planned count (e.g. to simulate a
// generator that fell short).
func (h *LoadHarness) RunDry(profile LoadProfile, executedOverride int) (LoadResult, error) {
	start := h.clock.MonotonicMillis()
	planned, err := h.Plan(profile)
	if err != nil {
		return LoadResult{}, err
	}

	executed := planned
	if executedOverride >= 0 {
		executed = executedOverride
	}
	if executed < profile.MinRequests() {
		return LoadResult{}, fmt.Errorf("executed_requests %d < min_requests %d (GNK-3 violated)", executed, profile.MinRequests())
	}

	var achieved float64
	if profile.DurationSeconds > 0 {
		achieved = float64(executed) / profile.DurationSeconds
	} else {
		achieved = math.Inf(1)
	}

	var scale float64
	if profile.TargetRPS > 0 {
		scale = achieved / profile.TargetRPS
	} else {
		scale = math.Inf(1)
	}
	if scale < 0.01 {
		return LoadResult{}, fmt.Errorf("scale_factor %f < 0.01", scale)
	}

	end := h.clock.MonotonicMillis()

	return LoadResult{
		Profile:          profile,
		StartedAtMs:      start,
		FinishedAtMs:     end,
		PlannedRequests:  planned,
		ExecutedRequests: executed,
		AchievedRPS:      achieved,
		ScaleFactor:      scale,
	}, nil
}

// WithinRPSTolerance reports whether achieved is within ±RPSTolerancePct
// of target.
func WithinRPSTolerance(target, achieved float64) bool {
	if target <= 0 {
		return true
	}
	tol := RPSTolerancePct * target
	return achieved >= target-tol && achieved <= target+tol
}
