package incident

import (
	"testing"
	"time"
)

func TestCanTransitionFromOpenAlwaysAllowed(t *testing.T) {
	if !CanTransition(StatusOpen, StatusPendingRetry) {
		t.Fatalf("expected OPEN to allow any transition")
	}
	if !CanTransition(StatusOpen, StatusAutoResolved) {
		t.Fatalf("expected OPEN to allow any transition, even to a lower-priority status")
	}
}

func TestCanTransitionRejectsLowerPriority(t *testing.T) {
	if CanTransition(StatusResolved, StatusPendingRetry) {
		t.Fatalf("expected RESOLVED -> PENDING_RETRY to be rejected")
	}
}

func TestCanTransitionAllowsHigherPriority(t *testing.T) {
	if !CanTransition(StatusPendingRetry, StatusReported) {
		t.Fatalf("expected PENDING_RETRY -> REPORTED to be allowed")
	}
}

func TestEpochDayStableWithinDay(t *testing.T) {
	a := time.Date(2025, 6, 1, 0, 0, 1, 0, time.UTC)
	b := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)
	if EpochDay(a) != EpochDay(b) {
		t.Fatalf("expected same epoch day within 24h UTC window")
	}
}

func TestEpochDayDiffersAcrossDays(t *testing.T) {
	a := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)
	b := time.Date(2025, 6, 2, 0, 0, 1, 0, time.UTC)
	if EpochDay(a) == EpochDay(b) {
		t.Fatalf("expected different epoch day across midnight UTC")
	}
}
