package incident

import (
	"testing"
	"time"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time         { return f.t }
func (f fixedClock) MonotonicMillis() int64 { return 0 }

func TestRouteUserFix(t *testing.T) {
	r := NewRouter(fixedClock{t: time.Unix(0, 0)}, 0)
	out := r.Route(RouteInput{Action: Action{Type: ActionUserFix, Code: "MISSING_FIELDS", HintText: "Check invoice"}})
	if out.Status != StatusOpen || out.ActionType != ActionUserFix {
		t.Fatalf("unexpected route: %+v", out)
	}
	alert := out.Payload.Obj["ui_alert"]
	if alert.Obj["code"].Str != "MISSING_FIELDS" {
		t.Fatalf("expected code to carry through, got %+v", alert)
	}
}

func TestRouteRetryLookupSchedulesDelay(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRouter(fixedClock{t: now}, 10*time.Minute)
	out := r.Route(RouteInput{Action: Action{Type: ActionRetryLookup, Code: "TARIFF_LOOKUP_FAILED"}})
	if out.Status != StatusPendingRetry {
		t.Fatalf("expected PENDING_RETRY, got %s", out.Status)
	}
	want := now.Add(10 * time.Minute).Format(time.RFC3339)
	if got := out.Payload.Obj["retry"].Obj["retry_eligible_at"].Str; got != want {
		t.Fatalf("expected eligible_at %s, got %s", want, got)
	}
}

func TestRouteBugReportProducesIssuePayload(t *testing.T) {
	r := NewRouter(fixedClock{t: time.Unix(0, 0)}, 0)
	out := r.Route(RouteInput{
		Action:      Action{Type: ActionBugReport, Owner: "calc", Code: "CALC_BUG"},
		PrimaryFlag: "CALC_BUG",
		Category:    "calculation",
		Severity:    SeverityS1,
		Provider:    "enerjisa",
		InvoiceID:   "INV-1",
		Period:      "2025-06",
		DedupeKey:   "abc123",
	})
	if out.Status != StatusReported {
		t.Fatalf("expected REPORTED, got %s", out.Status)
	}
	issue := out.Payload.Obj["issue"]
	if issue.Obj["dedupe_key"].Str != "abc123" {
		t.Fatalf("expected dedupe_key to carry through")
	}
}

// TestRouteBugReportActionCodeIsDistinctFromActionType reproduces
// spec §8 scenario 2: a BUG_REPORT action whose distinct code
// ("ENGINE_REGRESSION") differs from its ActionType ("BUG_REPORT").
// The dedupe key and action_code column must carry the former, never
// the latter.
func TestRouteBugReportActionCodeIsDistinctFromActionType(t *testing.T) {
	r := NewRouter(fixedClock{t: time.Unix(0, 0)}, 0)
	out := r.Route(RouteInput{
		Action:   Action{Type: ActionBugReport, Owner: "engine", Code: "ENGINE_REGRESSION"},
		Category: "calculation",
		Severity: SeverityS1,
	})
	if out.ActionType != ActionBugReport {
		t.Fatalf("expected ActionType BUG_REPORT, got %s", out.ActionType)
	}
	if out.ActionCode != "ENGINE_REGRESSION" {
		t.Fatalf("expected ActionCode ENGINE_REGRESSION, got %s", out.ActionCode)
	}
}

func TestRouteFallbackOK(t *testing.T) {
	r := NewRouter(fixedClock{t: time.Unix(0, 0)}, 0)
	out := r.Route(RouteInput{Action: Action{Type: ActionFallbackOK}})
	if out.Status != StatusAutoResolved || out.Payload.Kind != ports.KindNull {
		t.Fatalf("expected AUTO_RESOLVED with null payload, got %+v", out)
	}
}

func TestRouteUnknownDefaultsToUserFix(t *testing.T) {
	r := NewRouter(fixedClock{t: time.Unix(0, 0)}, 0)
	out := r.Route(RouteInput{Action: Action{Type: "NOT_A_REAL_TYPE"}})
	if out.ActionType != ActionUserFix || out.Status != StatusOpen {
		t.Fatalf("expected fallback to USER_FIX/OPEN, got %+v", out)
	}
}
