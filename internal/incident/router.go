package incident

import (
	"time"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// DefaultRetryDelay is the time a RETRY_LOOKUP route schedules a
// retry, matching action_router.py's DEFAULT_RETRY_DELAY_MINUTES.
const DefaultRetryDelay = 30 * time.Minute

// RouteInput is what the router needs to dispatch one incident event.
// Grounded on action_router.py:ActionRouter.route's keyword arguments.
type RouteInput struct {
	Action         Action
	PrimaryFlag    string
	Category       string
	Severity       Severity
	AllFlags       []string
	Provider       string
	InvoiceID      string
	Period         string
	DedupeKey      string
	CalcContext    map[string]ports.Value
	LookupEvidence map[string]ports.Value
}

// Router dispatches an incident event to one of the four routes named
// in spec §4.4 item 2. It is pure apart from an injectable clock, so
// routing is deterministic given the same input and now.
type Router struct {
	clock      ports.Clock
	retryDelay time.Duration
}

// NewRouter constructs a Router. A nil clock defaults to a fresh
// ports.SystemClock; retryDelay <= 0 defaults to DefaultRetryDelay.
func NewRouter(clock ports.Clock, retryDelay time.Duration) *Router {
	if clock == nil {
		clock = ports.NewSystemClock()
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Router{clock: clock, retryDelay: retryDelay}
}

// Route dispatches in to a RoutedAction. An unrecognized action type
// defaults to USER_FIX with a generic "review this" hint, matching
// action_router.py's fallback for an unmapped action_type rather than
// raising.
func (r *Router) Route(in RouteInput) RoutedAction {
	switch in.Action.Type {
	case ActionUserFix:
		return r.routeUserFix(in.Action)
	case ActionRetryLookup:
		return r.routeRetryLookup(in.Action)
	case ActionBugReport:
		return r.routeBugReport(in)
	case ActionFallbackOK:
		return r.routeFallbackOK(in.Action)
	default:
		return RoutedAction{
			ActionType: ActionUserFix,
			ActionCode: "UNKNOWN",
			Status:     StatusOpen,
			Payload: ports.FromObject(map[string]ports.Value{
				"ui_alert": ports.FromObject(map[string]ports.Value{
					"message": ports.FromString("Review"),
					"code":    ports.FromString("UNKNOWN"),
				}),
			}),
		}
	}
}

func (r *Router) routeUserFix(action Action) RoutedAction {
	code := action.Code
	if code == "" {
		code = "UNKNOWN"
	}
	hint := action.HintText
	if hint == "" {
		hint = "Review"
	}
	return RoutedAction{
		ActionType: ActionUserFix,
		ActionCode: code,
		Status:     StatusOpen,
		Payload: ports.FromObject(map[string]ports.Value{
			"ui_alert": ports.FromObject(map[string]ports.Value{
				"message": ports.FromString(hint),
				"code":    ports.FromString(code),
			}),
		}),
	}
}

func (r *Router) routeRetryLookup(action Action) RoutedAction {
	code := action.Code
	if code == "" {
		code = "UNKNOWN"
	}
	eligibleAt := r.clock.Now().Add(r.retryDelay)
	return RoutedAction{
		ActionType: ActionRetryLookup,
		ActionCode: code,
		Status:     StatusPendingRetry,
		Payload: ports.FromObject(map[string]ports.Value{
			"retry": ports.FromObject(map[string]ports.Value{
				"retry_eligible_at": ports.FromString(eligibleAt.UTC().Format(time.RFC3339)),
				"reason_code":       ports.FromString(code),
			}),
		}),
	}
}

func (r *Router) routeBugReport(in RouteInput) RoutedAction {
	code := in.Action.Code
	if code == "" {
		code = "UNKNOWN"
	}
	issue := BuildIssuePayload(IssuePayloadInput{
		PrimaryFlag:    in.PrimaryFlag,
		Category:       in.Category,
		Severity:       in.Severity,
		Action:         in.Action,
		AllFlags:       in.AllFlags,
		DedupeKey:      in.DedupeKey,
		Provider:       in.Provider,
		InvoiceID:      in.InvoiceID,
		Period:         in.Period,
		CalcContext:    in.CalcContext,
		LookupEvidence: in.LookupEvidence,
	})
	return RoutedAction{
		ActionType: ActionBugReport,
		ActionCode: code,
		Status:     StatusReported,
		Payload: ports.FromObject(map[string]ports.Value{
			"issue": issue,
		}),
	}
}

func (r *Router) routeFallbackOK(action Action) RoutedAction {
	code := action.Code
	if code == "" {
		code = "UNKNOWN"
	}
	return RoutedAction{
		ActionType: ActionFallbackOK,
		ActionCode: code,
		Status:     StatusAutoResolved,
		Payload:    ports.Null(),
	}
}
