// Package incident implements the Incident Engine: deterministic action
// routing, stable-fingerprint dedup with a 24-hour bucket, a monotonic
// status machine, and PII-safe issue-report payloads (spec §4.4).
//
// Grounded on original_source/backend/app/{incident_repository,
// action_router, issue_payload}.py — the dedupe-upsert policy, status
// priority table, and PII allow-list are carried over verbatim in
// meaning, re-expressed in Go's idiom rather than translated line by
// line.
package incident

import (
	"time"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// Severity is a closed four-level incident severity.
type Severity string

const (
	SeverityS1 Severity = "S1"
	SeverityS2 Severity = "S2"
	SeverityS3 Severity = "S3"
	SeverityS4 Severity = "S4"
)

// Status is the incident lifecycle state. Transitions are governed by
// statusPriority, not by an explicit allow-list of edges.
type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusPendingRetry Status = "PENDING_RETRY"
	StatusReported     Status = "REPORTED"
	StatusAutoResolved Status = "AUTO_RESOLVED"
	StatusAck          Status = "ACK"
	StatusResolved     Status = "RESOLVED"
)

// statusPriority orders statuses so a dedupe hit only ever advances an
// incident forward, never backward — e.g. a RESOLVED incident can't be
// silently reopened to PENDING_RETRY by a late-arriving duplicate
// event.
var statusPriority = map[Status]int{
	StatusResolved:     100,
	StatusAck:          80,
	StatusReported:     60,
	StatusPendingRetry: 40,
	StatusOpen:         20,
	StatusAutoResolved: 10,
}

// CanTransition reports whether an incident may move from current to
// next. OPEN is the sole exception: every transition out of OPEN is
// allowed regardless of priority, since OPEN is the default state a
// freshly-created incident starts in and must be free to settle into
// whatever status, the router computes.
func CanTransition(current, next Status) bool {
	if current == StatusOpen {
		return true
	}
	return statusPriority[next] >= statusPriority[current]
}

// ActionType is the closed set of routes the Incident Router dispatches
// to (spec §4.4 item 2).
type ActionType string

const (
	ActionUserFix     ActionType = "USER_FIX"
	ActionRetryLookup ActionType = "RETRY_LOOKUP"
	ActionBugReport   ActionType = "BUG_REPORT"
	ActionFallbackOK  ActionType = "FALLBACK_OK"
)

// Action is the raw routing directive attached to an incoming incident
// event, before the router expands it into a RoutedAction.
type Action struct {
	Type     ActionType
	Owner    string
	Code     string
	HintText string
}

// RoutedAction is the Incident Router's output: the action type, the
// distinct action code (e.g. INVALID_ETTN, ENGINE_REGRESSION — not to
// be confused with ActionType, the four-way route), the status it
// implies, and an opaque payload shaped per action type.
type RoutedAction struct {
	ActionType ActionType
	ActionCode string
	Status     Status
	Payload    ports.Value
}

// Incident is the durable record persisted by the repository.
type Incident struct {
	ID              string
	TraceID         string
	TenantID        string
	Provider        string
	InvoiceID       string
	Period          string
	PrimaryFlag     string
	Category        string
	Severity        Severity
	Message         string
	ActionType      ActionType
	ActionOwner     string
	ActionCode      string
	AllFlags        []string
	SecondaryFlags  []string
	DeductionTotal  int
	RoutedPayload   ports.Value
	Details         ports.Value
	DedupeKey       string
	DedupeBucket    int64
	Status          Status
	OccurrenceCount int
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time
	ResolutionNote  string
	ResolvedBy      string
}

// EpochDay returns the UTC epoch-day for t, used as the 24-hour dedupe
// bucket (spec §4.4 item 1).
func EpochDay(t time.Time) int64 {
	return t.UTC().Unix() / 86400
}
