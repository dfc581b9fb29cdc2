// Package jobstore holds the Job record type and its Postgres-backed
// store: enqueue-idempotent insert, FIFO claim, and terminal-status
// transitions (spec §3, §4.1).
package jobstore

import (
	"time"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// Kind is the unit of work a Job represents.
type Kind string

const (
	KindExtract           Kind = "extract"
	KindValidate          Kind = "validate"
	KindExtractAndValidate Kind = "extract_and_validate"
)

// Status is the Job lifecycle state. Terminal statuses (Succeeded,
// Failed) are immutable once reached.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsActive reports whether s counts toward the at-most-one-active-job
// invariant (spec §3 invariant 1).
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusRunning
}

// IsTerminal reports whether s is a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// MaxErrorLen bounds the Error field per spec §3.
const MaxErrorLen = 2000

// Job is the scheduler's unit of work.
type Job struct {
	ID           string
	InvoiceRef   string
	Kind         Kind
	Status       Status
	Payload      ports.Value
	Result       ports.Value
	Error        string
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	AttemptCount int
}

// Truncate bounds msg to MaxErrorLen, matching the original worker's
// diagnostic-length cap.
func Truncate(msg string) string {
	if len(msg) <= MaxErrorLen {
		return msg
	}
	return msg[:MaxErrorLen]
}
