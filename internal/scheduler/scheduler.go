// Package scheduler implements the idempotent, FIFO-claim job scheduler
// and its worker loop (spec §4.1). Safety across concurrent workers
// relies solely on the store's atomic claim; this package adds no
// additional locking.
package scheduler

import (
	"context"

	"github.com/gelka-enerji/invoice-ops/internal/jobstore"
	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// Store is the persistence contract the scheduler depends on —
// satisfied by jobstore.PostgresStore, and narrow enough to fake in
// tests without sqlmock.
type Store interface {
	Enqueue(ctx context.Context, invoiceRef string, kind jobstore.Kind, payload ports.Value, preventDuplicate bool) (jobstore.Job, bool, error)
	Claim(ctx context.Context) (jobstore.Job, bool, error)
	FinishOK(ctx context.Context, jobID string, result ports.Value) error
	FinishFail(ctx context.Context, jobID string, errMsg string) error
	List(ctx context.Context, filter jobstore.ListFilter) ([]jobstore.Job, error)
}

// Scheduler is a thin façade over Store exposing the four operations
// named in spec §4.1.
type Scheduler struct {
	store Store
}

// New constructs a Scheduler over store.
func New(store Store) *Scheduler {
	return &Scheduler{store: store}
}

// Enqueue inserts a Queued job, or returns the active one for
// (invoiceRef, kind) when preventDuplicate is true (the default per
// spec §4.1).
func (s *Scheduler) Enqueue(ctx context.Context, invoiceRef string, kind jobstore.Kind, payload ports.Value, preventDuplicate bool) (jobstore.Job, bool, error) {
	return s.store.Enqueue(ctx, invoiceRef, kind, payload, preventDuplicate)
}

// Claim atomically takes the oldest Queued job, if any.
func (s *Scheduler) Claim(ctx context.Context) (jobstore.Job, bool, error) {
	return s.store.Claim(ctx)
}

// FinishOK marks job succeeded with result.
func (s *Scheduler) FinishOK(ctx context.Context, jobID string, result ports.Value) error {
	return s.store.FinishOK(ctx, jobID, result)
}

// FinishFail marks job failed with a bounded diagnostic.
func (s *Scheduler) FinishFail(ctx context.Context, jobID string, errMsg string) error {
	return s.store.FinishFail(ctx, jobID, errMsg)
}

// List reads jobs matching filter.
func (s *Scheduler) List(ctx context.Context, filter jobstore.ListFilter) ([]jobstore.Job, error) {
	return s.store.List(ctx, filter)
}
