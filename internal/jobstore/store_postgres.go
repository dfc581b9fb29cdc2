package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
	"github.com/gelka-enerji/invoice-ops/internal/svcerrors"
)

// ErrNotFound is returned when a job id has no matching row.
var ErrNotFound = errors.New("jobstore: job not found")

// PostgresStore implements the job scheduler's persistence against a
// `jobs` table carrying a unique partial index on
// (invoice_ref, kind) WHERE status IN ('queued','running'), which is
// what makes Enqueue's idempotent insert race-free without an
// application-level lock (spec §4.1, §6 Persisted state).
type PostgresStore struct {
	DB    *sql.DB
	Clock ports.Clock
}

// NewPostgresStore constructs a store over an already-open *sql.DB.
func NewPostgresStore(db *sql.DB, clock ports.Clock) *PostgresStore {
	return &PostgresStore{DB: db, Clock: clock}
}

// Enqueue inserts a new Queued job unless prevent_duplicate is set and
// an active job already exists for (invoiceRef, kind), in which case
// the existing row is returned with created=false. The duplicate check
// and insert happen inside one serializable transaction so concurrent
// enqueues for the same pair cannot both win (spec invariant 1).
func (s *PostgresStore) Enqueue(ctx context.Context, invoiceRef string, kind Kind, payload ports.Value, preventDuplicate bool) (Job, bool, error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return Job{}, false, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if preventDuplicate {
		if existing, ok, err := activeJobTx(ctx, tx, invoiceRef, kind); err != nil {
			return Job{}, false, err
		} else if ok {
			return existing, false, tx.Commit()
		}
	}

	payloadJSON, err := json.Marshal(payload.ToNative())
	if err != nil {
		return Job{}, false, fmt.Errorf("marshal payload: %w", err)
	}

	now := s.Clock.Now()
	job := Job{
		ID:         uuid.NewString(),
		InvoiceRef: invoiceRef,
		Kind:       kind,
		Status:     StatusQueued,
		Payload:    payload,
		CreatedAt:  now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, invoice_ref, kind, status, payload, created_at, attempt_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
	`, job.ID, job.InvoiceRef, job.Kind, job.Status, payloadJSON, job.CreatedAt)
	if err != nil {
		return Job{}, false, fmt.Errorf("insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Job{}, false, fmt.Errorf("commit enqueue tx: %w", err)
	}
	return job, true, nil
}

func activeJobTx(ctx context.Context, tx *sql.Tx, invoiceRef string, kind Kind) (Job, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, invoice_ref, kind, status, payload, result, error,
		       created_at, started_at, finished_at, attempt_count
		FROM jobs
		WHERE invoice_ref = $1 AND kind = $2 AND status IN ('queued', 'running')
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE
	`, invoiceRef, kind)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Claim atomically selects the oldest Queued job (FIFO by created_at)
// and transitions it to Running. `FOR UPDATE SKIP LOCKED` lets multiple
// concurrent workers each grab a distinct row without blocking on one
// another (spec §4.1, ordering guarantee in §5), the same pattern the
// teacher repo uses for its JAM work-package queue.
func (s *PostgresStore) Claim(ctx context.Context) (Job, bool, error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return Job{}, false, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, invoice_ref, kind, status, payload, result, error,
		       created_at, started_at, finished_at, attempt_count
		FROM jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, tx.Commit()
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("select queued job: %w", err)
	}

	now := s.Clock.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', started_at = $2, attempt_count = attempt_count + 1
		WHERE id = $1
	`, job.ID, now)
	if err != nil {
		return Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Job{}, false, fmt.Errorf("commit claim tx: %w", err)
	}

	job.Status = StatusRunning
	job.StartedAt = &now
	job.AttemptCount++
	return job, true, nil
}

// FinishOK transitions a Running job to Succeeded, recording result.
// It is a no-op (returns nil, no error) if the job is already terminal,
// per spec invariant 2.
func (s *PostgresStore) FinishOK(ctx context.Context, jobID string, result ports.Value) error {
	resultJSON, err := json.Marshal(result.ToNative())
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	now := s.Clock.Now()
	_, err = s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'succeeded', result = $2, finished_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, resultJSON, now)
	if err != nil {
		return fmt.Errorf("finish_ok: %w", err)
	}
	return nil
}

// FinishFail transitions a Running job to Failed, recording a
// bounded-length diagnostic. No-op if already terminal.
func (s *PostgresStore) FinishFail(ctx context.Context, jobID string, errMsg string) error {
	now := s.Clock.Now()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error = $2, finished_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, Truncate(errMsg), now)
	if err != nil {
		return fmt.Errorf("finish_fail: %w", err)
	}
	return nil
}

// ListFilter narrows List results; zero-valued fields are unfiltered.
type ListFilter struct {
	InvoiceRef string
	Status     Status
	Kind       Kind
	Limit      int
}

// List reads jobs matching filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, invoice_ref, kind, status, payload, result, error,
		       created_at, started_at, finished_at, attempt_count
		FROM jobs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.InvoiceRef != "" {
		query += " AND invoice_ref = " + arg(filter.InvoiceRef)
	}
	if filter.Status != "" {
		query += " AND status = " + arg(filter.Status)
	}
	if filter.Kind != "" {
		query += " AND kind = " + arg(filter.Kind)
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// GetActiveJob returns the active (Queued or Running) job for
// invoiceRef+kind, if any.
func (s *PostgresStore) GetActiveJob(ctx context.Context, invoiceRef string, kind Kind) (Job, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, invoice_ref, kind, status, payload, result, error,
		       created_at, started_at, finished_at, attempt_count
		FROM jobs
		WHERE invoice_ref = $1 AND kind = $2 AND status IN ('queued', 'running')
		ORDER BY created_at ASC
		LIMIT 1
	`, invoiceRef, kind)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// HasActiveJob reports whether invoiceRef has any active job, across
// all kinds.
func (s *PostgresStore) HasActiveJob(ctx context.Context, invoiceRef string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM jobs
			WHERE invoice_ref = $1 AND status IN ('queued', 'running')
		)
	`, invoiceRef).Scan(&exists)
	return exists, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var job Job
	var payloadJSON, resultJSON []byte
	var errMsg sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.InvoiceRef, &job.Kind, &job.Status,
		&payloadJSON, &resultJSON, &errMsg,
		&job.CreatedAt, &startedAt, &finishedAt, &job.AttemptCount,
	)
	if err != nil {
		return Job{}, err
	}

	job.Payload = unmarshalValue(payloadJSON)
	job.Result = unmarshalValue(resultJSON)
	job.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return job, nil
}

func unmarshalValue(raw []byte) ports.Value {
	if len(raw) == 0 {
		return ports.Null()
	}
	var native any
	if err := json.Unmarshal(raw, &native); err != nil {
		return ports.Null()
	}
	return ports.FromNative(native)
}

// AsServiceError maps a store-level ErrNotFound into the closed-set
// svcerrors.Error the scheduler surfaces to callers.
func AsServiceError(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return svcerrors.New(svcerrors.CodeJobNotFound, "job not found")
	}
	return err
}

// Schema is the DDL for the jobs table, including the partial unique
// index that makes Enqueue's idempotency race-free at the database
// level rather than relying solely on transaction isolation.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	invoice_ref TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	payload JSONB,
	result JSONB,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	attempt_count INT NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS jobs_active_unique
	ON jobs (invoice_ref, kind)
	WHERE status IN ('queued', 'running');
`
