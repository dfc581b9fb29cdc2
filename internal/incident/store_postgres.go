package incident

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gelka-enerji/invoice-ops/internal/fingerprint"
	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// ErrNotFound is returned by GetByID when no row matches.
var ErrNotFound = errors.New("incident: not found")

// Schema is the DDL for the incidents table. Grounded on
// jobstore.Schema's shape; the partial-unique-index technique from the
// job table isn't needed here since (tenant_id, dedupe_key,
// dedupe_bucket) is unconditionally unique — the bucket itself is what
// lets the same key recur after 24 hours (spec §4.4 item 1).
const Schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id               TEXT PRIMARY KEY,
	trace_id         TEXT NOT NULL,
	tenant_id        TEXT NOT NULL,
	provider         TEXT NOT NULL,
	invoice_id       TEXT NOT NULL,
	period           TEXT NOT NULL,
	primary_flag     TEXT NOT NULL,
	category         TEXT NOT NULL,
	severity         TEXT NOT NULL,
	message          TEXT NOT NULL,
	action_type      TEXT NOT NULL,
	action_owner     TEXT NOT NULL,
	action_code      TEXT NOT NULL,
	all_flags        TEXT[] NOT NULL DEFAULT '{}',
	secondary_flags  TEXT[] NOT NULL DEFAULT '{}',
	deduction_total  INTEGER NOT NULL DEFAULT 0,
	routed_payload   JSONB,
	details_json     JSONB,
	dedupe_key       TEXT NOT NULL,
	dedupe_bucket    BIGINT NOT NULL,
	status           TEXT NOT NULL,
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	first_seen_at    TIMESTAMPTZ NOT NULL,
	last_seen_at     TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	resolved_at      TIMESTAMPTZ,
	resolution_note  TEXT,
	resolved_by      TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS incidents_dedupe_unique
	ON incidents (tenant_id, dedupe_key, dedupe_bucket);

CREATE INDEX IF NOT EXISTS incidents_status_idx ON incidents (tenant_id, status, last_seen_at DESC);
`

// UpsertInput is everything the dedupe upsert needs. Grounded on
// incident_repository.py:upsert_incident's keyword arguments.
type UpsertInput struct {
	TraceID        string
	TenantID       string
	Provider       string
	InvoiceID      string
	Period         string
	PrimaryFlag    string
	Category       string
	Severity       Severity
	Message        string
	AllFlags       []string
	SecondaryFlags []string
	DeductionTotal int
	// ActionCode overrides the action code used for the dedupe key and
	// the action_code column; callers that already routed the action
	// through Router.Route can leave this blank and let Routed.ActionCode
	// carry it instead.
	ActionCode string
	Routed     RoutedAction
	Details    ports.Value
}

// DedupeKey computes the stable fingerprint key used for the 24-hour
// dedupe bucket (spec §4.4 item 1): no time-varying fields, so the
// same (provider, invoice, primary flag, category, action code,
// period) always produces the same key across processes.
func DedupeKey(provider, invoiceID, primaryFlag, category, actionCode, period string) string {
	return fingerprint.SHA256Hex(fingerprint.Join(provider, invoiceID, primaryFlag, category, actionCode, period))
}

// PostgresStore is the incidents repository.
type PostgresStore struct {
	DB    *sql.DB
	Clock ports.Clock
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *sql.DB, clock ports.Clock) *PostgresStore {
	if clock == nil {
		clock = ports.NewSystemClock()
	}
	return &PostgresStore{DB: db, Clock: clock}
}

type existingRow struct {
	ID              string
	Status          Status
	OccurrenceCount int
	RoutedPayload   ports.Value
	Details         ports.Value
}

// Upsert applies the dedupe-upsert policy from spec §4.4 item 1: a
// (tenant, dedupe_key, dedupe_bucket) hit updates last_seen_at,
// increments occurrence_count, advances status only if CanTransition
// allows it, applies the BUG_REPORT-payload-set-once-only rule, and
// shallow-merges details; a miss inserts a fresh row. Returns the
// incident ID and whether it was newly created.
func (s *PostgresStore) Upsert(ctx context.Context, in UpsertInput) (id string, isNew bool, err error) {
	now := s.Clock.Now().UTC()
	actionCode := in.ActionCode
	if actionCode == "" {
		actionCode = in.Routed.ActionCode
	}
	if actionCode == "" {
		actionCode = "UNKNOWN"
	}
	dedupeKey := DedupeKey(in.Provider, in.InvoiceID, in.PrimaryFlag, in.Category, actionCode, in.Period)
	dedupeBucket := EpochDay(now)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, found, err := findExistingTx(ctx, tx, in.TenantID, dedupeKey, dedupeBucket)
	if err != nil {
		return "", false, err
	}

	if found {
		if err := applyDedupeHitTx(ctx, tx, existing, in, now); err != nil {
			return "", false, err
		}
		if err := tx.Commit(); err != nil {
			return "", false, fmt.Errorf("commit: %w", err)
		}
		return existing.ID, false, nil
	}

	newID := uuid.NewString()
	if err := insertTx(ctx, tx, newID, dedupeKey, dedupeBucket, actionCode, in, now); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}
	return newID, true, nil
}

func findExistingTx(ctx context.Context, tx *sql.Tx, tenantID, dedupeKey string, dedupeBucket int64) (existingRow, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, status, occurrence_count, routed_payload, details_json
		FROM incidents
		WHERE tenant_id = $1 AND dedupe_key = $2 AND dedupe_bucket = $3
		FOR UPDATE`, tenantID, dedupeKey, dedupeBucket)

	var (
		incID           string
		status          string
		occurrenceCount int
		routedPayload   []byte
		detailsJSON     []byte
	)
	err := row.Scan(&incID, &status, &occurrenceCount, &routedPayload, &detailsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return existingRow{}, false, nil
	}
	if err != nil {
		return existingRow{}, false, fmt.Errorf("find existing incident: %w", err)
	}
	return existingRow{
		ID:              incID,
		Status:          Status(status),
		OccurrenceCount: occurrenceCount,
		RoutedPayload:   unmarshalValue(routedPayload),
		Details:         unmarshalValue(detailsJSON),
	}, true, nil
}

// applyDedupeHitTx implements incident_repository.py's UPDATE branch:
// bump last_seen_at/occurrence_count, advance status only if allowed,
// apply the BUG_REPORT-payload-set-once-only rule, and shallow-merge
// details rather than overwrite them.
func applyDedupeHitTx(ctx context.Context, tx *sql.Tx, existing existingRow, in UpsertInput, now time.Time) error {
	newStatus := existing.Status
	if CanTransition(existing.Status, in.Routed.Status) {
		newStatus = in.Routed.Status
	}

	routedPayload := existing.RoutedPayload
	switch {
	case in.Routed.ActionType == ActionBugReport:
		if existing.RoutedPayload.Kind == ports.KindNull {
			routedPayload = in.Routed.Payload
		}
	case in.Routed.Payload.Kind != ports.KindNull:
		routedPayload = in.Routed.Payload
	}

	mergedDetails := mergeDetails(existing.Details, in.Details)

	routedBytes, err := marshalValue(routedPayload)
	if err != nil {
		return err
	}
	detailsBytes, err := marshalValue(mergedDetails)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE incidents
		SET last_seen_at = $2,
		    occurrence_count = occurrence_count + 1,
		    updated_at = $2,
		    status = $3,
		    routed_payload = $4,
		    details_json = $5
		WHERE id = $1`,
		existing.ID, now, string(newStatus), routedBytes, detailsBytes)
	return err
}

func insertTx(ctx context.Context, tx *sql.Tx, id, dedupeKey string, dedupeBucket int64, actionCode string, in UpsertInput, now time.Time) error {
	routedBytes, err := marshalValue(in.Routed.Payload)
	if err != nil {
		return err
	}
	detailsBytes, err := marshalValue(in.Details)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO incidents (
			id, trace_id, tenant_id, provider, invoice_id, period,
			primary_flag, category, severity, message,
			action_type, action_owner, action_code,
			all_flags, secondary_flags, deduction_total,
			routed_payload, details_json, dedupe_key, dedupe_bucket,
			status, occurrence_count, first_seen_at, last_seen_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19, $20,
			$21, 1, $22, $22,
			$22, $22
		)`,
		id, in.TraceID, in.TenantID, in.Provider, in.InvoiceID, in.Period,
		in.PrimaryFlag, in.Category, string(in.Severity), in.Message,
		string(in.Routed.ActionType), actionOwner(in.Routed), actionCode,
		pq.Array(in.AllFlags), pq.Array(in.SecondaryFlags), in.DeductionTotal,
		routedBytes, detailsBytes, dedupeKey, dedupeBucket,
		string(in.Routed.Status), now)
	return err
}

func actionOwner(routed RoutedAction) string {
	if routed.Payload.Kind != ports.KindObject {
		return ""
	}
	if action, ok := routed.Payload.Obj["action"]; ok && action.Kind == ports.KindObject {
		return action.Obj["owner"].Str
	}
	return ""
}

// mergeDetails shallow-merges incoming on top of existing, preserving
// existing keys not present in incoming — incident_repository.py's
// "add new information, keep the old" details policy.
func mergeDetails(existing, incoming ports.Value) ports.Value {
	if incoming.Kind != ports.KindObject {
		return existing
	}
	merged := make(map[string]ports.Value)
	if existing.Kind == ports.KindObject {
		for k, v := range existing.Obj {
			merged[k] = v
		}
	}
	for k, v := range incoming.Obj {
		merged[k] = v
	}
	return ports.FromObject(merged)
}

func marshalValue(v ports.Value) ([]byte, error) {
	if v.Kind == ports.KindNull {
		return nil, nil
	}
	return json.Marshal(v.ToNative())
}

func unmarshalValue(b []byte) ports.Value {
	if len(b) == 0 {
		return ports.Null()
	}
	var native any
	if err := json.Unmarshal(b, &native); err != nil {
		return ports.Null()
	}
	return ports.FromNative(native)
}

// GetByID reads one incident by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Incident, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, trace_id, tenant_id, provider, invoice_id, period,
		       primary_flag, category, severity, message,
		       action_type, action_owner, action_code,
		       status, occurrence_count,
		       first_seen_at, last_seen_at, created_at, updated_at
		FROM incidents WHERE id = $1`, id)

	var inc Incident
	err := row.Scan(&inc.ID, &inc.TraceID, &inc.TenantID, &inc.Provider, &inc.InvoiceID, &inc.Period,
		&inc.PrimaryFlag, &inc.Category, &inc.Severity, &inc.Message,
		&inc.ActionType, &inc.ActionOwner, &inc.ActionCode,
		&inc.Status, &inc.OccurrenceCount,
		&inc.FirstSeenAt, &inc.LastSeenAt, &inc.CreatedAt, &inc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, ErrNotFound
	}
	if err != nil {
		return Incident{}, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// UpdateStatus transitions an incident's status, enforcing
// CanTransition the same way the dedupe upsert does (spec §4.4 item
// 3). Returns false (not an error) when the transition is rejected or
// the incident doesn't exist, mirroring
// incident_repository.py:update_incident_status.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, newStatus Status, resolutionNote, resolvedBy string) (bool, error) {
	inc, err := s.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !CanTransition(inc.Status, newStatus) {
		return false, nil
	}

	now := s.Clock.Now().UTC()
	var resolvedAt any
	if newStatus == StatusResolved {
		resolvedAt = now
	}

	_, err = s.DB.ExecContext(ctx, `
		UPDATE incidents
		SET status = $2, updated_at = $3, resolution_note = NULLIF($4, ''),
		    resolved_by = NULLIF($5, ''), resolved_at = COALESCE($6, resolved_at)
		WHERE id = $1`,
		id, string(newStatus), now, resolutionNote, resolvedBy, resolvedAt)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return true, nil
}
