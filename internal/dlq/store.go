package dlq

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// ErrEntryClosed is returned when mutating a resolved or abandoned entry.
var ErrEntryClosed = errors.New("dlq entry is closed")

// ErrEntryNotFound is returned when an entry id does not exist.
var ErrEntryNotFound = errors.New("dlq entry not found")

// ErrNotRetryable is returned when a retry targets an entry whose failure
// code is permanent.
var ErrNotRetryable = errors.New("dlq entry is not retryable")

// Store manages dead-letter entries. It shares the QC database handle so
// entry and job updates go through the same WAL connection pool, but every
// mutation here is individually atomic; cross-table consistency is handled
// by compensating rollback in Service.
type Store struct {
	db         *sql.DB
	maxRetries int
	baseDelay  time.Duration
	capDelay   time.Duration
	now        func() time.Time
}

// Option customizes the store.
type Option func(*Store)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore initializes the dead-letter table on the shared database.
func NewStore(db *sql.DB, cfg *config.Config, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	store := &Store{
		db:         db,
		maxRetries: cfg.DLQ.MaxRetries,
		baseDelay:  time.Duration(cfg.DLQ.BackoffBaseSeconds) * time.Second,
		capDelay:   time.Duration(cfg.DLQ.BackoffCapSeconds) * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("ensure dlq schema: %w", err)
	}
	return store, nil
}

// Backoff returns the delay before the next retry after attemptCount prior
// attempts: base * 2^attempts, capped at the configured ceiling.
func (s *Store) Backoff(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	delay := s.baseDelay
	for i := 0; i < attemptCount; i++ {
		delay *= 2
		if delay >= s.capDelay {
			return s.capDelay
		}
	}
	if delay > s.capDelay {
		return s.capDelay
	}
	return delay
}

// MaxRetries returns the configured retry ceiling.
func (s *Store) MaxRetries() int {
	return s.maxRetries
}

// Add captures a failure. Entries still within the retry budget are created
// pending with a computed next_retry_at; entries already at or past the
// budget are created abandoned with no next_retry_at. Non-retryable failure
// codes are stored pending without a retry schedule and wait for an operator.
func (s *Store) Add(ctx context.Context, failure Failure) (*Entry, error) {
	if failure.JobID <= 0 {
		return nil, errors.New("job id is required")
	}
	if strings.TrimSpace(failure.Reason) == "" {
		return nil, errors.New("failure reason is required")
	}
	code := failure.Code
	if code == "" {
		code = CodeUnknown
	}

	now := s.now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	status := StatusPending
	var nextRetry any
	switch {
	case failure.AttemptCount >= s.maxRetries:
		status = StatusAbandoned
	case code.Retryable():
		nextRetry = now.Add(s.Backoff(failure.AttemptCount)).Format(time.RFC3339Nano)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO dlq_entries (
            job_id, org_id, job_type, payload_json, failure_reason, failure_code,
            failure_stack, attempt_count, max_retries, last_attempt_at,
            next_retry_at, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		failure.JobID,
		strings.TrimSpace(failure.OrgID),
		strings.TrimSpace(failure.JobType),
		nullableString(failure.Payload),
		failure.Reason,
		string(code),
		nullableString(failure.Stack),
		failure.AttemptCount,
		s.maxRetries,
		timestamp,
		nextRetry,
		status,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert dlq entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches an entry by identifier.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM dlq_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dlq entry: %w", err)
	}
	return entry, nil
}

// LatestForJob fetches the most recent entry recorded for a job, or nil when
// the job has never dead-lettered. Used to carry the attempt budget across
// repeated failures of the same job.
func (s *Store) LatestForJob(ctx context.Context, jobID int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM dlq_entries WHERE job_id = ? ORDER BY id DESC LIMIT 1`, jobID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest dlq entry for job: %w", err)
	}
	return entry, nil
}

// List returns entries ordered newest first, optionally filtered by org and
// status, with limit/offset pagination.
func (s *Store) List(ctx context.Context, orgID string, status Status, limit, offset int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM dlq_entries`
	var clauses []string
	var args []any
	if orgID = strings.TrimSpace(orgID); orgID != "" {
		clauses = append(clauses, "org_id = ?")
		args = append(args, orgID)
	}
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dlq entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Resolve closes an entry with operator attribution, independent of its
// retry count. Closed entries cannot be resolved again.
func (s *Store) Resolve(ctx context.Context, id int64, actor, notes string) (*Entry, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errors.New("resolving actor is required")
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE dlq_entries
         SET status = ?, resolved_by = ?, resolution_notes = ?, resolved_at = ?,
             next_retry_at = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusResolved,
		actor,
		nullableString(notes),
		now,
		now,
		id,
		StatusPending,
		StatusRetrying,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve dlq entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve rows affected: %w", err)
	}
	if affected == 0 {
		entry, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if entry == nil {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("entry %d (status %s): %w", id, entry.Status, ErrEntryClosed)
	}
	return s.Get(ctx, id)
}

// Purge deletes entries older than the cutoff matching the status filter.
// The filter defaults to {resolved, abandoned} so unresolved failures are
// never swept by age alone.
func (s *Store) Purge(ctx context.Context, olderThan time.Time, statuses ...Status) (int64, error) {
	if len(statuses) == 0 {
		statuses = []Status{StatusResolved, StatusAbandoned}
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, olderThan.UTC().Format(time.RFC3339Nano))
	for i, status := range statuses {
		placeholders[i] = "?"
		args = append(args, status)
	}

	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM dlq_entries WHERE created_at < ? AND status IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("purge dlq entries: %w", err)
	}
	return res.RowsAffected()
}

// AggregateStats returns counts grouped by status and by failure code in two
// grouped queries, optionally scoped to an organization.
func (s *Store) AggregateStats(ctx context.Context, orgID string) (Stats, error) {
	stats := Stats{
		ByStatus: make(map[Status]int),
		ByCode:   make(map[FailureCode]int),
	}

	orgID = strings.TrimSpace(orgID)
	statusQuery := `SELECT status, COUNT(1) FROM dlq_entries`
	codeQuery := `SELECT failure_code, COUNT(1) FROM dlq_entries`
	var args []any
	if orgID != "" {
		statusQuery += ` WHERE org_id = ?`
		codeQuery += ` WHERE org_id = ?`
		args = append(args, orgID)
	}

	rows, err := s.db.QueryContext(ctx, statusQuery+` GROUP BY status`, args...)
	if err != nil {
		return stats, fmt.Errorf("dlq status stats: %w", err)
	}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, codeQuery+` GROUP BY failure_code`, args...)
	if err != nil {
		return stats, fmt.Errorf("dlq code stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var code FailureCode
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return stats, err
		}
		stats.ByCode[code] = count
	}
	return stats, rows.Err()
}

// markRetrying increments the attempt counter and flips the entry to
// retrying with a recomputed next_retry_at. Only pending entries qualify.
func (s *Store) markRetrying(ctx context.Context, id int64, attemptCount int) error {
	now := s.now().UTC()
	var nextRetry any
	if attemptCount < s.maxRetries {
		nextRetry = now.Add(s.Backoff(attemptCount)).Format(time.RFC3339Nano)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE dlq_entries
         SET status = ?, attempt_count = ?, last_attempt_at = ?, next_retry_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusRetrying,
		attemptCount,
		now.Format(time.RFC3339Nano),
		nextRetry,
		now.Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark entry retrying: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark retrying rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("entry %d: %w", id, ErrEntryClosed)
	}
	return nil
}

// rollbackToPending reverts a retrying entry to pending with its prior
// attempt count. Used as the compensating action when the job-side requeue
// fails, so no orphaned "retrying" entries remain.
func (s *Store) rollbackToPending(ctx context.Context, id int64, attemptCount int) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE dlq_entries SET status = ?, attempt_count = ?, updated_at = ? WHERE id = ?`,
		StatusPending,
		attemptCount,
		s.now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("rollback entry to pending: %w", err)
	}
	return nil
}

// markAbandoned closes an entry that exhausted its retry budget.
func (s *Store) markAbandoned(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE dlq_entries SET status = ?, next_retry_at = NULL, updated_at = ? WHERE id = ?`,
		StatusAbandoned,
		s.now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark entry abandoned: %w", err)
	}
	return nil
}

const entryColumns = "id, job_id, org_id, job_type, payload_json, failure_reason, failure_code, failure_stack, attempt_count, max_retries, last_attempt_at, next_retry_at, status, resolved_by, resolution_notes, resolved_at, created_at, updated_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id            int64
		jobID         int64
		orgID         string
		jobType       string
		payload       sql.NullString
		reason        string
		code          string
		stack         sql.NullString
		attemptCount  int
		maxRetries    int
		lastAttemptAt sql.NullString
		nextRetryAt   sql.NullString
		statusStr     string
		resolvedBy    sql.NullString
		notes         sql.NullString
		resolvedAt    sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&orgID,
		&jobType,
		&payload,
		&reason,
		&code,
		&stack,
		&attemptCount,
		&maxRetries,
		&lastAttemptAt,
		&nextRetryAt,
		&statusStr,
		&resolvedBy,
		&notes,
		&resolvedAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:              id,
		JobID:           jobID,
		OrgID:           orgID,
		JobType:         jobType,
		Payload:         payload.String,
		FailureReason:   reason,
		FailureCode:     FailureCode(code),
		FailureStack:    stack.String,
		AttemptCount:    attemptCount,
		MaxRetries:      maxRetries,
		Status:          Status(statusStr),
		ResolvedBy:      resolvedBy.String,
		ResolutionNotes: notes.String,
	}
	entry.LastAttemptAt = parseOptionalTime(lastAttemptAt)
	entry.NextRetryAt = parseOptionalTime(nextRetryAt)
	entry.ResolvedAt = parseOptionalTime(resolvedAt)
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
