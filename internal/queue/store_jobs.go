package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = "id, org_id, file_name, storage_path, status, progress_percent, creative_requested, technical_result_json, creative_result_json, error_message, fingerprint_id, content_hash, fingerprint_generated_at, created_at, started_at, completed_at, last_heartbeat, updated_at"

// Enqueue inserts a new QC job in the queued state. Progress is left unset:
// a job that has not started has no progress, not zero progress.
func (s *Store) Enqueue(ctx context.Context, orgID, fileName, storagePath string, creativeRequested bool) (*Job, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, errors.New("org id is required")
	}
	if strings.TrimSpace(storagePath) == "" {
		return nil, errors.New("storage path is required")
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, errors.New("file name is required")
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO qc_jobs (
            org_id, file_name, storage_path, status, progress_percent,
            creative_requested, created_at, updated_at
        ) VALUES (?, ?, ?, ?, NULL, ?, ?, ?)`,
		orgID,
		fileName,
		storagePath,
		StatusQueued,
		boolToInt(creativeRequested),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing job returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM qc_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByFingerprintID fetches the job bound to a fingerprint id.
func (s *Store) GetByFingerprintID(ctx context.Context, fingerprintID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM qc_jobs WHERE fingerprint_id = ? LIMIT 1`,
		strings.TrimSpace(fingerprintID),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by fingerprint: %w", err)
	}
	return job, nil
}

// ListByStatus returns jobs matching a status set ordered by creation time,
// or all jobs when no status is provided.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM qc_jobs`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListFingerprinted returns completed jobs that carry a fingerprint, ordered
// oldest first. Used by the verification scan paths.
func (s *Store) ListFingerprinted(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM qc_jobs WHERE fingerprint_id IS NOT NULL ORDER BY created_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fingerprinted jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Claim atomically flips up to limit queued jobs to running, stamping
// started_at and an initial heartbeat, and returns the claimed jobs. The
// single UPDATE ... RETURNING makes the claim safe under concurrent callers:
// no two invocations receive the same job. An empty eligible set returns an
// empty slice, not an error.
func (s *Store) Claim(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var jobs []*Job
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(
			ctx,
			`UPDATE qc_jobs
             SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
             WHERE id IN (
                 SELECT id FROM qc_jobs WHERE status = ? ORDER BY created_at, id LIMIT ?
             )
             RETURNING `+jobColumns,
			StatusRunning,
			now,
			now,
			now,
			StatusQueued,
			limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		jobs = jobs[:0]
		for rows.Next() {
			job, scanErr := scanJob(rows)
			if scanErr != nil {
				return scanErr
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	return jobs, nil
}

// Stats returns a count of jobs grouped by status, optionally scoped to an
// organization.
func (s *Store) Stats(ctx context.Context, orgID string) (StatsSummary, error) {
	query := `SELECT status, COUNT(1) FROM qc_jobs`
	args := []any{}
	if orgID = strings.TrimSpace(orgID); orgID != "" {
		query += ` WHERE org_id = ?`
		args = append(args, orgID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	summary := StatsSummary{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StatsSummary{}, err
		}
		summary.Total += count
		switch status {
		case StatusQueued:
			summary.Queued = count
		case StatusPaused:
			summary.Paused = count
		case StatusRunning:
			summary.Running = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id                int64
		orgID             string
		fileName          string
		storagePath       string
		statusStr         string
		progressPercent   sql.NullFloat64
		creativeRequested sql.NullInt64
		technicalResult   sql.NullString
		creativeResult    sql.NullString
		errorMessage      sql.NullString
		fingerprintID     sql.NullString
		contentHash       sql.NullString
		fingerprintAtRaw  sql.NullString
		createdRaw        sql.NullString
		startedRaw        sql.NullString
		completedRaw      sql.NullString
		heartbeatRaw      sql.NullString
		updatedRaw        sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&orgID,
		&fileName,
		&storagePath,
		&statusStr,
		&progressPercent,
		&creativeRequested,
		&technicalResult,
		&creativeResult,
		&errorMessage,
		&fingerprintID,
		&contentHash,
		&fingerprintAtRaw,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&heartbeatRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		OrgID:           orgID,
		FileName:        fileName,
		StoragePath:     storagePath,
		Status:          Status(statusStr),
		TechnicalResult: technicalResult.String,
		CreativeResult:  creativeResult.String,
		ErrorMessage:    errorMessage.String,
		FingerprintID:   fingerprintID.String,
		ContentHash:     contentHash.String,
	}
	if creativeRequested.Valid {
		job.CreativeRequested = creativeRequested.Int64 != 0
	}
	if progressPercent.Valid {
		job.Progress = Progress{Started: true, Percent: progressPercent.Float64}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.FingerprintAt = parseOptionalTime(fingerprintAtRaw)
	job.StartedAt = parseOptionalTime(startedRaw)
	job.CompletedAt = parseOptionalTime(completedRaw)
	job.LastHeartbeat = parseOptionalTime(heartbeatRaw)
	return job, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
