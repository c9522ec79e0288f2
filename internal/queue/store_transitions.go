package queue

import (
	"context"
	"fmt"
	"time"
)

// SetProgress advances progress for a running job. Progress is monotonic:
// a write that would regress an earlier percentage is silently skipped, and
// writes against jobs no longer running affect nothing (the job finished or
// was paused mid-flight).
func (s *Store) SetProgress(ctx context.Context, id int64, percent float64) error {
	p := ProgressAt(percent)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE qc_jobs SET progress_percent = ?, updated_at = ?
         WHERE id = ? AND status = ?
           AND (progress_percent IS NULL OR progress_percent <= ?)`,
		p.Percent,
		nowString(),
		id,
		StatusRunning,
		p.Percent,
	)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// MarkCompleted records the technical QC result and finishes the job.
// Allowed from running, or from paused when the job was paused mid-analysis
// and its in-flight call completed. Any other prior state is a stale write.
func (s *Store) MarkCompleted(ctx context.Context, id int64, technicalResultJSON string) error {
	now := nowString()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE qc_jobs
         SET status = ?, technical_result_json = ?, error_message = NULL,
             progress_percent = 100, completed_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusCompleted,
		technicalResultJSON,
		now,
		now,
		id,
		StatusRunning,
		StatusPaused,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return s.requireAffected(ctx, res, id, "mark completed")
}

// MarkFailed finishes the job with an error detail. Same prior-state rules
// as MarkCompleted.
func (s *Store) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	now := nowString()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE qc_jobs
         SET status = ?, error_message = ?, completed_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed,
		errorMessage,
		now,
		now,
		id,
		StatusRunning,
		StatusPaused,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return s.requireAffected(ctx, res, id, "mark failed")
}

// SetCreativeResult persists the creative analysis payload. Allowed while
// running (the worker finalizes afterwards) or once completed (idempotent
// re-runs against a finished job).
func (s *Store) SetCreativeResult(ctx context.Context, id int64, creativeResultJSON string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE qc_jobs SET creative_result_json = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?)`,
		creativeResultJSON,
		nowString(),
		id,
		StatusRunning,
		StatusPaused,
		StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("set creative result: %w", err)
	}
	return s.requireAffected(ctx, res, id, "set creative result")
}

// SetFingerprint binds a generated fingerprint to a completed job. The
// binding is immutable once present.
func (s *Store) SetFingerprint(ctx context.Context, id int64, fingerprintID, contentHash string, generatedAt time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE qc_jobs
         SET fingerprint_id = ?, content_hash = ?, fingerprint_generated_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND fingerprint_id IS NULL`,
		fingerprintID,
		contentHash,
		generatedAt.UTC().Format(time.RFC3339Nano),
		nowString(),
		id,
		StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("set fingerprint: %w", err)
	}
	return s.requireAffected(ctx, res, id, "set fingerprint")
}

// Pause transitions queued or running jobs to paused and returns the ids
// that actually changed. Already-paused or terminal jobs are untouched, so
// re-pausing is an affected-count-0 no-op.
func (s *Store) Pause(ctx context.Context, ids []int64) ([]int64, error) {
	return s.transitionIDs(ctx, ids, StatusPaused, StatusQueued, StatusRunning)
}

// Resume transitions paused jobs back to queued and returns the ids that
// actually changed. Resuming a non-paused job is a no-op.
func (s *Store) Resume(ctx context.Context, ids []int64) ([]int64, error) {
	return s.transitionIDs(ctx, ids, StatusQueued, StatusPaused)
}

func (s *Store) transitionIDs(ctx context.Context, ids []int64, to Status, from ...Status) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)

	idPlaceholders := makePlaceholders(len(ids))
	fromPlaceholders := makePlaceholders(len(from))
	args := make([]any, 0, len(ids)+len(from)+2)
	args = append(args, to, nowString())
	for _, id := range ids {
		args = append(args, id)
	}
	for _, status := range from {
		args = append(args, status)
	}

	query := `UPDATE qc_jobs SET status = ?, updated_at = ?
        WHERE id IN (` + idPlaceholders + `) AND status IN (` + fromPlaceholders + `)
        RETURNING id`

	var affected []int64
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		affected = affected[:0]
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			affected = append(affected, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("transition jobs to %s: %w", to, err)
	}
	return affected, nil
}

// Requeue resets failed or completed jobs back to queued for reprocessing,
// clearing prior results, errors, progress, and processing timestamps.
func (s *Store) Requeue(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusQueued, nowString())
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed, StatusCompleted)

	query := `UPDATE qc_jobs
        SET status = ?, progress_percent = NULL, technical_result_json = NULL,
            creative_result_json = NULL, error_message = NULL,
            started_at = NULL, completed_at = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status IN (?, ?)
        RETURNING id`

	var affected []int64
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		affected = affected[:0]
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			affected = append(affected, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("requeue jobs: %w", err)
	}
	return affected, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := nowString()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE qc_jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusRunning,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale requeues running jobs whose heartbeat expired before cutoff.
// A stalled worker loses its claim and the job re-enters the queue.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE qc_jobs
        SET status = ?, progress_percent = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusQueued,
		nowString(),
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) requireAffected(ctx context.Context, res interface{ RowsAffected() (int64, error) }, id int64, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected > 0 {
		return nil
	}
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: verify job state: %w", op, err)
	}
	if job == nil {
		return fmt.Errorf("%s: job %d not found", op, id)
	}
	return fmt.Errorf("%s job %d (status %s): %w", op, id, job.Status, ErrStaleState)
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
