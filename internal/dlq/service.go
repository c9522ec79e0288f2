package dlq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
)

// Service orchestrates retries across the dead-letter table and the job
// store. The two tables are updated by separate single-row writes with
// compensating rollback, never a cross-table transaction.
type Service struct {
	store  *Store
	jobs   *queue.Store
	logger *slog.Logger
}

// NewService constructs a DLQ service.
func NewService(store *Store, jobs *queue.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		jobs:   jobs,
		logger: logging.NewComponentLogger(logger, "dlq"),
	}
}

// Store exposes the underlying entry store for read paths.
func (s *Service) Store() *Store {
	return s.store
}

// Retry re-enters a dead-lettered job into the normal pipeline. In dry-run
// mode it reports what would happen without mutating anything. A real retry
// increments the attempt counter, flips the entry to retrying, and requeues
// the underlying job; when the job-side requeue fails the entry is rolled
// back to pending. Entries at their retry budget are abandoned instead.
// Only pending entries with a retryable failure code are eligible; dry-run
// applies the same checks.
func (s *Service) Retry(ctx context.Context, entryID int64, dryRun bool) (*RetryOutcome, error) {
	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if entry.Status != StatusPending {
		return nil, fmt.Errorf("entry %d (status %s): %w", entryID, entry.Status, ErrEntryClosed)
	}
	if !entry.FailureCode.Retryable() {
		return nil, fmt.Errorf("entry %d (code %s): %w", entryID, entry.FailureCode, ErrNotRetryable)
	}

	outcome := &RetryOutcome{
		EntryID:      entry.ID,
		JobID:        entry.JobID,
		DryRun:       dryRun,
		AttemptCount: entry.AttemptCount + 1,
		NextStatus:   StatusRetrying,
	}
	if entry.AttemptCount >= entry.MaxRetries {
		outcome.Abandoned = true
		outcome.AttemptCount = entry.AttemptCount
		outcome.NextStatus = StatusAbandoned
	}

	if dryRun {
		return outcome, nil
	}

	if outcome.Abandoned {
		if err := s.store.markAbandoned(ctx, entry.ID); err != nil {
			return nil, err
		}
		s.logger.Info("dlq entry abandoned, retry budget exhausted",
			logging.Int64("entry_id", entry.ID),
			logging.Int64(logging.FieldJobID, entry.JobID),
			logging.Int("attempt_count", entry.AttemptCount),
		)
		return outcome, nil
	}

	if err := s.store.markRetrying(ctx, entry.ID, entry.AttemptCount+1); err != nil {
		return nil, err
	}

	requeued, err := s.jobs.Requeue(ctx, []int64{entry.JobID})
	if err == nil && len(requeued) == 0 {
		err = fmt.Errorf("job %d not in a requeueable state", entry.JobID)
	}
	if err != nil {
		s.logger.Error("dlq retry failed to requeue job, rolling entry back",
			logging.Int64("entry_id", entry.ID),
			logging.Int64(logging.FieldJobID, entry.JobID),
			logging.Error(err),
		)
		if rbErr := s.store.rollbackToPending(ctx, entry.ID, entry.AttemptCount); rbErr != nil {
			s.logger.Error("dlq entry rollback failed",
				logging.Int64("entry_id", entry.ID),
				logging.Error(rbErr),
			)
		}
		return nil, fmt.Errorf("requeue job %d: %w", entry.JobID, err)
	}

	s.logger.Info("dlq entry retried",
		logging.Int64("entry_id", entry.ID),
		logging.Int64(logging.FieldJobID, entry.JobID),
		logging.Int("attempt_count", entry.AttemptCount+1),
	)
	return outcome, nil
}
