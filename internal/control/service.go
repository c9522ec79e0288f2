package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/worker"
)

// ActionResult is the structured outcome of a pause or resume call. An
// idempotent no-op reports zero affected ids rather than an error.
type ActionResult struct {
	Action   string  `json:"action"`
	Affected int     `json:"affected"`
	JobIDs   []int64 `json:"jobs"`
}

// ReprocessRequest selects which jobs to requeue: an explicit id list, or
// every detected reprocess candidate.
type ReprocessRequest struct {
	JobIDs []int64 `json:"jobIds,omitempty"`
	All    bool    `json:"all,omitempty"`
}

// ReprocessResult reports the jobs actually returned to the queue.
type ReprocessResult struct {
	Requeued       int     `json:"requeued"`
	RequeuedJobIDs []int64 `json:"requeuedJobIds"`
}

// Service is the queue control surface shared by the HTTP API and the CLI.
// Every operation returns a structured result with counts and affected ids,
// never a bare success flag.
type Service struct {
	store     *queue.Store
	processor *worker.Processor
	trigger   *worker.Trigger
	logger    *slog.Logger
}

// NewService constructs the control surface.
func NewService(store *queue.Store, processor *worker.Processor, trigger *worker.Trigger, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		processor: processor,
		trigger:   trigger,
		logger:    logging.NewComponentLogger(logger, "control"),
	}
}

// ProcessQueue runs one batch invocation. Safe to call repeatedly or
// concurrently; already-claimed jobs are simply not claimed again.
func (s *Service) ProcessQueue(ctx context.Context, limit int) (worker.BatchResult, error) {
	return s.processor.ProcessBatch(ctx, limit)
}

// Pause suspends the given queued or running jobs. Jobs already terminal or
// already paused are left untouched and excluded from the affected list.
func (s *Service) Pause(ctx context.Context, jobIDs []int64) (ActionResult, error) {
	if len(jobIDs) == 0 {
		return ActionResult{}, services.Wrap(services.ErrValidation, "control", "pause", "no job ids supplied", nil)
	}
	affected, err := s.store.Pause(ctx, jobIDs)
	if err != nil {
		return ActionResult{}, fmt.Errorf("pause jobs: %w", err)
	}
	s.logger.Info("jobs paused", logging.Int("affected", len(affected)))
	return ActionResult{Action: "pause", Affected: len(affected), JobIDs: affected}, nil
}

// Resume returns paused jobs to the queue and kicks the processing trigger
// so they do not wait for the next scheduled tick.
func (s *Service) Resume(ctx context.Context, jobIDs []int64) (ActionResult, error) {
	if len(jobIDs) == 0 {
		return ActionResult{}, services.Wrap(services.ErrValidation, "control", "resume", "no job ids supplied", nil)
	}
	affected, err := s.store.Resume(ctx, jobIDs)
	if err != nil {
		return ActionResult{}, fmt.Errorf("resume jobs: %w", err)
	}
	if len(affected) > 0 {
		s.trigger.Kick()
	}
	s.logger.Info("jobs resumed", logging.Int("affected", len(affected)))
	return ActionResult{Action: "resume", Affected: len(affected), JobIDs: affected}, nil
}

// PausedJobs lists jobs currently paused.
func (s *Service) PausedJobs(ctx context.Context) ([]*queue.Job, error) {
	return s.store.ListByStatus(ctx, queue.StatusPaused)
}

// Reprocess requeues terminal jobs for another run, then kicks the trigger.
// With All set, the id list comes from the reprocess-candidate scan.
func (s *Service) Reprocess(ctx context.Context, req ReprocessRequest) (ReprocessResult, error) {
	ids := req.JobIDs
	if req.All {
		report, err := s.processor.ReprocessCandidates(ctx)
		if err != nil {
			return ReprocessResult{}, err
		}
		ids = report.JobIDs
	}
	if len(ids) == 0 {
		if req.All {
			return ReprocessResult{RequeuedJobIDs: []int64{}}, nil
		}
		return ReprocessResult{}, services.Wrap(services.ErrValidation, "control", "reprocess",
			"supply job ids or all=true", nil)
	}

	requeued, err := s.store.Requeue(ctx, ids)
	if err != nil {
		return ReprocessResult{}, fmt.Errorf("requeue jobs: %w", err)
	}
	if len(requeued) > 0 {
		s.trigger.Kick()
	}
	s.logger.Info("jobs requeued", logging.Int("requeued", len(requeued)))
	return ReprocessResult{Requeued: len(requeued), RequeuedJobIDs: requeued}, nil
}

// ReprocessCandidates reports, without mutating anything, which terminal
// jobs would be requeued by Reprocess with All set.
func (s *Service) ReprocessCandidates(ctx context.Context) (worker.CandidateReport, error) {
	return s.processor.ReprocessCandidates(ctx)
}

// Stats summarizes queue counts per lifecycle state, optionally scoped to
// one organization.
func (s *Service) Stats(ctx context.Context, orgID string) (queue.StatsSummary, error) {
	return s.store.Stats(ctx, orgID)
}
