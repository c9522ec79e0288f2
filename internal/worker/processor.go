package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/creative"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/entitlements"
)

// Progress milestones reported per job.
const (
	progressClaimed   = 10
	progressAnalyzed  = 50
	progressCompleted = 100
)

// Analyzer runs deterministic technical QC for one media delivery.
type Analyzer interface {
	Analyze(ctx context.Context, job *queue.Job) (Report, error)
}

// CreativeAnalyzer runs creative QC. Satisfied by *creative.Engine.
type CreativeAnalyzer interface {
	Analyze(ctx context.Context, req creative.AnalyzeRequest) (creative.Result, error)
}

// BatchResult summarizes one ProcessBatch invocation.
type BatchResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Processor claims eligible jobs and runs them through technical and,
// when enabled, creative QC. Multiple Processors may run concurrently
// against the same store; claim exclusivity is guaranteed at the store
// level, so correctness never depends on a single invocation.
type Processor struct {
	cfg          *config.Config
	store        *queue.Store
	deadLetters  *dlq.Store
	analyzer     Analyzer
	creativeQC   CreativeAnalyzer
	entitlements entitlements.Resolver
	heartbeats   *HeartbeatMonitor
	logger       *slog.Logger
}

// NewProcessor constructs a batch processor. The creative analyzer may be
// nil when creative QC is not deployed.
func NewProcessor(
	cfg *config.Config,
	store *queue.Store,
	deadLetters *dlq.Store,
	analyzer Analyzer,
	creativeQC CreativeAnalyzer,
	resolver entitlements.Resolver,
	logger *slog.Logger,
) *Processor {
	interval := time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	timeout := time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second
	return &Processor{
		cfg:          cfg,
		store:        store,
		deadLetters:  deadLetters,
		analyzer:     analyzer,
		creativeQC:   creativeQC,
		entitlements: resolver,
		heartbeats:   NewHeartbeatMonitor(store, logger, interval, timeout),
		logger:       logging.NewComponentLogger(logger, "worker"),
	}
}

// Heartbeats exposes the monitor for the daemon's reclaim tick.
func (p *Processor) Heartbeats() *HeartbeatMonitor {
	return p.heartbeats
}

// ProcessBatch claims up to limit queued jobs and processes them
// sequentially. A claim failure aborts the invocation with an error; per-job
// failures are recorded on the job and in the dead-letter queue and counted,
// never propagated as invocation errors.
func (p *Processor) ProcessBatch(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = p.cfg.Workflow.BatchLimit
	}

	jobs, err := p.store.Claim(ctx, limit)
	if err != nil {
		return BatchResult{Errors: 1}, fmt.Errorf("claim batch: %w", err)
	}
	if len(jobs) == 0 {
		return BatchResult{}, nil
	}

	var result BatchResult
	for _, job := range jobs {
		if err := p.processJob(ctx, job); err != nil {
			result.Errors++
		} else {
			result.Processed++
		}
	}
	p.logger.Info("batch complete",
		logging.Int("processed", result.Processed),
		logging.Int("errors", result.Errors))
	return result, nil
}

// processJob runs one claimed job to a terminal state under the configured
// job timeout, with a heartbeat loop for the duration.
func (p *Processor) processJob(ctx context.Context, job *queue.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithOrgID(ctx, job.OrgID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	jobCtx := ctx
	if seconds := p.cfg.Workflow.JobTimeoutSeconds; seconds > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, time.Duration(seconds)*time.Second)
		defer cancel()
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(jobCtx)
	var wg sync.WaitGroup
	wg.Add(1)
	go p.heartbeats.StartLoop(heartbeatCtx, &wg, job.ID)
	defer func() {
		stopHeartbeat()
		wg.Wait()
	}()

	logger := services.ContextLogger(jobCtx, p.logger)

	if err := p.store.SetProgress(jobCtx, job.ID, progressClaimed); err != nil {
		logger.Warn("set progress", logging.Error(err))
	}

	report, err := p.analyzer.Analyze(services.WithStage(jobCtx, "technical_qc"), job)
	if err != nil {
		p.failJob(ctx, job, "technical_qc", err)
		return err
	}
	if err := p.store.SetProgress(jobCtx, job.ID, progressAnalyzed); err != nil {
		logger.Warn("set progress", logging.Error(err))
	}

	payload, err := json.Marshal(report)
	if err != nil {
		wrapped := services.Wrap(services.ErrProcessing, "worker", "encode-report", "encode technical report", err)
		p.failJob(ctx, job, "technical_qc", wrapped)
		return wrapped
	}

	if err := p.store.SetProgress(jobCtx, job.ID, progressCompleted); err != nil {
		logger.Warn("set progress", logging.Error(err))
	}
	if err := p.store.MarkCompleted(jobCtx, job.ID, string(payload)); err != nil {
		p.failJob(ctx, job, "persist", err)
		return err
	}

	p.runCreativeQC(jobCtx, logger, job)

	logger.Info("job completed",
		logging.Bool("passed", report.Passed),
		logging.Bool("dependency_unavailable", report.DependencyUnavailable))
	return nil
}

// runCreativeQC runs creative analysis when the job opted in and the org is
// entitled. Creative QC is an optional stage here: failures are logged with
// context and never fail the completed job.
func (p *Processor) runCreativeQC(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	if !job.CreativeRequested || p.creativeQC == nil {
		return
	}
	enabled, err := p.entitlements.CreativeQCEnabled(ctx, job.OrgID)
	if err != nil {
		logger.Warn("entitlement lookup failed, skipping creative qc", logging.Error(err))
		return
	}
	if !enabled {
		logger.Info("creative qc not entitled, skipping")
		return
	}

	result, err := p.creativeQC.Analyze(services.WithStage(ctx, "creative_qc"), creative.AnalyzeRequest{JobID: job.ID})
	if err != nil {
		logger.Warn("creative qc failed",
			logging.String(logging.FieldStage, "creative_qc"),
			logging.Error(err))
		return
	}
	logger.Info("creative qc finished",
		logging.String("analysis_status", string(result.Status)),
		logging.Bool("degraded", result.Degraded))
}

// failJob records a failure on both the job row and the dead-letter queue.
// Neither write is skipped because of the other: a job is never failed
// without a DLQ entry, and a DLQ entry always has a failed job behind it.
func (p *Processor) failJob(ctx context.Context, job *queue.Job, stage string, cause error) {
	code := services.FailureCode(cause)
	logger := services.ContextLogger(ctx, p.logger).With(
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldFailureCode, string(code)))
	logger.Error("job failed",
		logging.Bool("retryable", services.Retryable(cause)),
		logging.Error(cause))

	if err := p.store.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		logger.Error("mark job failed", logging.Error(err))
	}

	attemptCount := 0
	if prior, err := p.deadLetters.LatestForJob(ctx, job.ID); err != nil {
		logger.Warn("lookup prior dlq entry", logging.Error(err))
	} else if prior != nil {
		attemptCount = prior.AttemptCount
	}

	payload, err := json.Marshal(map[string]any{
		"file_name":    job.FileName,
		"storage_path": job.StoragePath,
		"stage":        stage,
	})
	if err != nil {
		payload = []byte("{}")
	}
	if _, err := p.deadLetters.Add(ctx, dlq.Failure{
		JobID:        job.ID,
		OrgID:        job.OrgID,
		JobType:      "technical_qc",
		Payload:      string(payload),
		Reason:       cause.Error(),
		Code:         code,
		AttemptCount: attemptCount,
	}); err != nil {
		logger.Error("record dlq entry", logging.Error(err))
	}
}

// CandidateReport summarizes the reprocess-candidate scan.
type CandidateReport struct {
	TotalChecked      int     `json:"totalChecked"`
	NeedsReprocessing int     `json:"needsReprocessing"`
	HasFullResults    int     `json:"hasFullResults"`
	Failed            int     `json:"failed"`
	JobIDs            []int64 `json:"jobIds"`
}

// ReprocessCandidates scans terminal jobs for reruns: every failed job, plus
// completed jobs whose technical result was produced with a dependency down
// or lacks required measurements.
func (p *Processor) ReprocessCandidates(ctx context.Context) (CandidateReport, error) {
	jobs, err := p.store.ListByStatus(ctx, queue.StatusFailed, queue.StatusCompleted)
	if err != nil {
		return CandidateReport{}, fmt.Errorf("list terminal jobs: %w", err)
	}

	report := CandidateReport{TotalChecked: len(jobs)}
	for _, job := range jobs {
		switch {
		case job.Status == queue.StatusFailed:
			report.Failed++
			report.NeedsReprocessing++
			report.JobIDs = append(report.JobIDs, job.ID)
		case needsReprocessing(job.TechnicalResult):
			report.NeedsReprocessing++
			report.JobIDs = append(report.JobIDs, job.ID)
		default:
			report.HasFullResults++
		}
	}
	return report, nil
}
