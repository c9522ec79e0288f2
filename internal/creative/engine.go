package creative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
	scoring "github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/creative"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/entitlements"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/transcribe"
)

// ErrNotEntitled rejects analysis for organizations without the creative QC
// entitlement. Checked before any provider call so a rejection never costs
// provider spend.
var ErrNotEntitled = errors.New("creative qc not entitled for organization")

// AnalysisStatus tracks the per-job creative analysis lifecycle.
type AnalysisStatus string

const (
	StatusNotStarted AnalysisStatus = "not_started"
	StatusRunning    AnalysisStatus = "running"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// TranscriptSource names where the analysis input came from.
type TranscriptSource string

const (
	SourceSubtitles       TranscriptSource = "subtitles"
	SourceTechnicalResult TranscriptSource = "technical_result"
	SourceTranscribed     TranscriptSource = "transcribed"
	SourceNone            TranscriptSource = "none"
)

// Result is the persisted creative analysis envelope for one job. A failed
// analysis carries a typed error; scores are present only on completion.
type Result struct {
	Status           AnalysisStatus   `json:"status"`
	Scores           *scoring.Scores  `json:"scores,omitempty"`
	Error            *AnalysisError   `json:"error,omitempty"`
	TranscriptSource TranscriptSource `json:"transcript_source,omitempty"`
	Degraded         bool             `json:"degraded,omitempty"`
	Confidence       float64          `json:"confidence,omitempty"`
	AnalyzedAt       time.Time        `json:"analyzed_at,omitempty"`
}

// AnalysisError is the typed failure shape stored in place of scores.
type AnalysisError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Confidence levels assigned by input quality. A provider-reported transcript
// confidence below these baselines lowers the result further.
const (
	confidenceFull     = 0.9
	confidenceDegraded = 0.4
)

// maxDegradedParameters bounds the per-parameter breakdown when no
// transcript was available. Metadata-only scoring cannot support a full
// dialogue-level breakdown.
const maxDegradedParameters = 3

// recordTimeout bounds failure-path writes made after the per-job context
// has already expired.
const recordTimeout = 5 * time.Second

// Scorer produces creative scores from a transcript and org context.
type Scorer interface {
	AnalyzeTranscript(ctx context.Context, transcript string, orgCtx scoring.OrgContext) (scoring.Scores, error)
	Configured() bool
}

// Transcriber turns fetchable media into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Transcript, error)
	Configured() bool
}

// Locator resolves a job's stored path into a fetchable URL and, when known,
// the media size in bytes.
type Locator interface {
	ResolveURL(ctx context.Context, storagePath string) (string, int64, error)
}

// PassthroughLocator treats storage paths as already fetchable URLs with
// unknown size. Suitable for deliveries registered by pre-signed URL.
type PassthroughLocator struct{}

func (PassthroughLocator) ResolveURL(_ context.Context, storagePath string) (string, int64, error) {
	if strings.TrimSpace(storagePath) == "" {
		return "", 0, services.Wrap(services.ErrValidation, "locator", "resolve", "empty storage path", nil)
	}
	return storagePath, 0, nil
}

// AnalyzeRequest describes one analysis invocation.
type AnalyzeRequest struct {
	JobID int64
	// Force reruns a completed analysis instead of returning the stored
	// result.
	Force bool
	// SubtitleText is transcript content attached to the delivery. When
	// present it is the preferred analysis input.
	SubtitleText string
	// Org context forwarded to the scoring provider.
	TargetAudience  string
	BrandGuidelines string
	PlatformType    string
	LanguageHint    string
}

// Engine runs creative analysis for jobs, guarding entitlement, enforcing
// idempotence, and recording every attempt in the audit trail.
type Engine struct {
	store        *queue.Store
	audit        *AuditStore
	scorer       Scorer
	transcriber  Transcriber
	locator      Locator
	entitlements entitlements.Resolver
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	running map[int64]struct{}
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithLocator overrides the storage locator resolver.
func WithLocator(locator Locator) EngineOption {
	return func(e *Engine) {
		if locator != nil {
			e.locator = locator
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs the creative analysis engine. The audit table is
// created on the store's database handle.
func NewEngine(
	store *queue.Store,
	scorer Scorer,
	transcriber Transcriber,
	resolver entitlements.Resolver,
	logger *slog.Logger,
	opts ...EngineOption,
) (*Engine, error) {
	audit, err := NewAuditStore(store.DB())
	if err != nil {
		return nil, err
	}
	engine := &Engine{
		store:        store,
		audit:        audit,
		scorer:       scorer,
		transcriber:  transcriber,
		locator:      PassthroughLocator{},
		entitlements: resolver,
		logger:       logging.NewComponentLogger(logger, "creative"),
		now:          time.Now,
		running:      make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Audit exposes the append-only audit trail.
func (e *Engine) Audit() *AuditStore {
	return e.audit
}

// StoredResult decodes the persisted analysis envelope for a job. A job with
// no envelope reports not_started.
func StoredResult(job *queue.Job) Result {
	if job == nil || strings.TrimSpace(job.CreativeResult) == "" {
		return Result{Status: StatusNotStarted}
	}
	var result Result
	if err := json.Unmarshal([]byte(job.CreativeResult), &result); err != nil {
		return Result{Status: StatusNotStarted}
	}
	if result.Status == "" {
		result.Status = StatusNotStarted
	}
	return result
}

// Analyze runs creative analysis for one job.
//
// Entitlement is checked first and rejects unlicensed organizations before
// any provider call. A completed analysis short-circuits to the stored
// result unless Force is set, and a concurrent run returns a running status
// rather than starting a duplicate.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (Result, error) {
	job, err := e.store.GetByID(ctx, req.JobID)
	if err != nil {
		return Result{}, err
	}
	if job == nil {
		return Result{}, services.Wrap(services.ErrValidation, "creative", "analyze",
			fmt.Sprintf("job %d not found", req.JobID), nil)
	}

	enabled, err := e.entitlements.CreativeQCEnabled(ctx, job.OrgID)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalAPI, "creative", "entitlement",
			"entitlement lookup failed", err)
	}
	if !enabled {
		return Result{}, services.Wrap(services.ErrValidation, "creative", "entitlement",
			fmt.Sprintf("org %s", job.OrgID), ErrNotEntitled)
	}

	stored := StoredResult(job)
	if stored.Status == StatusCompleted && !req.Force {
		return stored, nil
	}

	if !e.markRunning(req.JobID) {
		return Result{Status: StatusRunning}, nil
	}
	defer e.unmarkRunning(req.JobID)

	action := ActionAnalyze
	if req.Force && stored.Status == StatusCompleted {
		action = ActionRerun
	}

	started := e.now()
	result, err := e.analyze(ctx, job, req)
	elapsed := e.now().Sub(started)

	if err != nil {
		result = Result{
			Status: StatusFailed,
			Error: &AnalysisError{
				Code:    string(services.FailureCode(err)),
				Message: err.Error(),
			},
			AnalyzedAt: e.now().UTC(),
		}
		// The per-job ctx may already be expired when analysis fails on
		// timeout; the failure record must still land.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		e.persist(recordCtx, job, result)
		e.appendAudit(recordCtx, job, action, result, elapsed)
		return result, err
	}

	result.AnalyzedAt = e.now().UTC()
	e.persist(ctx, job, result)
	e.appendAudit(ctx, job, action, result, elapsed)
	return result, nil
}

func (e *Engine) analyze(ctx context.Context, job *queue.Job, req AnalyzeRequest) (Result, error) {
	if e.scorer == nil || !e.scorer.Configured() {
		return Result{}, services.Wrap(services.ErrProviderUnavailable, "creative", "analyze",
			"no creative scoring provider configured", nil)
	}

	transcript, source, transcriptConfidence := e.acquireTranscript(ctx, job, req)

	orgCtx := scoring.OrgContext{
		OrgID:           job.OrgID,
		TargetAudience:  req.TargetAudience,
		BrandGuidelines: req.BrandGuidelines,
		PlatformType:    req.PlatformType,
	}

	result := Result{
		Status:           StatusCompleted,
		TranscriptSource: source,
		Confidence:       confidenceFull,
	}
	input := transcript
	if source == SourceNone {
		result.Degraded = true
		result.Confidence = confidenceDegraded
		input = degradedInput(job)
	} else if transcriptConfidence > 0 && transcriptConfidence < 1 {
		result.Confidence = confidenceFull * transcriptConfidence
	}

	scores, err := e.scorer.AnalyzeTranscript(ctx, input, orgCtx)
	if err != nil {
		return Result{}, err
	}
	if result.Degraded && len(scores.Parameters) > maxDegradedParameters {
		scores.Parameters = scores.Parameters[:maxDegradedParameters]
	}
	result.Scores = &scores
	return result, nil
}

// acquireTranscript assembles analysis input in priority order: subtitle
// text attached to the delivery, a transcript embedded in the technical
// result, then on-demand transcription. Any transcription failure is logged
// and degrades to no transcript instead of failing the analysis.
func (e *Engine) acquireTranscript(ctx context.Context, job *queue.Job, req AnalyzeRequest) (string, TranscriptSource, float64) {
	if text := strings.TrimSpace(req.SubtitleText); text != "" {
		return text, SourceSubtitles, 1
	}
	if text := transcriptFromTechnicalResult(job.TechnicalResult); text != "" {
		return text, SourceTechnicalResult, 1
	}
	if e.transcriber == nil || !e.transcriber.Configured() {
		e.logger.Warn("transcription provider unavailable, degrading analysis",
			logging.Int64(logging.FieldJobID, job.ID))
		return "", SourceNone, 0
	}

	mediaURL, mediaBytes, err := e.locator.ResolveURL(ctx, job.StoragePath)
	if err != nil {
		e.logger.Warn("storage locator failed, degrading analysis",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err))
		return "", SourceNone, 0
	}
	transcript, err := e.transcriber.Transcribe(ctx, transcribe.Request{
		MediaURL:     mediaURL,
		MediaBytes:   mediaBytes,
		LanguageHint: req.LanguageHint,
	})
	if err != nil {
		e.logger.Warn("transcription failed, degrading analysis",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err))
		return "", SourceNone, 0
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return "", SourceNone, 0
	}
	return transcript.Text, SourceTranscribed, transcript.Confidence
}

// transcriptFromTechnicalResult digs a transcript field out of a prior
// technical QC report.
func transcriptFromTechnicalResult(technicalResult string) string {
	if strings.TrimSpace(technicalResult) == "" {
		return ""
	}
	var report struct {
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal([]byte(technicalResult), &report); err != nil {
		return ""
	}
	return strings.TrimSpace(report.Transcript)
}

// degradedInput composes a metadata-only analysis input when no transcript
// could be obtained.
func degradedInput(job *queue.Job) string {
	var sb strings.Builder
	sb.WriteString("No dialogue transcript is available for this delivery. ")
	sb.WriteString("Assess only what delivery metadata supports and keep the parameter breakdown narrow.\n")
	fmt.Fprintf(&sb, "File name: %s\n", job.FileName)
	if strings.TrimSpace(job.TechnicalResult) != "" {
		fmt.Fprintf(&sb, "Technical QC report: %s\n", job.TechnicalResult)
	}
	return sb.String()
}

// persist stores the analysis envelope on the job row. A persistence failure
// is logged with full context; the in-memory result is still returned to the
// caller.
func (e *Engine) persist(ctx context.Context, job *queue.Job, result Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		e.logger.Error("encode creative result",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err))
		return
	}
	if err := e.store.SetCreativeResult(ctx, job.ID, string(payload)); err != nil {
		e.logger.Error("persist creative result",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String(logging.FieldOrgID, job.OrgID),
			logging.Error(err))
	}
}

// appendAudit records the attempt. Audit failures never fail the analysis.
func (e *Engine) appendAudit(ctx context.Context, job *queue.Job, action string, result Result, elapsed time.Duration) {
	rec := AuditRecord{
		OrgID:      job.OrgID,
		JobID:      job.ID,
		Action:     action,
		Status:     string(result.Status),
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  e.now().UTC(),
	}
	if result.Scores != nil {
		rec.Provider = result.Scores.Provider
		rec.Model = result.Scores.Model
	}
	if result.Error != nil {
		rec.Detail = result.Error.Code + ": " + result.Error.Message
	} else if result.Degraded {
		rec.Detail = "degraded: no transcript available"
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		e.logger.Warn("audit append failed",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}

func (e *Engine) markRunning(jobID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.running[jobID]; exists {
		return false
	}
	e.running[jobID] = struct{}{}
	return true
}

func (e *Engine) unmarkRunning(jobID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, jobID)
}
