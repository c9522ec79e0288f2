package creative_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/creative"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
	scoring "github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/creative"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/entitlements"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/transcribe"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/testsupport"
)

type fakeScorer struct {
	mu         sync.Mutex
	inputs     []string
	scores     scoring.Scores
	err        error
	configured bool
	block      chan struct{}
	entered    chan struct{}
}

func (f *fakeScorer) AnalyzeTranscript(ctx context.Context, transcript string, _ scoring.OrgContext) (scoring.Scores, error) {
	if f.block != nil {
		if f.entered != nil {
			select {
			case f.entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-f.block:
		case <-ctx.Done():
			return scoring.Scores{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.inputs = append(f.inputs, transcript)
	f.mu.Unlock()
	if f.err != nil {
		return scoring.Scores{}, f.err
	}
	return f.scores, nil
}

func (f *fakeScorer) Configured() bool { return f.configured }

func (f *fakeScorer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeScorer) lastInput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return ""
	}
	return f.inputs[len(f.inputs)-1]
}

type fakeTranscriber struct {
	transcript transcribe.Transcript
	err        error
	configured bool
	calls      int
}

func (f *fakeTranscriber) Transcribe(context.Context, transcribe.Request) (transcribe.Transcript, error) {
	f.calls++
	if f.err != nil {
		return transcribe.Transcript{}, f.err
	}
	return f.transcript, nil
}

func (f *fakeTranscriber) Configured() bool { return f.configured }

func defaultScores() scoring.Scores {
	return scoring.Scores{
		CreativeScore: 82,
		RiskScore:     12,
		BrandFitScore: 74,
		Parameters: []scoring.ParameterScore{
			{Parameter: "tone", Score: 80},
			{Parameter: "pacing", Score: 85},
			{Parameter: "brand_fit", Score: 74},
			{Parameter: "call_to_action", Score: 60},
		},
		Summary:  "confident upbeat spot",
		Provider: "chat-completions",
		Model:    "test-model",
	}
}

type engineFixture struct {
	engine      *creative.Engine
	store       *queue.Store
	scorer      *fakeScorer
	transcriber *fakeTranscriber
	job         *queue.Job
}

func newEngineFixture(t *testing.T, resolver entitlements.Resolver) *engineFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scorer := &fakeScorer{scores: defaultScores(), configured: true}
	transcriber := &fakeTranscriber{configured: false}

	engine, err := creative.NewEngine(store, scorer, transcriber, resolver, logging.NewNop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	job := testsupport.EnqueueCreativeJob(t, store, "org-studio", "spot_30s.mov")
	if _, err := store.Claim(context.Background(), 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	return &engineFixture{engine: engine, store: store, scorer: scorer, transcriber: transcriber, job: job}
}

func TestAnalyzeEntitlementGuard(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(false))

	_, err := fx.engine.Analyze(context.Background(), creative.AnalyzeRequest{
		JobID:        fx.job.ID,
		SubtitleText: "hello world",
	})
	if !errors.Is(err, creative.ErrNotEntitled) {
		t.Fatalf("expected ErrNotEntitled, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("entitlement rejection should classify as validation, got %v", err)
	}
	if fx.scorer.callCount() != 0 {
		t.Fatal("scorer must not be called for unentitled orgs")
	}
}

func TestAnalyzeIdempotence(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(true))
	ctx := context.Background()
	req := creative.AnalyzeRequest{JobID: fx.job.ID, SubtitleText: "first transcript"}

	first, err := fx.engine.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if first.Status != creative.StatusCompleted {
		t.Fatalf("expected completed, got %s", first.Status)
	}

	second, err := fx.engine.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("repeat analyze: %v", err)
	}
	if fx.scorer.callCount() != 1 {
		t.Fatalf("completed analysis should not recompute, scorer ran %d times", fx.scorer.callCount())
	}
	if second.Scores == nil || second.Scores.CreativeScore != first.Scores.CreativeScore {
		t.Fatal("repeat call should return the stored result")
	}

	forced, err := fx.engine.Analyze(ctx, creative.AnalyzeRequest{
		JobID:        fx.job.ID,
		Force:        true,
		SubtitleText: "revised transcript",
	})
	if err != nil {
		t.Fatalf("forced analyze: %v", err)
	}
	if fx.scorer.callCount() != 2 {
		t.Fatalf("force should rerun, scorer ran %d times", fx.scorer.callCount())
	}
	if forced.Status != creative.StatusCompleted {
		t.Fatalf("expected completed after force, got %s", forced.Status)
	}
}

func TestAnalyzeConcurrentRunReturnsRunning(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(true))
	fx.scorer.block = make(chan struct{})
	fx.scorer.entered = make(chan struct{}, 1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := fx.engine.Analyze(ctx, creative.AnalyzeRequest{JobID: fx.job.ID, SubtitleText: "slow"})
		done <- err
	}()

	// Wait until the first invocation is inside the provider call and
	// therefore holds the running slot.
	select {
	case <-fx.scorer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first invocation never reached the provider")
	}

	result, err := fx.engine.Analyze(ctx, creative.AnalyzeRequest{JobID: fx.job.ID, SubtitleText: "dup"})
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if result.Status != creative.StatusRunning {
		t.Fatalf("expected running status for concurrent invocation, got %s", result.Status)
	}

	close(fx.scorer.block)
	if err := <-done; err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	if fx.scorer.callCount() != 1 {
		t.Fatalf("duplicate invocation must not start a second run, scorer ran %d times", fx.scorer.callCount())
	}
}

func TestAnalyzeTranscriptPriority(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(true))
	ctx := context.Background()

	if err := fx.store.MarkCompleted(ctx, fx.job.ID, `{"transcript":"embedded transcript"}`); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	result, err := fx.engine.Analyze(ctx, creative.AnalyzeRequest{
		JobID:        fx.job.ID,
		SubtitleText: "subtitle transcript",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.TranscriptSource != creative.SourceSubtitles {
		t.Fatalf("subtitles should win, got %s", result.TranscriptSource)
	}
	if fx.scorer.lastInput() != "subtitle transcript" {
		t.Fatalf("scorer received %q", fx.scorer.lastInput())
	}

	result, err = fx.engine.Analyze(ctx, creative.AnalyzeRequest{JobID: fx.job.ID, Force: true})
	if err != nil {
		t.Fatalf("analyze without subtitles: %v", err)
	}
	if result.TranscriptSource != creative.SourceTechnicalResult {
		t.Fatalf("embedded transcript should win next, got %s", result.TranscriptSource)
	}
	if fx.scorer.lastInput() != "embedded transcript" {
		t.Fatalf("scorer received %q", fx.scorer.lastInput())
	}
}

func TestAnalyzeUsesTranscriberWhenNeeded(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(true))
	fx.transcriber.configured = true
	fx.transcriber.transcript = transcribe.Transcript{Text: "spoken words", Confidence: 0.8}

	result, err := fx.engine.Analyze(context.Background(), creative.AnalyzeRequest{JobID: fx.job.ID})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.TranscriptSource != creative.SourceTranscribed {
		t.Fatalf("expected transcribed source, got %s", result.TranscriptSource)
	}
	if fx.transcriber.calls != 1 {
		t.Fatalf("transcriber calls = %d", fx.transcriber.calls)
	}
	if result.Degraded {
		t.Fatal("transcribed analysis should not be degraded")
	}
	if result.Confidence >= 0.9 {
		t.Fatalf("provider confidence 0.8 should lower result confidence, got %v", result.Confidence)
	}
}

func TestAnalyzeDegradesWithoutTranscript(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(true))
	fx.transcriber.configured = true
	fx.transcriber.err = services.Wrap(services.ErrTimeout, "transcribe", "transcribe", "provider down", nil)

	result, err := fx.engine.Analyze(context.Background(), creative.AnalyzeRequest{JobID: fx.job.ID})
	if err != nil {
		t.Fatalf("analysis must not fail when transcription is down: %v", err)
	}
	if result.Status != creative.StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if !result.Degraded {
		t.Fatal("expected degraded analysis")
	}
	if result.TranscriptSource != creative.SourceNone {
		t.Fatalf("expected no transcript source, got %s", result.TranscriptSource)
	}
	if result.Confidence >= 0.9 {
		t.Fatalf("degraded analysis should carry reduced confidence, got %v", result.Confidence)
	}
	if len(result.Scores.Parameters) > 3 {
		t.Fatalf("degraded analysis should narrow the parameter set, got %d", len(result.Scores.Parameters))
	}
	if !strings.Contains(fx.scorer.lastInput(), "spot_30s.mov") {
		t.Fatal("degraded input should carry delivery metadata")
	}
}

func TestAnalyzeFailureStoredAndAudited(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(true))
	fx.scorer.err = services.Wrap(services.ErrExternalAPI, "creative", "complete", "provider 500", nil)
	ctx := context.Background()

	result, err := fx.engine.Analyze(ctx, creative.AnalyzeRequest{JobID: fx.job.ID, SubtitleText: "text"})
	if err == nil {
		t.Fatal("expected analysis error")
	}
	if result.Status != creative.StatusFailed {
		t.Fatalf("expected failed envelope, got %s", result.Status)
	}
	if result.Error == nil || result.Error.Code != "external_api_error" {
		t.Fatalf("expected typed external_api_error, got %+v", result.Error)
	}

	job, err := fx.store.GetByID(ctx, fx.job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	stored := creative.StoredResult(job)
	if stored.Status != creative.StatusFailed {
		t.Fatalf("failure envelope not persisted, got %s", stored.Status)
	}

	records, err := fx.engine.Audit().ListByJob(ctx, fx.job.ID, 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].Status != string(creative.StatusFailed) {
		t.Fatalf("audit status = %s", records[0].Status)
	}
	if !strings.Contains(records[0].Detail, "external_api_error") {
		t.Fatalf("audit detail = %q", records[0].Detail)
	}
}

func TestAnalyzeExpiredContextStillRecordsFailure(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(true))
	fx.scorer.block = make(chan struct{})
	fx.scorer.entered = make(chan struct{}, 1)
	defer close(fx.scorer.block)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var result creative.Result
	var analyzeErr error
	go func() {
		result, analyzeErr = fx.engine.Analyze(ctx, creative.AnalyzeRequest{JobID: fx.job.ID, SubtitleText: "text"})
		close(done)
	}()

	select {
	case <-fx.scorer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("analysis never reached the provider")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("analysis did not return after cancellation")
	}

	if analyzeErr == nil {
		t.Fatal("expected analysis error after cancellation")
	}
	if result.Status != creative.StatusFailed {
		t.Fatalf("expected failed envelope, got %s", result.Status)
	}

	// The job context is dead; the failure record must have landed anyway.
	fresh := context.Background()
	job, err := fx.store.GetByID(fresh, fx.job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	stored := creative.StoredResult(job)
	if stored.Status != creative.StatusFailed {
		t.Fatalf("failure envelope lost, stored status %s", stored.Status)
	}

	records, err := fx.engine.Audit().ListByJob(fresh, fx.job.ID, 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].Status != string(creative.StatusFailed) {
		t.Fatalf("audit status = %s", records[0].Status)
	}
}

func TestAnalyzeAuditTrailCoversReruns(t *testing.T) {
	fx := newEngineFixture(t, entitlements.Static(true))
	ctx := context.Background()
	req := creative.AnalyzeRequest{JobID: fx.job.ID, SubtitleText: "text"}

	if _, err := fx.engine.Analyze(ctx, req); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	req.Force = true
	if _, err := fx.engine.Analyze(ctx, req); err != nil {
		t.Fatalf("forced analyze: %v", err)
	}

	records, err := fx.engine.Audit().ListByJob(ctx, fx.job.ID, 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(records))
	}
	if records[0].Action != creative.ActionAnalyze || records[1].Action != creative.ActionRerun {
		t.Fatalf("unexpected actions %s, %s", records[0].Action, records[1].Action)
	}
	if records[0].Model != "test-model" {
		t.Fatalf("audit should record the model that ran, got %q", records[0].Model)
	}
}
