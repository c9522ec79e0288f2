package control_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/control"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/entitlements"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/testsupport"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/worker"
)

type passAnalyzer struct{}

func (passAnalyzer) Analyze(context.Context, *queue.Job) (worker.Report, error) {
	return worker.Report{
		Passed: true,
		Measurements: map[string]float64{
			"loudness_lufs":  -23.0,
			"sync_offset_ms": 1,
		},
	}, nil
}

func newControlFixture(t *testing.T) (*control.Service, *queue.Store, *worker.Trigger) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dlqStore, err := dlq.NewStore(store.DB(), cfg)
	if err != nil {
		t.Fatalf("dlq.NewStore: %v", err)
	}
	processor := worker.NewProcessor(cfg, store, dlqStore, passAnalyzer{}, nil, entitlements.Static(false), logging.NewNop())
	trigger := worker.NewTrigger()
	return control.NewService(store, processor, trigger, logging.NewNop()), store, trigger
}

func drain(trigger *worker.Trigger) bool {
	select {
	case <-trigger.C():
		return true
	default:
		return false
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	svc, store, trigger := newControlFixture(t)
	ctx := context.Background()
	job := testsupport.EnqueueJob(t, store, "org-studio", "reel.mov")

	paused, err := svc.Pause(ctx, []int64{job.ID})
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Affected != 1 || paused.Action != "pause" {
		t.Fatalf("unexpected pause result %+v", paused)
	}

	listed, err := svc.PausedJobs(ctx)
	if err != nil {
		t.Fatalf("paused jobs: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != job.ID {
		t.Fatalf("paused listing = %+v", listed)
	}

	// Pausing a paused job is an idempotent no-op.
	again, err := svc.Pause(ctx, []int64{job.ID})
	if err != nil {
		t.Fatalf("repeat pause: %v", err)
	}
	if again.Affected != 0 {
		t.Fatalf("repeat pause affected %d", again.Affected)
	}

	resumed, err := svc.Resume(ctx, []int64{job.ID})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Affected != 1 {
		t.Fatalf("unexpected resume result %+v", resumed)
	}
	if !drain(trigger) {
		t.Fatal("resume should kick the processing trigger")
	}

	current, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if current.Status != queue.StatusQueued {
		t.Fatalf("expected queued after resume, got %s", current.Status)
	}
	if current.FileName != job.FileName || current.StoragePath != job.StoragePath {
		t.Fatal("pause/resume must not touch job content")
	}
}

func TestPauseRequiresIDs(t *testing.T) {
	svc, _, _ := newControlFixture(t)
	if _, err := svc.Pause(context.Background(), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProcessQueueCompletesEligibleJobs(t *testing.T) {
	svc, store, _ := newControlFixture(t)
	ctx := context.Background()
	testsupport.EnqueueJob(t, store, "org-studio", "one.mov")
	testsupport.EnqueueJob(t, store, "org-studio", "two.mov")

	result, err := svc.ProcessQueue(ctx, 0)
	if err != nil {
		t.Fatalf("process queue: %v", err)
	}
	if result.Processed != 2 || result.Errors != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	stats, err := svc.Stats(ctx, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Completed != 2 || stats.Queued != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestReprocessExplicitIDs(t *testing.T) {
	svc, store, trigger := newControlFixture(t)
	ctx := context.Background()
	job := testsupport.EnqueueJob(t, store, "org-studio", "retry.mov")
	if _, err := store.Claim(ctx, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	result, err := svc.Reprocess(ctx, control.ReprocessRequest{JobIDs: []int64{job.ID}})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if result.Requeued != 1 || len(result.RequeuedJobIDs) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !drain(trigger) {
		t.Fatal("reprocess should kick the processing trigger")
	}

	current, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if current.Status != queue.StatusQueued {
		t.Fatalf("expected queued, got %s", current.Status)
	}
	if current.ErrorMessage != "" {
		t.Fatal("requeue should clear the error message")
	}
}

func TestReprocessAllUsesCandidateScan(t *testing.T) {
	svc, store, _ := newControlFixture(t)
	ctx := context.Background()

	complete := testsupport.EnqueueJob(t, store, "org-studio", "done.mov")
	failed := testsupport.EnqueueJob(t, store, "org-studio", "failed.mov")
	if _, err := store.Claim(ctx, 2); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkCompleted(ctx, complete.ID,
		`{"passed":true,"measurements":{"loudness_lufs":-23.0,"sync_offset_ms":0}}`); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := store.MarkFailed(ctx, failed.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	result, err := svc.Reprocess(ctx, control.ReprocessRequest{All: true})
	if err != nil {
		t.Fatalf("reprocess all: %v", err)
	}
	if result.Requeued != 1 {
		t.Fatalf("only the failed job should requeue, got %+v", result)
	}
	if result.RequeuedJobIDs[0] != failed.ID {
		t.Fatalf("requeued wrong job: %+v", result.RequeuedJobIDs)
	}
}

func TestReprocessRequiresSelection(t *testing.T) {
	svc, _, _ := newControlFixture(t)
	if _, err := svc.Reprocess(context.Background(), control.ReprocessRequest{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
