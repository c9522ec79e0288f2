package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/testsupport"
)

func newDLQFixture(t *testing.T, opts ...testsupport.ConfigOption) (*queue.Store, *dlq.Store, *dlq.Service) {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	entries, err := dlq.NewStore(store.DB(), cfg)
	if err != nil {
		t.Fatalf("dlq.NewStore: %v", err)
	}
	service := dlq.NewService(entries, store, logging.NewNop())
	return store, entries, service
}

func failJob(t *testing.T, store *queue.Store, entries *dlq.Store, attemptCount int) (*queue.Job, *dlq.Entry) {
	t.Helper()

	ctx := context.Background()
	job := testsupport.EnqueueJob(t, store, "org-1", "broken.mov")
	if _, err := store.Claim(ctx, 10); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.MarkFailed(ctx, job.ID, "download failed"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	entry, err := entries.Add(ctx, dlq.Failure{
		JobID:        job.ID,
		OrgID:        job.OrgID,
		JobType:      "technical_qc",
		Reason:       "download failed",
		Code:         dlq.CodeDownloadError,
		AttemptCount: attemptCount,
	})
	if err != nil {
		t.Fatalf("entries.Add: %v", err)
	}
	return job, entry
}

func TestBackoffDoublesUntilCap(t *testing.T) {
	_, entries, _ := newDLQFixture(t)

	expected := []time.Duration{
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
	}
	for attempts, want := range expected {
		if got := entries.Backoff(attempts); got != want {
			t.Fatalf("Backoff(%d) = %s, want %s", attempts, got, want)
		}
	}
	if got := entries.Backoff(20); got != 3600*time.Second {
		t.Fatalf("Backoff(20) = %s, want cap 1h", got)
	}
}

func TestAddSchedulesRetryWithinBudget(t *testing.T) {
	store, entries, _ := newDLQFixture(t)

	_, entry := failJob(t, store, entries, 0)
	if entry.Status != dlq.StatusPending {
		t.Fatalf("expected pending entry, got %s", entry.Status)
	}
	if entry.NextRetryAt == nil {
		t.Fatal("expected next retry scheduled")
	}
	if entry.FailureCode != dlq.CodeDownloadError {
		t.Fatalf("unexpected failure code %s", entry.FailureCode)
	}
}

func TestAddAbandonsAtRetryBudget(t *testing.T) {
	store, entries, _ := newDLQFixture(t, testsupport.WithDLQPolicy(2, 1))

	_, entry := failJob(t, store, entries, 2)
	if entry.Status != dlq.StatusAbandoned {
		t.Fatalf("expected abandoned entry at budget, got %s", entry.Status)
	}
	if entry.NextRetryAt != nil {
		t.Fatalf("abandoned entry should have no retry time, got %v", entry.NextRetryAt)
	}
}

func TestRetryDryRunMutatesNothing(t *testing.T) {
	store, entries, service := newDLQFixture(t)

	ctx := context.Background()
	job, entry := failJob(t, store, entries, 0)

	outcome, err := service.Retry(ctx, entry.ID, true)
	if err != nil {
		t.Fatalf("Retry dry-run failed: %v", err)
	}
	if !outcome.DryRun || outcome.Abandoned {
		t.Fatalf("unexpected outcome: %#v", outcome)
	}
	if outcome.AttemptCount != 1 || outcome.NextStatus != dlq.StatusRetrying {
		t.Fatalf("unexpected projected outcome: %#v", outcome)
	}

	after, err := entries.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != dlq.StatusPending || after.AttemptCount != 0 {
		t.Fatalf("dry-run mutated entry: %#v", after)
	}
	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("dry-run mutated job: %s", fetched.Status)
	}
}

func TestRetryRequeuesJobAndIncrementsAttempts(t *testing.T) {
	store, entries, service := newDLQFixture(t)

	ctx := context.Background()
	job, entry := failJob(t, store, entries, 0)

	outcome, err := service.Retry(ctx, entry.ID, false)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if outcome.Abandoned || outcome.AttemptCount != 1 {
		t.Fatalf("unexpected outcome: %#v", outcome)
	}

	after, err := entries.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != dlq.StatusRetrying || after.AttemptCount != 1 {
		t.Fatalf("unexpected entry after retry: %#v", after)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != queue.StatusQueued {
		t.Fatalf("expected job requeued, got %s", fetched.Status)
	}
	if fetched.ErrorMessage != "" {
		t.Fatalf("expected job error cleared, got %q", fetched.ErrorMessage)
	}
}

func TestRetryAbandonsExhaustedEntry(t *testing.T) {
	store, entries, service := newDLQFixture(t, testsupport.WithDLQPolicy(1, 1))

	ctx := context.Background()
	job, entry := failJob(t, store, entries, 0)

	if _, err := service.Retry(ctx, entry.ID, false); err != nil {
		t.Fatalf("first Retry failed: %v", err)
	}

	// Fail the job again and record the continued attempt budget.
	if _, err := store.Claim(ctx, 10); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.MarkFailed(ctx, job.ID, "still failing"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	second, err := entries.Add(ctx, dlq.Failure{
		JobID:        job.ID,
		Reason:       "still failing",
		Code:         dlq.CodeDownloadError,
		AttemptCount: 1,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if second.Status != dlq.StatusAbandoned {
		t.Fatalf("expected second entry abandoned at budget, got %s", second.Status)
	}

	if _, err := service.Retry(ctx, second.ID, false); !errors.Is(err, dlq.ErrEntryClosed) {
		t.Fatalf("expected ErrEntryClosed for abandoned entry, got %v", err)
	}
}

func TestAddValidationFailureHasNoRetrySchedule(t *testing.T) {
	store, entries, _ := newDLQFixture(t)

	ctx := context.Background()
	job := testsupport.EnqueueJob(t, store, "org-1", "malformed.mov")
	if _, err := store.Claim(ctx, 10); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.MarkFailed(ctx, job.ID, "unsupported container"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	entry, err := entries.Add(ctx, dlq.Failure{
		JobID:  job.ID,
		OrgID:  job.OrgID,
		Reason: "unsupported container",
		Code:   dlq.CodeValidationError,
	})
	if err != nil {
		t.Fatalf("entries.Add: %v", err)
	}
	if entry.Status != dlq.StatusPending {
		t.Fatalf("validation entry should await an operator, got %s", entry.Status)
	}
	if entry.NextRetryAt != nil {
		t.Fatalf("validation failures must never be scheduled, got %v", entry.NextRetryAt)
	}
}

func TestRetryRejectsValidationFailures(t *testing.T) {
	store, entries, service := newDLQFixture(t)

	ctx := context.Background()
	job := testsupport.EnqueueJob(t, store, "org-1", "malformed.mov")
	if _, err := store.Claim(ctx, 10); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.MarkFailed(ctx, job.ID, "unsupported container"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	entry, err := entries.Add(ctx, dlq.Failure{
		JobID:  job.ID,
		OrgID:  job.OrgID,
		Reason: "unsupported container",
		Code:   dlq.CodeValidationError,
	})
	if err != nil {
		t.Fatalf("entries.Add: %v", err)
	}

	if _, err := service.Retry(ctx, entry.ID, false); !errors.Is(err, dlq.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}
	if _, err := service.Retry(ctx, entry.ID, true); !errors.Is(err, dlq.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable in dry-run, got %v", err)
	}

	after, err := entries.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != dlq.StatusPending || after.AttemptCount != 0 {
		t.Fatalf("rejected retry mutated entry: %#v", after)
	}

	// Operator resolution stays open for permanent failures.
	if _, err := entries.Resolve(ctx, entry.ID, "oncall", "re-delivered source"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
}

func TestRetryDryRunRejectsRetryingEntry(t *testing.T) {
	store, entries, service := newDLQFixture(t)

	ctx := context.Background()
	_, entry := failJob(t, store, entries, 0)

	if _, err := service.Retry(ctx, entry.ID, false); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	// The entry is now retrying; a second retry, real or dry-run, must
	// report the same rejection.
	if _, err := service.Retry(ctx, entry.ID, true); !errors.Is(err, dlq.ErrEntryClosed) {
		t.Fatalf("expected ErrEntryClosed from dry-run, got %v", err)
	}
	if _, err := service.Retry(ctx, entry.ID, false); !errors.Is(err, dlq.ErrEntryClosed) {
		t.Fatalf("expected ErrEntryClosed from retry, got %v", err)
	}
}

func TestRetryClosedEntryRejected(t *testing.T) {
	store, entries, service := newDLQFixture(t)

	ctx := context.Background()
	_, entry := failJob(t, store, entries, 0)

	if _, err := entries.Resolve(ctx, entry.ID, "oncall", "fixed upstream"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := service.Retry(ctx, entry.ID, false); !errors.Is(err, dlq.ErrEntryClosed) {
		t.Fatalf("expected ErrEntryClosed, got %v", err)
	}
	if _, err := service.Retry(ctx, 9999, false); !errors.Is(err, dlq.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestRetryRollsBackWhenJobCannotRequeue(t *testing.T) {
	store, entries, service := newDLQFixture(t)

	ctx := context.Background()
	job, entry := failJob(t, store, entries, 0)

	// Move the job out of a requeueable state behind the DLQ's back.
	if _, err := store.Requeue(ctx, []int64{job.ID}); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	if _, err := service.Retry(ctx, entry.ID, false); err == nil {
		t.Fatal("expected retry to fail for non-requeueable job")
	}

	after, err := entries.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != dlq.StatusPending || after.AttemptCount != 0 {
		t.Fatalf("expected entry rolled back to pending, got %#v", after)
	}
}

func TestResolveRequiresActorAndClosesOnce(t *testing.T) {
	store, entries, _ := newDLQFixture(t)

	ctx := context.Background()
	_, entry := failJob(t, store, entries, 0)

	if _, err := entries.Resolve(ctx, entry.ID, "", "notes"); err == nil {
		t.Fatal("expected error when actor missing")
	}

	resolved, err := entries.Resolve(ctx, entry.ID, "oncall", "credentials rotated")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != dlq.StatusResolved || resolved.ResolvedBy != "oncall" {
		t.Fatalf("unexpected resolved entry: %#v", resolved)
	}
	if resolved.ResolvedAt == nil || resolved.NextRetryAt != nil {
		t.Fatalf("unexpected resolution timestamps: %#v", resolved)
	}

	if _, err := entries.Resolve(ctx, entry.ID, "oncall", ""); !errors.Is(err, dlq.ErrEntryClosed) {
		t.Fatalf("expected ErrEntryClosed on re-resolve, got %v", err)
	}
	if _, err := entries.Resolve(ctx, 9999, "oncall", ""); !errors.Is(err, dlq.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestPurgeKeepsOpenEntries(t *testing.T) {
	store, entries, _ := newDLQFixture(t)

	ctx := context.Background()
	_, pending := failJob(t, store, entries, 0)
	_, toResolve := failJob(t, store, entries, 0)
	if _, err := entries.Resolve(ctx, toResolve.ID, "oncall", ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	deleted, err := entries.Purge(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one purged entry, got %d", deleted)
	}

	remaining, err := entries.Get(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if remaining == nil || remaining.Status != dlq.StatusPending {
		t.Fatalf("pending entry should survive purge, got %#v", remaining)
	}
}

func TestAggregateStatsGroupsByStatusAndCode(t *testing.T) {
	store, entries, _ := newDLQFixture(t)

	ctx := context.Background()
	failJob(t, store, entries, 0)
	_, toResolve := failJob(t, store, entries, 0)
	if _, err := entries.Resolve(ctx, toResolve.ID, "oncall", ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	stats, err := entries.AggregateStats(ctx, "")
	if err != nil {
		t.Fatalf("AggregateStats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("expected 2 entries, got %d", stats.Total)
	}
	if stats.ByStatus[dlq.StatusPending] != 1 || stats.ByStatus[dlq.StatusResolved] != 1 {
		t.Fatalf("unexpected status counts: %#v", stats.ByStatus)
	}
	if stats.ByCode[dlq.CodeDownloadError] != 2 {
		t.Fatalf("unexpected code counts: %#v", stats.ByCode)
	}

	scoped, err := entries.AggregateStats(ctx, "org-none")
	if err != nil {
		t.Fatalf("AggregateStats failed: %v", err)
	}
	if scoped.Total != 0 {
		t.Fatalf("expected empty stats for unknown org, got %#v", scoped)
	}
}

func TestLatestForJobReturnsNewestEntry(t *testing.T) {
	store, entries, _ := newDLQFixture(t)

	ctx := context.Background()
	job, first := failJob(t, store, entries, 0)

	none, err := entries.LatestForJob(ctx, 9999)
	if err != nil {
		t.Fatalf("LatestForJob: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for unknown job, got %#v", none)
	}

	second, err := entries.Add(ctx, dlq.Failure{
		JobID:        job.ID,
		Reason:       "failed again",
		Code:         dlq.CodeTimeout,
		AttemptCount: 1,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	latest, err := entries.LatestForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("LatestForJob: %v", err)
	}
	if latest == nil || latest.ID != second.ID || latest.ID == first.ID {
		t.Fatalf("expected newest entry %d, got %#v", second.ID, latest)
	}
}
