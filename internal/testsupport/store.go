package testsupport

import (
	"context"
	"testing"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// EnqueueJob creates a queued job for tests using the provided store.
func EnqueueJob(t testing.TB, store *queue.Store, orgID, fileName string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), orgID, fileName, "s3://test-bucket/"+fileName, false)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}

// EnqueueCreativeJob creates a queued job with creative QC requested.
func EnqueueCreativeJob(t testing.TB, store *queue.Store, orgID, fileName string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), orgID, fileName, "s3://test-bucket/"+fileName, true)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
