package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/control"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/entitlements"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/testsupport"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/worker"
)

func newRetryFixture(t *testing.T, errorRetryInterval int) *Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ErrorRetryInterval = errorRetryInterval
	store := testsupport.MustOpenStore(t, cfg)
	dlqStore, err := dlq.NewStore(store.DB(), cfg)
	if err != nil {
		t.Fatalf("dlq.NewStore: %v", err)
	}
	logger := logging.NewNop()
	processor := worker.NewProcessor(cfg, store, dlqStore, worker.UnconfiguredAnalyzer{}, nil,
		entitlements.Static(false), logger)
	trigger := worker.NewTrigger()

	// Closing the store makes every batch fail at the claim step.
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	return &Daemon{
		cfg:     cfg,
		logger:  logger,
		control: control.NewService(store, processor, trigger, logger),
		trigger: trigger,
	}
}

func TestFailedBatchSchedulesEarlyRetry(t *testing.T) {
	d := newRetryFixture(t, 1)

	d.runBatch(context.Background())

	select {
	case <-d.trigger.C():
	case <-time.After(3 * time.Second):
		t.Fatal("expected a trigger kick after the error retry pause")
	}
}

func TestFailedBatchRetryDisabledByZeroInterval(t *testing.T) {
	d := newRetryFixture(t, 0)

	d.runBatch(context.Background())

	time.Sleep(100 * time.Millisecond)
	select {
	case <-d.trigger.C():
		t.Fatal("no retry kick expected when the interval is zero")
	default:
	}
}
