package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/control"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/fingerprint"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/worker"
)

// Daemon coordinates background queue processing and the control API, and
// enforces single-instance execution through a lock file.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *queue.Store
	control      *control.Service
	deadLetters  *dlq.Service
	fingerprints *fingerprint.Service
	processor    *worker.Processor
	trigger      *worker.Trigger

	lockPath  string
	lock      *flock.Flock
	scheduler *cron.Cron
	api       *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool               `json:"running"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Queue        queue.StatsSummary `json:"queue"`
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	store *queue.Store,
	controlSvc *control.Service,
	deadLetters *dlq.Service,
	fingerprints *fingerprint.Service,
	processor *worker.Processor,
	trigger *worker.Trigger,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || store == nil || controlSvc == nil || deadLetters == nil || processor == nil || trigger == nil {
		return nil, errors.New("daemon requires config, store, control, dlq, processor, and trigger")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "alokickflow.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		control:      controlSvc,
		deadLetters:  deadLetters,
		fingerprints: fingerprints,
		processor:    processor,
		trigger:      trigger,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the instance lock and launches the scheduler, the trigger
// drain loop, and the control API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another alokickflow daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	runCtx := d.ctx

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(d.cfg.Workflow.QueueTickSchedule, func() { d.tick(runCtx) }); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.cancel = nil
		d.ctx = nil
		return fmt.Errorf("schedule queue tick %q: %w", d.cfg.Workflow.QueueTickSchedule, err)
	}
	d.scheduler = scheduler
	scheduler.Start()

	d.wg.Add(1)
	go d.drainTrigger(runCtx)

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.stopBackground()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("schedule", d.cfg.Workflow.QueueTickSchedule))
	return nil
}

// Stop halts scheduling and the API and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.stopBackground()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// APIAddr returns the control API's bound address, or empty when the API is
// disabled or not started.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// Status reports runtime information with current queue counts.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx, "")
	if err != nil {
		d.logger.Warn("queue stats", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Queue:        stats,
	}
}

func (d *Daemon) stopBackground() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.scheduler != nil {
		<-d.scheduler.Stop().Done()
		d.scheduler = nil
	}
	d.wg.Wait()
	d.ctx = nil
}

// tick is the scheduled queue pass: reclaim stale running jobs, then process
// a batch.
func (d *Daemon) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := d.processor.Heartbeats().ReclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("reclaim stale jobs", logging.Error(err))
	}
	d.runBatch(ctx)
}

// drainTrigger processes a batch whenever something kicks the in-process
// trigger, so resumed or requeued jobs start without waiting for the next
// scheduled tick.
func (d *Daemon) drainTrigger(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.trigger.C():
			d.runBatch(ctx)
		}
	}
}

func (d *Daemon) runBatch(ctx context.Context) {
	result, err := d.control.ProcessQueue(ctx, 0)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Error("queue batch failed", logging.Error(err))
			d.scheduleErrorRetry(ctx)
		}
		return
	}
	if result.Processed > 0 || result.Errors > 0 {
		d.logger.Info("queue batch",
			logging.Int("processed", result.Processed),
			logging.Int("errors", result.Errors))
	}
}

// scheduleErrorRetry kicks the trigger after the configured pause so a failed
// batch is retried before the next scheduled tick. An interval of zero
// disables the early retry.
func (d *Daemon) scheduleErrorRetry(ctx context.Context) {
	interval := time.Duration(d.cfg.Workflow.ErrorRetryInterval) * time.Second
	if interval <= 0 {
		return
	}
	time.AfterFunc(interval, func() {
		if ctx.Err() != nil {
			return
		}
		d.trigger.Kick()
	})
}
