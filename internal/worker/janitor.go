package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Janitor runs periodic maintenance on worker nodes: it re-enqueues runs
// that stalled mid-flight (a worker died holding them) and purges old
// finished tasks from the queue.
//
// For multi-worker deployments, configure a DistributedLock to prevent
// duplicate re-enqueues across instances.
type Janitor struct {
	runs      driven.RunStore
	taskQueue driven.TaskQueue
	enqueuer  driven.Enqueuer
	lock      driven.DistributedLock
	logger    *slog.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	interval      time.Duration
	staleAfter    time.Duration
	taskRetention time.Duration
	lockTTL       time.Duration
}

// JanitorConfig holds configuration for the janitor.
type JanitorConfig struct {
	Runs      driven.RunStore
	TaskQueue driven.TaskQueue
	Enqueuer  driven.Enqueuer
	Lock      driven.DistributedLock // Optional: multi-instance coordination
	Logger    *slog.Logger

	PollInterval  time.Duration // How often to sweep (default: 1m)
	StaleAfter    time.Duration // In-flight runs idle longer than this get re-enqueued (default: 10m)
	TaskRetention time.Duration // Finished tasks older than this are purged (default: 24h)
	LockTTL       time.Duration // TTL for the distributed lock (default: 2m)
}

// NewJanitor creates a janitor.
func NewJanitor(cfg JanitorConfig) *Janitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = time.Minute
	}
	staleAfter := cfg.StaleAfter
	if staleAfter == 0 {
		staleAfter = 10 * time.Minute
	}
	taskRetention := cfg.TaskRetention
	if taskRetention == 0 {
		taskRetention = 24 * time.Hour
	}
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 2 * time.Minute
	}

	return &Janitor{
		runs:          cfg.Runs,
		taskQueue:     cfg.TaskQueue,
		enqueuer:      cfg.Enqueuer,
		lock:          cfg.Lock,
		logger:        logger,
		interval:      interval,
		staleAfter:    staleAfter,
		taskRetention: taskRetention,
		lockTTL:       lockTTL,
	}
}

// Start begins the janitor loop.
// It runs until Stop is called or context is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	j.logger.Info("janitor starting",
		"poll_interval", j.interval, "stale_after", j.staleAfter)

	go j.run(ctx)

	return nil
}

// Stop gracefully stops the janitor.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopCh)
	j.mu.Unlock()

	<-j.doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()

	j.logger.Info("janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor context cancelled")
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep runs one maintenance cycle under the distributed lock.
func (j *Janitor) sweep(ctx context.Context) {
	if j.lock != nil {
		acquired, err := j.lock.Acquire(ctx, "janitor", j.lockTTL)
		if err != nil {
			j.logger.Warn("failed to acquire janitor lock", "error", err)
			return
		}
		if !acquired {
			j.logger.Debug("janitor lock held by another instance, skipping cycle")
			return
		}
		defer func() {
			if err := j.lock.Release(ctx, "janitor"); err != nil {
				j.logger.Warn("failed to release janitor lock", "error", err)
			}
		}()
	}

	j.requeueStaleRuns(ctx)
	j.purgeTasks(ctx)
}

// requeueStaleRuns pushes in-flight runs nobody has touched recently back
// onto the queue. Restarts are idempotent, so a false positive (the worker
// is alive but slow) costs a duplicate lease attempt, not duplicate rows.
func (j *Janitor) requeueStaleRuns(ctx context.Context) {
	stale, err := j.runs.ListStale(ctx, j.staleAfter)
	if err != nil {
		j.logger.Error("failed to list stale runs", "error", err)
		return
	}

	for _, run := range stale {
		if err := j.enqueuer.EnqueueRun(ctx, run.EditionID, run.ID); err != nil {
			j.logger.Error("failed to re-enqueue stale run",
				"run_id", run.ID, "error", err)
			continue
		}
		j.logger.Info("re-enqueued stale run",
			"run_id", run.ID, "status", run.Status, "idle_since", run.UpdatedAt)
	}
}

func (j *Janitor) purgeTasks(ctx context.Context) {
	purged, err := j.taskQueue.PurgeTasks(ctx, int(j.taskRetention.Seconds()))
	if err != nil {
		j.logger.Error("failed to purge tasks", "error", err)
		return
	}
	if purged > 0 {
		j.logger.Info("purged finished tasks", "count", purged)
	}
}
