package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/jobs"
	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/services"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// Syncer runs reconciliation passes.
type Syncer interface {
	SyncTables(ctx context.Context, tables []wire.Table) ([]services.Result, error)
}

// ConfigLoader reads the current server configuration.
type ConfigLoader interface {
	Load(ctx context.Context) (models.ServerConfig, error)
}

// Locker is an exclusive lock shared with other processes, such as a
// foreground `shelfsync sync`. *flock.Flock satisfies it.
type Locker interface {
	TryLockContext(ctx context.Context, retryDelay time.Duration) (bool, error)
	Unlock() error
}

// lockRetryDelay is how often a sync job retries a lock held elsewhere.
const lockRetryDelay = 250 * time.Millisecond

// Worker handles sync and tick jobs. Only one sync runs at a time, across
// processes when a Locker is given.
type Worker struct {
	syncer    Syncer
	config    ConfigLoader
	scheduler *Scheduler
	lock      Locker
	log       logging.Logger

	running sync.Mutex
}

// NewWorker builds a worker. lock may be nil.
func NewWorker(syncer Syncer, config ConfigLoader, scheduler *Scheduler, lock Locker, log logging.Logger) *Worker {
	return &Worker{syncer: syncer, config: config, scheduler: scheduler, lock: lock, log: log.With("component", "worker")}
}

// Register installs the handlers on r.
func (w *Worker) Register(r *jobs.Runner) {
	r.Handle(KindSync, w.handleSync)
	r.Handle(KindTick, w.handleTick)
}

// tryBegin reports false while a sync is executing.
func (w *Worker) tryBegin() bool {
	return w.running.TryLock()
}

func (w *Worker) end() {
	w.running.Unlock()
}

func (w *Worker) handleSync(ctx context.Context, job jobs.Job) error {
	req, err := decodeSyncRequest(job.Payload)
	if err != nil {
		return fmt.Errorf("decode sync request: %w", err)
	}
	tables := req.Tables
	if req.all() {
		tables = wire.SyncOrder
	}

	w.running.Lock()
	defer w.running.Unlock()

	if w.lock != nil {
		locked, err := w.lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("acquire sync lock: %w", err)
		}
		if !locked {
			return errors.New("sync lock not acquired")
		}
		defer func() {
			if err := w.lock.Unlock(); err != nil {
				w.log.Warn(ctx, "cannot release sync lock", "error", err)
			}
		}()
	}

	results, err := w.syncer.SyncTables(ctx, tables)
	for _, res := range results {
		w.log.Info(ctx, "table synced", "result", res.String())
	}
	if errors.Is(err, services.ErrNotConnected) {
		w.log.Info(ctx, "sync skipped, not connected")
		return nil
	}
	return err
}

// handleTick requests a run and re-arms itself, or stops all scheduling
// when periodic sync is off or the configuration is unusable.
func (w *Worker) handleTick(ctx context.Context, _ jobs.Job) error {
	cfg, err := w.config.Load(ctx)
	if err != nil {
		return err
	}
	if !cfg.Usable() || cfg.Frequency.IsNever() {
		w.log.Info(ctx, "periodic sync off, cancelling schedule")
		return w.scheduler.CancelAll(ctx)
	}
	if _, err := w.scheduler.RequestSync(ctx, nil, jobs.Keep); err != nil {
		return err
	}
	return w.scheduler.ScheduleAfter(ctx, cfg.Frequency.Interval())
}
