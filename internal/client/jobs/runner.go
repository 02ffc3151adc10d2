package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/logging"
)

// DefaultPollInterval bounds how long the runner sleeps without a wake-up.
const DefaultPollInterval = 30 * time.Second

type Handler func(ctx context.Context, job Job) error

// Runner executes due jobs one at a time.
type Runner struct {
	queue    *Queue
	log      logging.Logger
	poll     time.Duration
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRunner(q *Queue, log logging.Logger, poll time.Duration) *Runner {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Runner{queue: q, log: log.With("component", "jobs"), poll: poll, handlers: map[string]Handler{}}
}

func (r *Runner) Handle(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Runner) handler(kind string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

// Run recovers orphaned jobs and then works the queue until ctx is done.
// A job already started runs to completion on a context detached from ctx.
func (r *Runner) Run(ctx context.Context) error {
	if n, err := r.queue.Recover(ctx); err != nil {
		r.log.Warn(ctx, "failed to recover orphaned jobs", "error", err)
	} else if n > 0 {
		r.log.Info(ctx, "recovered orphaned jobs", "count", n)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		ran, err := r.RunNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error(ctx, "job queue error", "error", err)
		}
		if ran {
			continue
		}

		wait := r.poll
		if at, ok, err := r.queue.nextRunAt(ctx); err == nil && ok {
			wait = min(wait, max(time.Until(at), 0))
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-r.queue.wake:
		}
	}
}

// RunNext runs the next due job, if any, and reports whether one ran.
func (r *Runner) RunNext(ctx context.Context) (bool, error) {
	job, err := r.queue.claim(ctx)
	if err != nil || job == nil {
		return false, err
	}

	runCtx := context.WithoutCancel(ctx)
	h := r.handler(job.Kind)
	if h == nil {
		err = fmt.Errorf("%w: %s", ErrNoHandler, job.Kind)
	} else {
		err = r.safeRun(runCtx, h, *job)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn(runCtx, "job failed", "key", job.Key, "kind", job.Kind, "error", err)
	}
	if ferr := r.queue.finish(runCtx, job.ID); ferr != nil {
		return true, ferr
	}
	return true, nil
}

func (r *Runner) safeRun(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Key, p)
		}
	}()
	return h(ctx, job)
}
