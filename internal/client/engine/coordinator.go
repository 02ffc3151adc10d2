package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/jobs"
	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/services"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

type State int32

const (
	Disabled State = iota
	Enabling
	Enabled
)

func (s State) String() string {
	switch s {
	case Enabling:
		return "enabling"
	case Enabled:
		return "enabled"
	}
	return "disabled"
}

// ConfigSource yields the current configuration and its later changes.
type ConfigSource interface {
	Watch(ctx context.Context, interval time.Duration) <-chan models.ServerConfig
}

// ChangeFeed publishes batches of invalidated tables.
type ChangeFeed interface {
	Subscribe() (<-chan []wire.Table, func())
}

// Housekeeper tombstones books whose files disappeared.
type Housekeeper interface {
	MarkVanishedBooks(ctx context.Context) (int, error)
}

type CoordinatorOptions struct {
	Debounce time.Duration
	// PollInterval paces configuration polling and the retry of an enable
	// that failed to obtain a token.
	PollInterval time.Duration
}

// Coordinator turns background sync on and off with the configuration.
type Coordinator struct {
	session   services.AuthSession
	config    ConfigSource
	feed      ChangeFeed
	house     Housekeeper
	scheduler *Scheduler
	worker    *Worker
	log       logging.Logger
	opts      CoordinatorOptions

	started atomic.Bool
	state   atomic.Int32

	mu          sync.Mutex
	stopWatch   context.CancelFunc
	stopObserve context.CancelFunc
	observers   sync.WaitGroup
	watchDone   chan struct{}
}

func NewCoordinator(session services.AuthSession, config ConfigSource, feed ChangeFeed, house Housekeeper,
	scheduler *Scheduler, worker *Worker, log logging.Logger, opts CoordinatorOptions) *Coordinator {
	return &Coordinator{
		session:   session,
		config:    config,
		feed:      feed,
		house:     house,
		scheduler: scheduler,
		worker:    worker,
		log:       log.With("component", "coordinator"),
		opts:      opts,
	}
}

func (c *Coordinator) State() State { return State(c.state.Load()) }

// Start runs housekeeping once and begins following configuration changes.
// Later calls do nothing.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	if n, err := c.house.MarkVanishedBooks(ctx); err != nil {
		c.log.Warn(ctx, "housekeeping failed", "error", err)
	} else if n > 0 {
		c.log.Info(ctx, "tombstoned vanished books", "count", n)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.stopWatch = cancel
	c.watchDone = done
	c.mu.Unlock()

	retry := c.opts.PollInterval
	if retry <= 0 {
		retry = services.DefaultConfigPollInterval
	}
	updates := c.config.Watch(watchCtx, c.opts.PollInterval)
	go func() {
		defer close(done)
		ticker := time.NewTicker(retry)
		defer ticker.Stop()

		var last models.ServerConfig
		for {
			select {
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				last = cfg
				c.apply(watchCtx, cfg)
			case <-ticker.C:
				// Watch is silent while the configuration is unchanged, so a
				// login that failed at enable is retried here.
				if watchCtx.Err() == nil && c.State() == Disabled && last.Usable() {
					c.enable(watchCtx, last)
				}
			}
		}
	}()
}

func (c *Coordinator) apply(ctx context.Context, cfg models.ServerConfig) {
	changed, err := c.session.UpdateConfig(ctx, cfg)
	if err != nil {
		c.log.Warn(ctx, "cannot persist configuration", "error", err)
	}
	if !changed && c.State() == Enabled {
		return
	}
	c.disable(ctx)
	if cfg.Usable() {
		c.enable(ctx, cfg)
	}
}

// disable stops observers, cancels pending schedules and drops the token.
func (c *Coordinator) disable(ctx context.Context) {
	c.stopObservers()
	if err := c.scheduler.CancelAll(ctx); err != nil {
		c.log.Warn(ctx, "cannot cancel schedule", "error", err)
	}
	c.session.Invalidate()
	c.state.Store(int32(Disabled))
}

func (c *Coordinator) enable(ctx context.Context, cfg models.ServerConfig) {
	c.state.Store(int32(Enabling))
	if _, ok := c.session.GetToken(ctx); !ok {
		c.log.Info(ctx, "sync stays disabled, no token", "server", cfg.Server)
		c.state.Store(int32(Disabled))
		return
	}

	obsCtx, cancel := context.WithCancel(ctx)
	feed, unsubscribe := c.feed.Subscribe()
	detector := NewChangeDetector(c.opts.Debounce, c.requestFromChanges, c.log)

	c.mu.Lock()
	c.stopObserve = cancel
	c.mu.Unlock()

	c.observers.Add(1)
	go func() {
		defer c.observers.Done()
		defer unsubscribe()
		detector.Run(obsCtx, feed)
	}()

	if _, err := c.scheduler.RequestSync(ctx, nil, jobs.Keep); err != nil {
		c.log.Warn(ctx, "cannot request initial sync", "error", err)
	}
	if !cfg.Frequency.IsNever() {
		if err := c.scheduler.ScheduleAfter(ctx, cfg.Frequency.Interval()); err != nil {
			c.log.Warn(ctx, "cannot arm periodic sync", "error", err)
		}
	}
	c.state.Store(int32(Enabled))
	c.log.Info(ctx, "sync enabled", "server", cfg.Server, "frequency", cfg.Frequency.String())
}

func (c *Coordinator) requestFromChanges(ctx context.Context, tables []wire.Table) {
	if _, err := c.scheduler.RequestSync(ctx, tables, jobs.Keep); err != nil {
		c.log.Warn(ctx, "cannot request sync", "tables", tables, "error", err)
	}
}

func (c *Coordinator) stopObservers() {
	c.mu.Lock()
	cancel := c.stopObserve
	c.stopObserve = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.observers.Wait()
}

// SyncNow requests a full run that replaces any pending one. It returns
// false without waiting when a run is in flight.
func (c *Coordinator) SyncNow(ctx context.Context) bool {
	if !c.worker.tryBegin() {
		return false
	}
	defer c.worker.end()
	if _, err := c.scheduler.RequestSync(ctx, nil, jobs.Replace); err != nil {
		c.log.Warn(ctx, "cannot request sync", "error", err)
		return false
	}
	return true
}

// Stop ends observation. Jobs already on the queue are left to run.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	stop, done := c.stopWatch, c.watchDone
	c.stopWatch = nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
	c.stopObservers()
	c.state.Store(int32(Disabled))
}
