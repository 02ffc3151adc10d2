package engine

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// DefaultDebounce is the quiet period after the last local change.
const DefaultDebounce = 1500 * time.Millisecond

// RequestFunc asks for a sync of tables.
type RequestFunc func(ctx context.Context, tables []wire.Table)

// ChangeDetector collects invalidated tables and requests one sync once no
// change arrived for the debounce delay.
type ChangeDetector struct {
	delay   time.Duration
	request RequestFunc
	log     logging.Logger

	mu      sync.Mutex
	pending map[wire.Table]struct{}
	timer   *time.Timer
	ctx     context.Context
}

func NewChangeDetector(delay time.Duration, request RequestFunc, log logging.Logger) *ChangeDetector {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &ChangeDetector{delay: delay, request: request, log: log, pending: map[wire.Table]struct{}{}}
}

// Run consumes feed until ctx is done or feed closes. Tables still pending
// at that point are dropped.
func (d *ChangeDetector) Run(ctx context.Context, feed <-chan []wire.Table) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tables, ok := <-feed:
			if !ok {
				return
			}
			d.Observe(tables)
		}
	}
}

// Observe adds tables to the pending set and restarts the quiet period.
func (d *ChangeDetector) Observe(tables []wire.Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range tables {
		d.pending[t] = struct{}{}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
	d.log.Debug(context.Background(), "debounce timer reset", "pending", len(d.pending))
}

func (d *ChangeDetector) flush() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	tables := make([]wire.Table, 0, len(d.pending))
	for t := range d.pending {
		tables = append(tables, t)
	}
	d.pending = map[wire.Table]struct{}{}
	ctx := d.ctx
	d.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	d.request(ctx, wire.Ordered(tables))
}

func (d *ChangeDetector) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = map[wire.Table]struct{}{}
}
