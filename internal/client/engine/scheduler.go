package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/jobs"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// Job keys and kinds used on the queue.
const (
	KeySyncNow      = "sync-now"
	KeySyncPeriodic = "sync-periodic"

	KindSync = "sync"
	KindTick = "tick"
)

// SyncRequest is the payload of a sync job. No tables means every table.
type SyncRequest struct {
	Tables []wire.Table `json:"tables,omitempty"`
}

func (r SyncRequest) all() bool { return len(r.Tables) == 0 }

func decodeSyncRequest(b []byte) (SyncRequest, error) {
	var r SyncRequest
	if len(b) == 0 {
		return r, nil
	}
	err := json.Unmarshal(b, &r)
	return r, err
}

// mergeSyncRequests unions table sets so a kept job covers both requests.
func mergeSyncRequests(existing, incoming []byte) ([]byte, error) {
	a, err := decodeSyncRequest(existing)
	if err != nil {
		return nil, err
	}
	b, err := decodeSyncRequest(incoming)
	if err != nil {
		return nil, err
	}
	if a.all() || b.all() {
		return json.Marshal(SyncRequest{})
	}
	return json.Marshal(SyncRequest{Tables: wire.Ordered(append(a.Tables, b.Tables...))})
}

// Scheduler places sync runs and ticks on the durable queue.
type Scheduler struct {
	queue *jobs.Queue
}

func NewScheduler(q *jobs.Queue) *Scheduler {
	q.SetMerge(KindSync, mergeSyncRequests)
	return &Scheduler{queue: q}
}

// RequestSync enqueues an immediate run over tables (nil for all). It
// reports false when an already pending run absorbed the request.
func (s *Scheduler) RequestSync(ctx context.Context, tables []wire.Table, policy jobs.Policy) (bool, error) {
	payload, err := json.Marshal(SyncRequest{Tables: wire.Ordered(tables)})
	if err != nil {
		return false, err
	}
	return s.queue.Enqueue(ctx, KeySyncNow, KindSync, payload, 0, policy)
}

// ScheduleAfter arms the next periodic tick, replacing any pending one.
func (s *Scheduler) ScheduleAfter(ctx context.Context, d time.Duration) error {
	_, err := s.queue.Enqueue(ctx, KeySyncPeriodic, KindTick, nil, d, jobs.Replace)
	return err
}

// CancelAll drops pending runs and ticks. A run in progress is not touched.
func (s *Scheduler) CancelAll(ctx context.Context) error {
	return s.queue.CancelAll(ctx, KeySyncNow, KeySyncPeriodic)
}

// NextTick returns the run time of the pending tick.
func (s *Scheduler) NextTick(ctx context.Context) (time.Time, bool, error) {
	j, err := s.queue.Pending(ctx, KeySyncPeriodic)
	if err != nil || j == nil {
		return time.Time{}, false, err
	}
	return j.RunAt, true, nil
}
