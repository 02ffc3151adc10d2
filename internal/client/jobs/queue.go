// Package jobs is a small durable job queue on the client database. Jobs
// survive restarts, at most one job per key is pending at a time, and a
// single worker runs them one after another.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/dbx"
)

// Policy decides what Enqueue does when the key already has a pending job.
type Policy int

const (
	// Keep leaves the pending job in place and merges the new payload into it.
	Keep Policy = iota
	// Replace resets the pending job's run time. A payload of the same kind
	// is merged into the pending one when a merge is registered, so no
	// requested work is lost; otherwise kind and payload are overwritten.
	Replace
)

func (p Policy) String() string {
	if p == Replace {
		return "replace"
	}
	return "keep"
}

type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
)

type Job struct {
	ID      int64
	Key     string
	Kind    string
	Payload []byte
	RunAt   time.Time
	State   State
}

// MergeFunc combines the payload of a kept job with a newly requested one.
type MergeFunc func(existing, incoming []byte) ([]byte, error)

type Queue struct {
	db    *sql.DB
	now   func() time.Time
	wake  chan struct{}
	mu    sync.RWMutex
	merge map[string]MergeFunc
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		db:    db,
		now:   time.Now,
		wake:  make(chan struct{}, 1),
		merge: map[string]MergeFunc{},
	}
}

// SetMerge registers how payloads of kind are merged into a pending job.
func (q *Queue) SetMerge(kind string, fn MergeFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.merge[kind] = fn
}

func (q *Queue) mergeFor(kind string) MergeFunc {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.merge[kind]
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

const jobColumns = `id, key, kind, payload, run_at, state`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var (
		j     Job
		runAt int64
		state string
	)
	if err := row.Scan(&j.ID, &j.Key, &j.Kind, &j.Payload, &runAt, &state); err != nil {
		return nil, err
	}
	j.RunAt = time.UnixMilli(runAt)
	j.State = State(state)
	return &j, nil
}

func pendingByKey(ctx context.Context, db dbx.DBTX, key string) (*Job, error) {
	j, err := scanJob(db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE key = ? AND state = 'pending'`, key))
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	return j, err
}

// Enqueue schedules a job under key to run after delay. It reports whether
// a job was created or replaced, as opposed to kept.
func (q *Queue) Enqueue(ctx context.Context, key, kind string, payload []byte, delay time.Duration, policy Policy) (bool, error) {
	now := q.now()
	runAt := now.Add(delay).UnixMilli()
	created := false

	err := dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		cur, err := pendingByKey(ctx, tx, key)
		if err != nil {
			return err
		}

		switch {
		case cur == nil:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO jobs (key, kind, payload, run_at, state, created_at)
				VALUES (?, ?, ?, ?, 'pending', ?)
			`, key, kind, payload, runAt, now.UnixMilli())
			created = true
		case policy == Replace:
			next := payload
			if merge := q.mergeFor(kind); merge != nil && cur.Kind == kind {
				if next, err = merge(cur.Payload, payload); err != nil {
					return fmt.Errorf("merge %s payload: %w", kind, err)
				}
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE jobs SET kind = ?, payload = ?, run_at = ? WHERE id = ?`,
				kind, next, runAt, cur.ID)
			created = true
		default:
			merge := q.mergeFor(cur.Kind)
			if merge == nil || cur.Kind != kind {
				return nil
			}
			merged, err := merge(cur.Payload, payload)
			if err != nil {
				return fmt.Errorf("merge %s payload: %w", kind, err)
			}
			_, err = tx.ExecContext(ctx, `UPDATE jobs SET payload = ? WHERE id = ?`, merged, cur.ID)
			return err
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", key, err)
	}
	q.signal()
	return created, nil
}

// Pending returns the pending job of key, or nil.
func (q *Queue) Pending(ctx context.Context, key string) (*Job, error) {
	return pendingByKey(ctx, q.db, key)
}

// CancelAll drops pending jobs of the given keys, or of every key when none
// is given. Running jobs are left alone.
func (q *Queue) CancelAll(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		_, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE state = 'pending'`)
		return err
	}
	return dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE state = 'pending' AND key = ?`, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// claim marks the next due job running.
func (q *Queue) claim(ctx context.Context) (*Job, error) {
	var job *Job
	err := dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		j, err := scanJob(tx.QueryRowContext(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE state = 'pending' AND run_at <= ?
			ORDER BY run_at, id LIMIT 1
		`, q.now().UnixMilli()))
		if dbx.IsNoRows(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET state = 'running' WHERE id = ?`, j.ID); err != nil {
			return err
		}
		j.State = StateRunning
		job = j
		return nil
	})
	return job, err
}

// nextRunAt is the run time of the earliest pending job.
func (q *Queue) nextRunAt(ctx context.Context) (time.Time, bool, error) {
	var at sql.NullInt64
	if err := q.db.QueryRowContext(ctx, `SELECT MIN(run_at) FROM jobs WHERE state = 'pending'`).Scan(&at); err != nil {
		return time.Time{}, false, err
	}
	if !at.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(at.Int64), true, nil
}

func (q *Queue) finish(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// Recover returns jobs left running by a previous process to pending. An
// orphan whose key was re-enqueued meanwhile is dropped.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	var n int64
	err := dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM jobs WHERE state = 'running'
			AND key IN (SELECT key FROM jobs WHERE state = 'pending')
		`); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE jobs SET state = 'pending' WHERE state = 'running'`)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recover jobs: %w", err)
	}
	return int(n), nil
}

// ErrNoHandler is reported for jobs of an unregistered kind.
var ErrNoHandler = errors.New("no handler for job kind")
