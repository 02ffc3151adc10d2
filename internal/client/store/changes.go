package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/dbx"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// DefaultFollowInterval is how often Follow looks for outside changes.
const DefaultFollowInterval = 500 * time.Millisecond

// changeRetention bounds the change log. Follow only reads rows written
// after it started.
const changeRetention = time.Hour

func recordChanges(ctx context.Context, db dbx.DBTX, origin string, tables []wire.Table) error {
	now := common.NowMillis()
	for _, t := range tables {
		_, err := db.ExecContext(ctx, `
			INSERT INTO changes (origin, table_name, changed_at) VALUES (?, ?, ?)
		`, origin, string(t), now)
		if err != nil {
			return fmt.Errorf("failed to record change of %s: %w", t, err)
		}
	}
	cutoff := now - changeRetention.Milliseconds()
	if _, err := db.ExecContext(ctx, `DELETE FROM changes WHERE changed_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune changes: %w", err)
	}
	return nil
}

// Follow publishes tables changed through other Store handles on the same
// database file, such as a CLI process editing the library while the daemon
// runs. It polls every interval and returns when ctx is done. Changes made
// before Follow starts are not replayed.
func (s *Store) Follow(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFollowInterval
	}
	cursor, err := s.lastChange(ctx)
	if err != nil {
		return err
	}
	version, err := s.dataVersion(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		v, err := s.dataVersion(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if v == version {
			continue
		}
		version = v

		tables, next, err := s.changesSince(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		cursor = next
		s.notifier.Publish(tables)
	}
}

// dataVersion changes whenever another connection commits to the file.
func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read data_version: %w", err)
	}
	return v, nil
}

func (s *Store) lastChange(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read change cursor: %w", err)
	}
	return seq, nil
}

// changesSince returns the tables other origins changed after cursor and
// the new cursor.
func (s *Store) changesSince(ctx context.Context, cursor int64) ([]wire.Table, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, origin, table_name FROM changes WHERE seq > ? ORDER BY seq
	`, cursor)
	if err != nil {
		return nil, cursor, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	seen := map[wire.Table]struct{}{}
	for rows.Next() {
		var (
			seq    int64
			origin string
			table  string
		)
		if err := rows.Scan(&seq, &origin, &table); err != nil {
			return nil, cursor, fmt.Errorf("failed to scan change: %w", err)
		}
		cursor = seq
		if origin == s.origin || !wire.Table(table).Valid() {
			continue
		}
		seen[wire.Table(table)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, cursor, fmt.Errorf("failed to iterate changes: %w", err)
	}

	out := make([]wire.Table, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return wire.Ordered(out), cursor, nil
}
