// Package store is the client's transactional record store. It owns the
// SQLite handle, runs the embedded goose migrations, and publishes the set
// of sync tables touched by every committed transaction, including those
// committed by other processes sharing the database file.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/client/migrations"
	"github.com/dmitrijs2005/shelfsync/internal/client/repositories/annotations"
	"github.com/dmitrijs2005/shelfsync/internal/client/repositories/books"
	"github.com/dmitrijs2005/shelfsync/internal/client/repositories/filemap"
	"github.com/dmitrijs2005/shelfsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/shelfsync/internal/client/repositories/tombstones"
	"github.com/dmitrijs2005/shelfsync/internal/dbx"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repos bundles the repositories over one handle (the DB or a transaction).
type Repos struct {
	Books       books.Repository
	Tombstones  tombstones.Repository
	FileMap     filemap.Repository
	Metadata    metadata.Repository
	annotations map[wire.Table]annotations.Repository
}

func NewRepos(db dbx.DBTX) *Repos {
	r := &Repos{
		Books:       books.NewSQLiteRepository(db),
		Tombstones:  tombstones.NewSQLiteRepository(db),
		FileMap:     filemap.NewSQLiteRepository(db),
		Metadata:    metadata.NewSQLiteRepository(db),
		annotations: make(map[wire.Table]annotations.Repository, len(wire.AnnotationTables)),
	}
	for _, t := range wire.AnnotationTables {
		repo, _ := annotations.NewSQLiteRepository(db, t)
		r.annotations[t] = repo
	}
	return r
}

// Annotations returns the repository of an annotation table, or nil for
// book_data and unknown tables.
func (r *Repos) Annotations(t wire.Table) annotations.Repository {
	return r.annotations[t]
}

// Tx is the handle passed to Update callbacks.
type Tx struct {
	*Repos
	touched map[wire.Table]struct{}
}

// Touch marks tables as invalidated by this transaction.
func (t *Tx) Touch(tables ...wire.Table) {
	for _, tb := range tables {
		t.touched[tb] = struct{}{}
	}
}

type Store struct {
	db       *sql.DB
	notifier *Notifier
	// origin tags the change rows written through this handle.
	origin string
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Open opens (creating if needed) the SQLite database at dsn and migrates it.
// A single connection serializes writers, so ":memory:" also works.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, notifier: NewNotifier(), origin: uuid.NewString()}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Read returns repositories bound to the database outside any transaction.
func (s *Store) Read() *Repos {
	return NewRepos(s.db)
}

// Subscribe observes the tables invalidated by committed Update calls.
func (s *Store) Subscribe() (<-chan []wire.Table, func()) {
	return s.notifier.Subscribe()
}

// Update runs fn in one transaction and, after commit, publishes the tables
// fn touched. The tables are also appended to the change log so Follow in
// another process sees them.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	touched, err := s.run(ctx, fn, true)
	if err != nil {
		return err
	}
	if len(touched) > 0 {
		s.notifier.Publish(touched)
	}
	return nil
}

// UpdateQuiet is Update without change notification. The reconciler uses it
// so applying server state does not schedule another sync.
func (s *Store) UpdateQuiet(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	_, err := s.run(ctx, fn, false)
	return err
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context, tx *Tx) error, record bool) ([]wire.Table, error) {
	var out []wire.Table
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, dbtx dbx.DBTX) error {
		tx := &Tx{Repos: NewRepos(dbtx), touched: make(map[wire.Table]struct{})}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		out = make([]wire.Table, 0, len(tx.touched))
		for t := range tx.touched {
			out = append(out, t)
		}
		out = wire.Ordered(out)
		if !record || len(out) == 0 {
			return nil
		}
		return recordChanges(ctx, dbtx, s.origin, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
