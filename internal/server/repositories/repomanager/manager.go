package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/shelfsync/internal/dbx"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/books"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/rows"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Rows(db dbx.DBTX) rows.Repository
	Books(db dbx.DBTX) books.Repository
}

// Repos is the set of repositories bound to one transaction.
type Repos struct {
	Users users.Repository
	Rows  rows.Repository
	Books books.Repository
}

// Store runs units of work atomically. fn's writes are all applied when it
// returns nil and none are applied otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	Close() error
}
