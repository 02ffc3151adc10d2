// Package tombstones persists local deletion markers until the server
// acknowledges them.
package tombstones

import (
	"context"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

type Repository interface {
	// Put inserts a tombstone or moves an existing one to the later deletedAt.
	Put(ctx context.Context, t models.Tombstone) error
	Get(ctx context.Context, table wire.Table, bookID string, localID int64) (*models.Tombstone, error)
	List(ctx context.Context, table wire.Table) ([]models.Tombstone, error)
	Delete(ctx context.Context, table wire.Table, bookID string, localID int64) error
	// DeleteByBook removes every tombstone of bookID across all tables.
	DeleteByBook(ctx context.Context, bookID string) error
	MaxLocalID(ctx context.Context, table wire.Table, bookID string) (int64, error)
}
