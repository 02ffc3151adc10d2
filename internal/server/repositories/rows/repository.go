// Package rows stores the server copy of synchronized records, one table
// for all tables, keyed by (user, table, fileId, localId).
package rows

import (
	"context"

	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the key was never written.
	Get(ctx context.Context, userID string, table wire.Table, fileID, localID int64) (*models.Row, error)
	// ListByFile returns every row of fileID, tombstones included, by localId.
	ListByFile(ctx context.Context, userID string, table wire.Table, fileID int64) ([]models.Row, error)
	// ListSince returns up to limit rows with Seq > since, by Seq.
	ListSince(ctx context.Context, userID string, table wire.Table, since int64, limit int) ([]models.Row, error)
	Upsert(ctx context.Context, row *models.Row) error
}
