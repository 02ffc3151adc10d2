// Package filemap stores the FileIdentityMap: server fileId ↔ local bookId.
package filemap

import (
	"context"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
)

// Repository keeps at most one fileId per bookId. Lookups return
// common.ErrorNotFound for unmapped ids.
type Repository interface {
	Put(ctx context.Context, fileID int64, bookID string) error
	FileIDForBook(ctx context.Context, bookID string) (int64, error)
	BookForFileID(ctx context.Context, fileID int64) (string, error)
	DeleteByBook(ctx context.Context, bookID string) error
	List(ctx context.Context) ([]models.FileMapping, error)
}
