// Package books persists BookRecords in the client database.
package books

import (
	"context"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
)

// Repository stores books. Get and GetByPubFile return common.ErrorNotFound
// when no row matches.
type Repository interface {
	Upsert(ctx context.Context, b models.Book) error
	Get(ctx context.Context, bookID string) (*models.Book, error)
	GetByPubFile(ctx context.Context, path string) (*models.Book, error)
	List(ctx context.Context) ([]models.Book, error)
	Delete(ctx context.Context, bookID string) error
}
