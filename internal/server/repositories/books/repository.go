// Package books stores the uploaded book files of each user. The blob
// itself lives in a blobs.Store under Book.StorageKey.
package books

import (
	"context"

	"github.com/dmitrijs2005/shelfsync/internal/server/models"
)

type Repository interface {
	// Create fails with common.ErrorAlreadyExists when the user already
	// holds a book with the same sha256 and size.
	Create(ctx context.Context, book *models.Book) (*models.Book, error)
	GetByHash(ctx context.Context, userID, sha256 string, size int64) (*models.Book, error)
	Get(ctx context.Context, userID string, id int64) (*models.Book, error)
	List(ctx context.Context, userID string) ([]models.Book, error)
	Delete(ctx context.Context, userID string, id int64) error
}
