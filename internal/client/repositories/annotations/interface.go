// Package annotations persists bookmarks, highlights and notes. One
// repository instance serves one annotation table.
package annotations

import (
	"context"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
)

type Repository interface {
	Upsert(ctx context.Context, a models.Annotation) error
	Get(ctx context.Context, bookID string, localID int64) (*models.Annotation, error)
	List(ctx context.Context) ([]models.Annotation, error)
	ListByBook(ctx context.Context, bookID string) ([]models.Annotation, error)
	Delete(ctx context.Context, bookID string, localID int64) error
	DeleteByBook(ctx context.Context, bookID string) error
	MaxLocalID(ctx context.Context, bookID string) (int64, error)
}
