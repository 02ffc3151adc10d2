package books

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
)

// MemoryRepository keeps books in a map. Callers serialize access.
type MemoryRepository struct {
	lastID int64
	books  map[int64]models.Book
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{books: map[int64]models.Book{}}
}

// Clone returns a copy used as a transaction snapshot.
func (r *MemoryRepository) Clone() *MemoryRepository {
	c := &MemoryRepository{lastID: r.lastID, books: make(map[int64]models.Book, len(r.books))}
	for id, b := range r.books {
		c.books[id] = b
	}
	return c
}

func (r *MemoryRepository) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	if _, err := r.GetByHash(ctx, book.UserID, book.SHA256, book.Size); err == nil {
		return nil, common.ErrorAlreadyExists
	}
	r.lastID++
	book.ID = r.lastID
	book.CreatedAt = time.Now()
	r.books[book.ID] = *book
	return book, nil
}

func (r *MemoryRepository) GetByHash(_ context.Context, userID, sha256 string, size int64) (*models.Book, error) {
	for _, b := range r.books {
		if b.UserID == userID && b.SHA256 == sha256 && b.Size == size {
			return &b, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) Get(_ context.Context, userID string, id int64) (*models.Book, error) {
	b, ok := r.books[id]
	if !ok || b.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) List(_ context.Context, userID string) ([]models.Book, error) {
	var out []models.Book
	for _, b := range r.books {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b models.Book) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, userID string, id int64) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	delete(r.books, id)
	return nil
}
