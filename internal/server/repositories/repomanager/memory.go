package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/books"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/rows"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/users"
)

// MemoryStore keeps everything in process. Units of work are serialized and
// run against clones that replace the live state only on success.
type MemoryStore struct {
	mu    sync.Mutex
	users *users.MemoryRepository
	rows  *rows.MemoryRepository
	books *books.MemoryRepository
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: users.NewMemoryRepository(),
		rows:  rows.NewMemoryRepository(),
		books: books.NewMemoryRepository(),
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, r, b := s.users.Clone(), s.rows.Clone(), s.books.Clone()
	if err := fn(ctx, Repos{Users: u, Rows: r, Books: b}); err != nil {
		return err
	}
	s.users, s.rows, s.books = u, r, b
	return nil
}

func (s *MemoryStore) Close() error { return nil }
