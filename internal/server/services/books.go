package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/server/blobs"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// BookService owns uploaded book files: their rows in the books table and
// their content in the blob store.
type BookService struct {
	store repomanager.Store
	blobs blobs.Store
	rows  *RowService
	log   logging.Logger
}

func NewBookService(store repomanager.Store, b blobs.Store, rows *RowService, log logging.Logger) *BookService {
	return &BookService{store: store, blobs: b, rows: rows, log: log.With("service", "books")}
}

// Upload describes one incoming book file.
type Upload struct {
	FileName string
	SHA256   string
	Size     int64
	Body     io.Reader
}

func validSHA256(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Resolve reports the fileId of the user's book with this content.
func (s *BookService) Resolve(ctx context.Context, userID, sha string, size int64) (int64, bool, error) {
	sha = strings.ToLower(sha)
	if !validSHA256(sha) || size < 0 {
		return 0, false, common.ErrorBadRequest
	}

	var book *models.Book
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		book, err = r.Books.GetByHash(ctx, userID, sha, size)
		return err
	})
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return book.ID, true, nil
}

// countingHash hashes and counts what flows through it.
type countingHash struct {
	r io.Reader
	h hash.Hash
	n int64
}

func (c *countingHash) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.h.Write(p[:n])
	c.n += int64(n)
	return n, err
}

// Upload stores a book unless the user already has identical content, in
// which case the existing book is returned and the body is not read.
// Content that does not match the declared checksum and size is discarded
// with common.ErrorIntegrity.
func (s *BookService) Upload(ctx context.Context, userID string, u Upload) (*models.Book, error) {
	u.SHA256 = strings.ToLower(strings.TrimSpace(u.SHA256))
	if !validSHA256(u.SHA256) || u.Size < 0 || u.Body == nil {
		return nil, common.ErrorBadRequest
	}

	if existing, err := s.byHash(ctx, userID, u.SHA256, u.Size); err == nil {
		return existing, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	key := blobs.NewKey(userID)
	body := &countingHash{r: u.Body, h: sha256.New()}
	if err := s.blobs.Put(ctx, key, body, u.Size); err != nil {
		s.discard(ctx, key)
		if body.n != u.Size {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", common.ErrorIntegrity, body.n, u.Size)
		}
		return nil, fmt.Errorf("store blob: %w", err)
	}
	if got := hex.EncodeToString(body.h.Sum(nil)); got != u.SHA256 || body.n != u.Size {
		s.discard(ctx, key)
		return nil, fmt.Errorf("%w: checksum %s, want %s", common.ErrorIntegrity, got, u.SHA256)
	}

	book := &models.Book{UserID: userID, SHA256: u.SHA256, Size: u.Size, FileName: u.FileName, StorageKey: key}
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		book, err = r.Books.Create(ctx, book)
		return err
	})
	if errors.Is(err, common.ErrorAlreadyExists) {
		s.discard(ctx, key)
		return s.byHash(ctx, userID, u.SHA256, u.Size)
	}
	if err != nil {
		s.discard(ctx, key)
		return nil, err
	}

	s.log.Info(ctx, "book stored", "user", userID, "fileId", book.ID, "size", book.Size)
	return book, nil
}

func (s *BookService) byHash(ctx context.Context, userID, sha string, size int64) (*models.Book, error) {
	var book *models.Book
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		book, err = r.Books.GetByHash(ctx, userID, sha, size)
		return err
	})
	return book, err
}

func (s *BookService) discard(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Warn(ctx, "blob cleanup failed", "key", key, "error", err)
	}
}

// Open returns a book and a reader over its content. The caller closes it.
func (s *BookService) Open(ctx context.Context, userID string, fileID int64) (*models.Book, io.ReadCloser, error) {
	book, err := s.get(ctx, userID, fileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, book.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return book, rc, nil
}

func (s *BookService) get(ctx context.Context, userID string, fileID int64) (*models.Book, error) {
	var book *models.Book
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		book, err = r.Books.Get(ctx, userID, fileID)
		return err
	})
	return book, err
}

// Catalogue lists the user's books in upload order.
func (s *BookService) Catalogue(ctx context.Context, userID string) ([]models.Book, error) {
	var out []models.Book
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		out, err = r.Books.List(ctx, userID)
		return err
	})
	return out, err
}

// DeleteBook removes a book and its content, and tombstones its book_data
// and annotation rows so every device drops it on the next sync.
func (s *BookService) DeleteBook(ctx context.Context, userID string, fileID int64) error {
	var book *models.Book
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		if book, err = r.Books.Get(ctx, userID, fileID); err != nil {
			return err
		}
		if err := r.Books.Delete(ctx, userID, fileID); err != nil {
			return err
		}
		if _, err := s.rows.tombstone(ctx, r, userID, wire.TableBookData, fileID, 0); err != nil {
			return err
		}
		return s.rows.tombstoneAnnotations(ctx, r, userID, fileID)
	})
	if err != nil {
		return err
	}

	s.discard(ctx, book.StorageKey)
	s.log.Info(ctx, "book deleted", "user", userID, "fileId", fileID)
	return nil
}
