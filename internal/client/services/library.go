package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/repositories/annotations"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/cryptox"
	"github.com/dmitrijs2005/shelfsync/internal/filex"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

var (
	ErrNotAnnotationTable = errors.New("not an annotation table")
	ErrBookNotFound       = errors.New("book not found")
	ErrAnnotationNotFound = errors.New("annotation not found")
)

// bookIDLength is the number of hex characters kept from the hash.
const bookIDLength = 32

// BookID derives the local identity of a book from its identifier, falling
// back to the title.
func BookID(identifier, title string) string {
	src := strings.TrimSpace(identifier)
	if src == "" {
		src = strings.TrimSpace(title)
	}
	return cryptox.HashString(src)[:bookIDLength]
}

// BookMeta is what the reader engine knows about a publication.
type BookMeta struct {
	Identifier string
	Title      string
	MediaType  string
}

// AnnotationInput is the editable part of an annotation.
type AnnotationInput struct {
	Locator string
	Text    string
	Style   string
}

// Library is the local edit API used by presentation layers. Every
// mutation runs in one store transaction and invalidates its sync tables.
type Library struct {
	store *store.Store
	now   func() int64
}

func NewLibrary(st *store.Store) *Library {
	return &Library{store: st, now: common.NowMillis}
}

// stamp returns a timestamp strictly newer than prev.
func (l *Library) stamp(prev int64) int64 {
	return max(l.now(), prev+1)
}

// ImportBook adds or refreshes a book file. Re-importing a deleted book
// lifts its tombstone.
func (l *Library) ImportBook(ctx context.Context, path string, meta BookMeta) (*models.Book, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	sha, size, err := cryptox.FileChecksum(abs)
	if err != nil {
		return nil, err
	}

	title := meta.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}
	mediaType := meta.MediaType
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(abs))
	}

	book := models.Book{
		BookID:    BookID(meta.Identifier, title),
		PubFile:   abs,
		Title:     title,
		MediaType: mediaType,
		SHA256:    sha,
		Filesize:  size,
	}

	err = l.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		var prev int64
		existing, err := tx.Books.Get(ctx, book.BookID)
		switch {
		case err == nil:
			book.Progress = existing.Progress
			prev = existing.LastUpdated
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}
		if ts, err := tx.Tombstones.Get(ctx, wire.TableBookData, book.BookID, 0); err == nil {
			prev = max(prev, ts.DeletedAt)
			if err := tx.Tombstones.Delete(ctx, wire.TableBookData, book.BookID, 0); err != nil {
				return err
			}
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		book.LastUpdated = l.stamp(prev)
		tx.Touch(wire.TableBookData)
		return tx.Books.Upsert(ctx, book)
	})
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return &book, nil
}

// UpdateProgress stores a new reading locator.
func (l *Library) UpdateProgress(ctx context.Context, bookID, locator string) error {
	return l.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		b, err := tx.Books.Get(ctx, bookID)
		if errors.Is(err, common.ErrorNotFound) {
			return ErrBookNotFound
		}
		if err != nil {
			return err
		}
		b.Progress = locator
		b.LastUpdated = l.stamp(b.LastUpdated)
		tx.Touch(wire.TableBookData)
		return tx.Books.Upsert(ctx, *b)
	})
}

func annotationRepo(tx *store.Tx, table wire.Table) (annotations.Repository, error) {
	repo := tx.Annotations(table)
	if repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAnnotationTable, table)
	}
	return repo, nil
}

// AddAnnotation allocates the next local id of the book in table.
func (l *Library) AddAnnotation(ctx context.Context, table wire.Table, bookID string, in AnnotationInput) (*models.Annotation, error) {
	var out models.Annotation
	err := l.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		repo, err := annotationRepo(tx, table)
		if err != nil {
			return err
		}
		if _, err := tx.Books.Get(ctx, bookID); errors.Is(err, common.ErrorNotFound) {
			return ErrBookNotFound
		} else if err != nil {
			return err
		}

		active, err := repo.MaxLocalID(ctx, bookID)
		if err != nil {
			return err
		}
		deleted, err := tx.Tombstones.MaxLocalID(ctx, table, bookID)
		if err != nil {
			return err
		}

		out = models.Annotation{
			BookID:      bookID,
			LocalID:     max(active, deleted) + 1,
			Locator:     in.Locator,
			Text:        in.Text,
			Style:       in.Style,
			LastUpdated: l.now(),
		}
		tx.Touch(table)
		return repo.Upsert(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *Library) UpdateAnnotation(ctx context.Context, table wire.Table, bookID string, localID int64, in AnnotationInput) error {
	return l.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		repo, err := annotationRepo(tx, table)
		if err != nil {
			return err
		}
		a, err := repo.Get(ctx, bookID, localID)
		if errors.Is(err, common.ErrorNotFound) {
			return ErrAnnotationNotFound
		}
		if err != nil {
			return err
		}
		a.Locator, a.Text, a.Style = in.Locator, in.Text, in.Style
		a.LastUpdated = l.stamp(a.LastUpdated)
		tx.Touch(table)
		return repo.Upsert(ctx, *a)
	})
}

// DeleteAnnotation turns the row into a tombstone. A row the server never
// acknowledged is dropped outright.
func (l *Library) DeleteAnnotation(ctx context.Context, table wire.Table, bookID string, localID int64) error {
	return l.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		repo, err := annotationRepo(tx, table)
		if err != nil {
			return err
		}
		a, err := repo.Get(ctx, bookID, localID)
		if errors.Is(err, common.ErrorNotFound) {
			return ErrAnnotationNotFound
		}
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, bookID, localID); err != nil {
			return err
		}
		tx.Touch(table)
		if !a.Synced {
			return nil
		}
		return tx.Tombstones.Put(ctx, models.Tombstone{
			Table:     table,
			BookID:    bookID,
			LocalID:   localID,
			DeletedAt: l.stamp(a.LastUpdated),
		})
	})
}

// DeleteBook removes the book and its annotations and leaves one book
// tombstone. The server cascades the delete to annotations, so their own
// tombstones are dropped.
func (l *Library) DeleteBook(ctx context.Context, bookID string) error {
	return l.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		return l.deleteBook(ctx, tx, bookID)
	})
}

func (l *Library) deleteBook(ctx context.Context, tx *store.Tx, bookID string) error {
	b, err := tx.Books.Get(ctx, bookID)
	if errors.Is(err, common.ErrorNotFound) {
		return ErrBookNotFound
	}
	if err != nil {
		return err
	}
	for _, t := range wire.AnnotationTables {
		if err := tx.Annotations(t).DeleteByBook(ctx, bookID); err != nil {
			return err
		}
	}
	if err := tx.Tombstones.DeleteByBook(ctx, bookID); err != nil {
		return err
	}
	if err := tx.Books.Delete(ctx, bookID); err != nil {
		return err
	}
	tx.Touch(wire.TableBookData)
	return tx.Tombstones.Put(ctx, models.Tombstone{
		Table:     wire.TableBookData,
		BookID:    bookID,
		DeletedAt: l.stamp(b.LastUpdated),
		SHA256:    b.SHA256,
		Filesize:  b.Filesize,
		PubFile:   b.PubFile,
		Title:     b.Title,
		MediaType: b.MediaType,
	})
}

// DeleteByPath tombstones the book stored at path, if any.
func (l *Library) DeleteByPath(ctx context.Context, path string) (bool, error) {
	found := false
	err := l.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		b, err := tx.Books.GetByPubFile(ctx, path)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return l.deleteBook(ctx, tx, b.BookID)
	})
	return found, err
}

// MarkVanishedBooks tombstones every book whose file is gone from disk.
func (l *Library) MarkVanishedBooks(ctx context.Context) (int, error) {
	all, err := l.store.Read().Books.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range all {
		if !filex.Vanished(b.PubFile) {
			continue
		}
		if err := l.DeleteBook(ctx, b.BookID); err != nil && !errors.Is(err, ErrBookNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}

func (l *Library) ListBooks(ctx context.Context) ([]models.Book, error) {
	return l.store.Read().Books.List(ctx)
}

func (l *Library) GetBook(ctx context.Context, bookID string) (*models.Book, error) {
	b, err := l.store.Read().Books.Get(ctx, bookID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, ErrBookNotFound
	}
	return b, err
}

func (l *Library) ListAnnotations(ctx context.Context, table wire.Table, bookID string) ([]models.Annotation, error) {
	repo := l.store.Read().Annotations(table)
	if repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAnnotationTable, table)
	}
	return repo.ListByBook(ctx, bookID)
}
