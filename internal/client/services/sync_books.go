package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/shelfsync/internal/client/client"
	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/reconcile"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/cryptox"
	"github.com/dmitrijs2005/shelfsync/internal/filex"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// bookSync reconciles book_data keyed by fileId.
type bookSync struct {
	r   *Reconciler
	wc  client.Client
	res *Result
	// books maps timeline keys to the local bookIds seen while gathering.
	books map[reconcile.Key]string
	// tombs holds the resolved tombstones, which carry the deleted row.
	tombs map[reconcile.Key]models.Tombstone
}

func (s *bookSync) gather(ctx context.Context, _ []wire.Row) (deletes, updates []reconcile.Stamp, err error) {
	repos := s.r.store.Read()

	tombs, err := repos.Tombstones.List(ctx, wire.TableBookData)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range tombs {
		fileID, res := s.r.resolver.Resolve(ctx, s.wc, ResolveRequest{
			BookID:   t.BookID,
			SHA256:   t.SHA256,
			Filesize: t.Filesize,
		})
		switch res {
		case Resolved:
			k := reconcile.Key{FileID: fileID}
			s.books[k] = t.BookID
			s.tombs[k] = t
			deletes = append(deletes, reconcile.Stamp{Key: k, At: t.DeletedAt})
		case Unknown:
			if err := s.r.reclaim(ctx, t.BookID); err != nil {
				return nil, nil, err
			}
			s.r.log.Info(ctx, "reclaimed book unknown to server", "book_id", t.BookID)
			s.res.Reclaimed++
		case Failed:
			s.res.Skipped++
			s.res.OK = false
		}
	}

	books, err := repos.Books.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range books {
		fileID, res := s.r.resolver.Resolve(ctx, s.wc, ResolveRequest{
			BookID:   b.BookID,
			SHA256:   b.SHA256,
			Filesize: b.Filesize,
			PubFile:  b.PubFile,
			FileName: filepath.Base(b.PubFile),
			Upload:   true,
		})
		switch res {
		case Resolved:
			k := reconcile.Key{FileID: fileID}
			s.books[k] = b.BookID
			updates = append(updates, reconcile.Stamp{Key: k, At: b.LastUpdated})
		case Unknown:
			s.r.log.Debug(ctx, "book has no server identity yet", "book_id", b.BookID)
			s.res.Skipped++
		case Failed:
			s.res.Skipped++
			s.res.OK = false
		}
	}
	return deletes, updates, nil
}

func (s *bookSync) push(ctx context.Context, k reconcile.Key) error {
	bookID := s.books[k]
	b, err := s.r.store.Read().Books.Get(ctx, bookID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(wire.BookData{Progress: b.Progress, MediaType: b.MediaType})
	if err != nil {
		return err
	}
	canonical, err := s.wc.Update(ctx, wire.UpdateRequest{
		Table: wire.TableBookData,
		Row:   wire.Row{FileID: k.FileID, UpdatedAt: b.LastUpdated, Data: data},
	})
	if err != nil {
		return err
	}
	return s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		cur, err := tx.Books.Get(ctx, bookID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// A local edit made during the push keeps its own, newer stamp.
		if cur.LastUpdated != b.LastUpdated {
			return nil
		}
		cur.LastUpdated = canonical
		return tx.Books.Upsert(ctx, *cur)
	})
}

func decodeBookData(row wire.Row) (wire.BookData, error) {
	var data wire.BookData
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return data, fmt.Errorf("decode book_data %d: %w", row.FileID, err)
		}
	}
	return data, nil
}

func (s *bookSync) pull(ctx context.Context, row wire.Row) (bool, error) {
	k := reconcile.Key{FileID: row.FileID}
	data, err := decodeBookData(row)
	if err != nil {
		return false, err
	}

	bookID, ok := s.books[k]
	if !ok {
		id, err := s.r.store.Read().FileMap.BookForFileID(ctx, row.FileID)
		switch {
		case err == nil:
			bookID, ok = id, true
		case !errors.Is(err, common.ErrorNotFound):
			return false, err
		}
	}

	if ok {
		applied := false
		err := s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
			b, err := tx.Books.Get(ctx, bookID)
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			b.Progress = data.Progress
			if data.MediaType != "" {
				b.MediaType = data.MediaType
			}
			b.LastUpdated = row.UpdatedAt
			applied = true
			return tx.Books.Upsert(ctx, *b)
		})
		if err != nil || applied {
			return applied, err
		}
	}

	if !s.r.opts.DownloadMissing || s.r.opts.LibraryDir == "" {
		return false, nil
	}
	return true, s.download(ctx, row, data, s.r.opts.LibraryDir, nil)
}

// discardAndPull brings back a locally deleted book whose server row is
// newer. The row is rebuilt from the tombstone while the file is still on
// disk unchanged; otherwise the file is downloaded again, regardless of
// DownloadMissing.
func (s *bookSync) discardAndPull(ctx context.Context, k reconcile.Key, row wire.Row) (bool, error) {
	t, ok := s.tombs[k]
	if !ok {
		if err := s.purge(ctx, k); err != nil {
			return false, err
		}
		return s.pull(ctx, row)
	}
	data, err := decodeBookData(row)
	if err != nil {
		return false, err
	}

	if t.PubFile != "" {
		if sha, size, err := cryptox.FileChecksum(t.PubFile); err == nil && sha == t.SHA256 && size == t.Filesize {
			return true, s.restore(ctx, k, t, data, row.UpdatedAt)
		}
	}

	dir := s.r.opts.LibraryDir
	if dir == "" && t.PubFile != "" {
		dir = filepath.Dir(t.PubFile)
	}
	if dir == "" {
		if err := s.purge(ctx, k); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, s.download(ctx, row, data, dir, &t)
}

// restore puts the tombstoned book back with the server row applied.
func (s *bookSync) restore(ctx context.Context, k reconcile.Key, t models.Tombstone, data wire.BookData, updatedAt int64) error {
	book := models.Book{
		BookID:      t.BookID,
		PubFile:     t.PubFile,
		Title:       t.Title,
		MediaType:   t.MediaType,
		Progress:    data.Progress,
		SHA256:      t.SHA256,
		Filesize:    t.Filesize,
		LastUpdated: updatedAt,
	}
	if data.MediaType != "" {
		book.MediaType = data.MediaType
	}
	s.r.log.Info(ctx, "restored deleted book, server row is newer", "file_id", k.FileID, "book_id", book.BookID)
	return s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		if err := tx.Tombstones.Delete(ctx, wire.TableBookData, book.BookID, 0); err != nil {
			return err
		}
		if err := tx.Books.Upsert(ctx, book); err != nil {
			return err
		}
		return tx.FileMap.Put(ctx, k.FileID, book.BookID)
	})
}

// download fetches a book file into dir and imports it with the pulled row
// applied. A non-nil tombstone supplies the identity of a book being
// brought back; otherwise the identity is derived from the content.
func (s *bookSync) download(ctx context.Context, row wire.Row, data wire.BookData, dir string, prev *models.Tombstone) error {
	dir, err := filex.EnsureDir(dir)
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, fmt.Sprintf("book-%d", row.FileID))
	d, err := s.wc.DownloadBook(ctx, row.FileID, dest)
	if err != nil {
		return err
	}

	path := d.Path
	if d.FileName != "" {
		named := filepath.Join(dir, filex.SafeName(d.FileName))
		if !filex.Exists(named) && os.Rename(path, named) == nil {
			path = named
		}
	}

	mediaType := data.MediaType
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(path))
	}
	book := models.Book{
		BookID:      d.SHA256[:bookIDLength],
		PubFile:     path,
		Title:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		MediaType:   mediaType,
		Progress:    data.Progress,
		SHA256:      d.SHA256,
		Filesize:    d.Size,
		LastUpdated: row.UpdatedAt,
	}
	if prev != nil {
		book.BookID = prev.BookID
		if prev.Title != "" {
			book.Title = prev.Title
		}
	}
	s.r.log.Info(ctx, "downloaded book", "file_id", row.FileID, "book_id", book.BookID, "path", path)

	return s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		if err := tx.Tombstones.Delete(ctx, wire.TableBookData, book.BookID, 0); err != nil {
			return err
		}
		if err := tx.Books.Upsert(ctx, book); err != nil {
			return err
		}
		return tx.FileMap.Put(ctx, row.FileID, book.BookID)
	})
}

func (s *bookSync) pushDelete(ctx context.Context, k reconcile.Key) error {
	if _, err := s.wc.Delete(ctx, wire.DeleteRequest{Table: wire.TableBookData, FileID: k.FileID}); err != nil {
		return err
	}
	return s.purge(ctx, k)
}

func (s *bookSync) applyDelete(ctx context.Context, k reconcile.Key) error {
	return s.r.reclaim(ctx, s.books[k])
}

func (s *bookSync) purge(ctx context.Context, k reconcile.Key) error {
	bookID := s.books[k]
	return s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		if err := tx.Tombstones.Delete(ctx, wire.TableBookData, bookID, 0); err != nil {
			return err
		}
		return tx.FileMap.DeleteByBook(ctx, bookID)
	})
}

// reclaim atomically removes every local trace of a book: annotations,
// tombstones, the book row and its mapping.
func (r *Reconciler) reclaim(ctx context.Context, bookID string) error {
	return r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
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
		return tx.FileMap.DeleteByBook(ctx, bookID)
	})
}
