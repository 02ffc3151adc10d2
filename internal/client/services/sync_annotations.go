package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/client/client"
	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/reconcile"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

type localRef struct {
	bookID  string
	localID int64
}

// annotationSync reconciles one annotation table keyed by (fileId, localId).
// Parents are resolved by the book_data pass, so records of unmapped books
// wait for a later pass.
type annotationSync struct {
	r      *Reconciler
	wc     client.Client
	table  wire.Table
	res    *Result
	locals map[reconcile.Key]localRef
}

func (s *annotationSync) gather(ctx context.Context, rows []wire.Row) (deletes, updates []reconcile.Stamp, err error) {
	repos := s.r.store.Read()
	parents := map[string]int64{}

	server := make(map[reconcile.Key]wire.Row, len(rows))
	serverMax := map[int64]int64{}
	for _, row := range rows {
		server[reconcile.Key{FileID: row.FileID, ID: row.ID}] = row
		serverMax[row.FileID] = max(serverMax[row.FileID], row.ID)
	}

	parentOf := func(bookID string, resolve bool) (int64, Resolution, error) {
		if id, ok := parents[bookID]; ok {
			return id, Resolved, nil
		}
		id, ok, err := s.r.resolver.Mapped(ctx, bookID)
		if err != nil {
			return 0, Failed, err
		}
		if ok {
			parents[bookID] = id
			return id, Resolved, nil
		}
		if !resolve {
			return 0, Unknown, nil
		}
		b, err := repos.Books.Get(ctx, bookID)
		if errors.Is(err, common.ErrorNotFound) {
			return 0, Unknown, nil
		}
		if err != nil {
			return 0, Failed, err
		}
		id, res := s.r.resolver.Resolve(ctx, s.wc, ResolveRequest{BookID: bookID, SHA256: b.SHA256, Filesize: b.Filesize})
		if res == Resolved {
			parents[bookID] = id
		}
		return id, res, nil
	}

	tombs, err := repos.Tombstones.List(ctx, s.table)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range tombs {
		fileID, res, err := parentOf(t.BookID, true)
		if err != nil {
			return nil, nil, err
		}
		switch res {
		case Resolved:
			k := reconcile.Key{FileID: fileID, ID: t.LocalID}
			s.locals[k] = localRef{bookID: t.BookID, localID: t.LocalID}
			deletes = append(deletes, reconcile.Stamp{Key: k, At: t.DeletedAt})
		case Unknown:
			// The server cannot hold an annotation of a book it never saw.
			err := s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
				return tx.Tombstones.Delete(ctx, s.table, t.BookID, t.LocalID)
			})
			if err != nil {
				return nil, nil, err
			}
			s.res.Purged++
		case Failed:
			s.res.Skipped++
			s.res.OK = false
		}
	}

	list, err := repos.Annotations(s.table).List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range list {
		fileID, res, err := parentOf(a.BookID, false)
		if err != nil {
			return nil, nil, err
		}
		if res != Resolved {
			s.res.Skipped++
			continue
		}
		k := reconcile.Key{FileID: fileID, ID: a.LocalID}
		if row, taken := server[k]; taken && !a.Synced {
			moved, err := s.claim(ctx, a, row, serverMax[fileID])
			if err != nil {
				return nil, nil, err
			}
			if moved != a.LocalID {
				serverMax[fileID] = max(serverMax[fileID], moved)
				a.LocalID = moved
				k.ID = moved
			}
		}
		s.locals[k] = localRef{bookID: a.BookID, localID: a.LocalID}
		updates = append(updates, reconcile.Stamp{Key: k, At: a.LastUpdated})
	}
	return deletes, updates, nil
}

// claim settles an unsynced annotation whose key the server already holds.
// A server row with the same content is the device's own earlier push and is
// adopted; anything else came from another device, so the local row moves to
// a free id past serverMax. It returns the id the annotation ends up with.
func (s *annotationSync) claim(ctx context.Context, a models.Annotation, row wire.Row, serverMax int64) (int64, error) {
	var data wire.AnnotationData
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return 0, fmt.Errorf("decode %s %d/%d: %w", s.table, row.FileID, row.ID, err)
		}
	}

	moved := a.LocalID
	err := s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		repo := tx.Annotations(s.table)
		cur, err := repo.Get(ctx, a.BookID, a.LocalID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if row.DeletedAt == 0 && data.Locator == cur.Locator && data.Text == cur.Text && data.Style == cur.Style {
			cur.Synced = true
			return repo.Upsert(ctx, *cur)
		}
		active, err := repo.MaxLocalID(ctx, a.BookID)
		if err != nil {
			return err
		}
		deleted, err := tx.Tombstones.MaxLocalID(ctx, s.table, a.BookID)
		if err != nil {
			return err
		}
		moved = max(serverMax, active, deleted) + 1
		if err := repo.Delete(ctx, cur.BookID, cur.LocalID); err != nil {
			return err
		}
		cur.LocalID = moved
		return repo.Upsert(ctx, *cur)
	})
	if err != nil {
		return 0, err
	}
	if moved != a.LocalID {
		s.r.log.Info(ctx, "moved annotation off an id taken on the server", "table", s.table,
			"book_id", a.BookID, "from", a.LocalID, "to", moved)
		s.res.Moved++
	}
	return moved, nil
}

func (s *annotationSync) push(ctx context.Context, k reconcile.Key) error {
	ref := s.locals[k]
	repo := s.r.store.Read().Annotations(s.table)
	a, err := repo.Get(ctx, ref.bookID, ref.localID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(wire.AnnotationData{Locator: a.Locator, Text: a.Text, Style: a.Style})
	if err != nil {
		return err
	}
	canonical, err := s.wc.Update(ctx, wire.UpdateRequest{
		Table: s.table,
		Row:   wire.Row{FileID: k.FileID, ID: k.ID, UpdatedAt: a.LastUpdated, Data: data},
	})
	if err != nil {
		return err
	}
	return s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		repo := tx.Annotations(s.table)
		cur, err := repo.Get(ctx, ref.bookID, ref.localID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.Synced && cur.LastUpdated != a.LastUpdated {
			return nil
		}
		cur.Synced = true
		if cur.LastUpdated == a.LastUpdated {
			cur.LastUpdated = canonical
		}
		return repo.Upsert(ctx, *cur)
	})
}

func (s *annotationSync) pull(ctx context.Context, row wire.Row) (bool, error) {
	k := reconcile.Key{FileID: row.FileID, ID: row.ID}
	bookID := s.locals[k].bookID
	if bookID == "" {
		id, err := s.r.store.Read().FileMap.BookForFileID(ctx, row.FileID)
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		bookID = id
	}

	var data wire.AnnotationData
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return false, fmt.Errorf("decode %s %d/%d: %w", s.table, row.FileID, row.ID, err)
		}
	}

	applied := false
	err := s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := tx.Books.Get(ctx, bookID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		applied = true
		return tx.Annotations(s.table).Upsert(ctx, models.Annotation{
			BookID:      bookID,
			LocalID:     row.ID,
			Locator:     data.Locator,
			Text:        data.Text,
			Style:       data.Style,
			LastUpdated: row.UpdatedAt,
			Synced:      true,
		})
	})
	return applied, err
}

func (s *annotationSync) pushDelete(ctx context.Context, k reconcile.Key) error {
	if _, err := s.wc.Delete(ctx, wire.DeleteRequest{Table: s.table, FileID: k.FileID, ID: k.ID}); err != nil {
		return err
	}
	return s.purge(ctx, k)
}

func (s *annotationSync) applyDelete(ctx context.Context, k reconcile.Key) error {
	ref := s.locals[k]
	return s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.Annotations(s.table).Delete(ctx, ref.bookID, ref.localID)
	})
}

func (s *annotationSync) discardAndPull(ctx context.Context, k reconcile.Key, row wire.Row) (bool, error) {
	if err := s.purge(ctx, k); err != nil {
		return false, err
	}
	return s.pull(ctx, row)
}

func (s *annotationSync) purge(ctx context.Context, k reconcile.Key) error {
	ref := s.locals[k]
	return s.r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.Tombstones.Delete(ctx, s.table, ref.bookID, ref.localID)
	})
}
