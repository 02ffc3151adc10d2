package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

const (
	DefaultPageLimit = 500
	MaxPageLimit     = 1000
)

// ConflictError rejects an update whose base is older than the server copy.
type ConflictError struct {
	ServerUpdatedAt int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: server has %d", e.ServerUpdatedAt)
}

func (e *ConflictError) Unwrap() error { return common.ErrVersionConflict }

// RowService serves the synchronized tables. Every accepted write takes the
// next sequence number of its user, so getSince never skips a row.
type RowService struct {
	store repomanager.Store
	now   func() int64
}

func NewRowService(store repomanager.Store) *RowService {
	return &RowService{store: store, now: common.NowMillis}
}

// stamp returns a timestamp strictly newer than prev and not behind the clock.
func (s *RowService) stamp(prev int64) int64 {
	return max(s.now(), prev+1)
}

func localID(table wire.Table, id int64) (int64, error) {
	if table == wire.TableBookData {
		return 0, nil
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: annotation id required", common.ErrorBadRequest)
	}
	return id, nil
}

func checkTable(table wire.Table) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", common.ErrorInvalidTable, table)
	}
	return nil
}

func toWire(rs []models.Row) []wire.Row {
	out := make([]wire.Row, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Wire())
	}
	return out
}

// Get returns the rows of one book. For annotation tables id selects a
// single row and zero selects all of them; book_data ignores id.
// Tombstones are included. A key never written yields no rows.
func (s *RowService) Get(ctx context.Context, userID string, table wire.Table, fileID, id int64) ([]wire.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	var out []models.Row
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if table.IsAnnotation() && id == 0 {
			var err error
			out, err = r.Rows.ListByFile(ctx, userID, table, fileID)
			return err
		}
		lid, _ := localID(table, id)
		row, err := r.Rows.Get(ctx, userID, table, fileID, lid)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out = []models.Row{*row}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toWire(out), nil
}

// GetSince returns rows written after the since watermark, oldest first,
// and the watermark to send next time.
func (s *RowService) GetSince(ctx context.Context, userID string, table wire.Table, since int64, limit int) (int64, []wire.Row, error) {
	if err := checkTable(table); err != nil {
		return 0, nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}

	var out []models.Row
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		out, err = r.Rows.ListSince(ctx, userID, table, since, limit)
		return err
	})
	if err != nil {
		return 0, nil, err
	}

	next := since
	if n := len(out); n > 0 {
		next = out[n-1].Seq
	}
	return next, toWire(out), nil
}

// Update stores row and returns its canonical updatedAt. Unless force is
// set, a server copy newer than row.UpdatedAt yields a *ConflictError.
// The referenced book must exist. Accepting an update revives a tombstone.
func (s *RowService) Update(ctx context.Context, userID string, table wire.Table, force bool, row wire.Row) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	lid, err := localID(table, row.ID)
	if err != nil {
		return 0, err
	}
	if row.FileID <= 0 {
		return 0, fmt.Errorf("%w: fileId required", common.ErrorBadRequest)
	}
	if len(row.Data) > 0 && !json.Valid(row.Data) {
		return 0, fmt.Errorf("%w: data is not JSON", common.ErrorBadRequest)
	}

	var updatedAt int64
	err = s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if _, err := r.Books.Get(ctx, userID, row.FileID); err != nil {
			return err
		}
		seq, err := r.Users.NextSeq(ctx, userID)
		if err != nil {
			return err
		}

		var prev int64
		existing, err := r.Rows.Get(ctx, userID, table, row.FileID, lid)
		switch {
		case err == nil:
			prev = existing.Version()
			if !force && prev > row.UpdatedAt {
				return &ConflictError{ServerUpdatedAt: prev}
			}
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		updatedAt = s.stamp(prev)
		return r.Rows.Upsert(ctx, &models.Row{
			UserID:    userID,
			Table:     table,
			FileID:    row.FileID,
			LocalID:   lid,
			UpdatedAt: updatedAt,
			Data:      row.Data,
			Seq:       seq,
		})
	})
	if err != nil {
		return 0, err
	}
	return updatedAt, nil
}

// Delete tombstones one row and returns its deletedAt. Deleting book_data
// also tombstones the book's active annotations.
func (s *RowService) Delete(ctx context.Context, userID string, table wire.Table, fileID, id int64) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	lid, err := localID(table, id)
	if err != nil {
		return 0, err
	}
	if fileID <= 0 {
		return 0, fmt.Errorf("%w: fileId required", common.ErrorBadRequest)
	}

	var deletedAt int64
	err = s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		deletedAt, err = s.tombstone(ctx, r, userID, table, fileID, lid)
		if err != nil || table != wire.TableBookData {
			return err
		}
		return s.tombstoneAnnotations(ctx, r, userID, fileID)
	})
	if err != nil {
		return 0, err
	}
	return deletedAt, nil
}

// tombstone marks a row deleted, creating it when the key is unknown so
// other devices still learn about the delete.
func (s *RowService) tombstone(ctx context.Context, r repomanager.Repos, userID string, table wire.Table, fileID, lid int64) (int64, error) {
	row := &models.Row{UserID: userID, Table: table, FileID: fileID, LocalID: lid}

	existing, err := r.Rows.Get(ctx, userID, table, fileID, lid)
	switch {
	case err == nil:
		row.UpdatedAt = existing.UpdatedAt
		row.DeletedAt = s.stamp(existing.Version())
	case errors.Is(err, common.ErrorNotFound):
		row.DeletedAt = s.stamp(0)
	default:
		return 0, err
	}

	if row.Seq, err = r.Users.NextSeq(ctx, userID); err != nil {
		return 0, err
	}
	if err := r.Rows.Upsert(ctx, row); err != nil {
		return 0, err
	}
	return row.DeletedAt, nil
}

func (s *RowService) tombstoneAnnotations(ctx context.Context, r repomanager.Repos, userID string, fileID int64) error {
	for _, table := range wire.AnnotationTables {
		rows, err := r.Rows.ListByFile(ctx, userID, table, fileID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.Deleted() {
				continue
			}
			if _, err := s.tombstone(ctx, r, userID, table, fileID, row.LocalID); err != nil {
				return err
			}
		}
	}
	return nil
}
