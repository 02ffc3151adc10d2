package rows

import (
	"cmp"
	"context"
	"slices"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

type key struct {
	userID  string
	table   wire.Table
	fileID  int64
	localID int64
}

// MemoryRepository keeps rows in a map. Callers serialize access.
type MemoryRepository struct {
	rows map[key]models.Row
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[key]models.Row{}}
}

// Clone returns a deep copy used as a transaction snapshot.
func (r *MemoryRepository) Clone() *MemoryRepository {
	c := NewMemoryRepository()
	for k, v := range r.rows {
		v.Data = slices.Clone(v.Data)
		c.rows[k] = v
	}
	return c
}

func (r *MemoryRepository) Get(_ context.Context, userID string, table wire.Table, fileID, localID int64) (*models.Row, error) {
	row, ok := r.rows[key{userID, table, fileID, localID}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	row.Data = slices.Clone(row.Data)
	return &row, nil
}

func (r *MemoryRepository) ListByFile(_ context.Context, userID string, table wire.Table, fileID int64) ([]models.Row, error) {
	out := r.filter(func(k key, _ models.Row) bool {
		return k.userID == userID && k.table == table && k.fileID == fileID
	})
	slices.SortFunc(out, func(a, b models.Row) int { return cmp.Compare(a.LocalID, b.LocalID) })
	return out, nil
}

func (r *MemoryRepository) ListSince(_ context.Context, userID string, table wire.Table, since int64, limit int) ([]models.Row, error) {
	out := r.filter(func(k key, v models.Row) bool {
		return k.userID == userID && k.table == table && v.Seq > since
	})
	slices.SortFunc(out, func(a, b models.Row) int { return cmp.Compare(a.Seq, b.Seq) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, row *models.Row) error {
	v := *row
	v.Data = slices.Clone(row.Data)
	r.rows[key{row.UserID, row.Table, row.FileID, row.LocalID}] = v
	return nil
}

func (r *MemoryRepository) filter(keep func(key, models.Row) bool) []models.Row {
	var out []models.Row
	for k, v := range r.rows {
		if keep(k, v) {
			v.Data = slices.Clone(v.Data)
			out = append(out, v)
		}
	}
	return out
}
