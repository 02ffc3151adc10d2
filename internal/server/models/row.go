package models

import "github.com/dmitrijs2005/shelfsync/internal/wire"

// Row is the server copy of one synchronized record. LocalID is zero for
// book_data. A row with DeletedAt set is a server-side tombstone.
//
// Seq orders every write of a user and is the getSince watermark.
type Row struct {
	UserID    string
	Table     wire.Table
	FileID    int64
	LocalID   int64
	UpdatedAt int64
	DeletedAt int64
	Data      []byte
	Seq       int64
}

// Version is the newest timestamp the row carries.
func (r Row) Version() int64 {
	return max(r.UpdatedAt, r.DeletedAt)
}

// Deleted reports a tombstoned row.
func (r Row) Deleted() bool {
	return r.DeletedAt > 0
}

// Wire converts the row to its protocol form.
func (r Row) Wire() wire.Row {
	return wire.Row{
		FileID:    r.FileID,
		ID:        r.LocalID,
		UpdatedAt: r.UpdatedAt,
		DeletedAt: r.DeletedAt,
		Data:      r.Data,
	}
}
