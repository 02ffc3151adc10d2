package models

import "github.com/dmitrijs2005/shelfsync/internal/wire"

// Book is a locally imported publication. BookID is derived from the book's
// identifier or title and never carries a server identity.
type Book struct {
	BookID    string
	PubFile   string
	Title     string
	MediaType string
	// Progress is the serialized reading locator, empty when unread.
	Progress    string
	SHA256      string
	Filesize    int64
	LastUpdated int64
}

// Annotation is a bookmark, highlight or note. LocalID is allocated per book.
// Synced is set once the server has the row under its LocalID; until then the
// annotation may be moved to another LocalID to avoid a server-side collision.
type Annotation struct {
	BookID      string
	LocalID     int64
	Locator     string
	Text        string
	Style       string
	LastUpdated int64
	Synced      bool
}

// Tombstone records a local deletion until the server acknowledges it.
// LocalID is zero for a whole-book deletion, which also keeps the book's
// content identity and a snapshot of its row so it can still be resolved,
// or restored when the server wins, after the row is gone.
type Tombstone struct {
	Table     wire.Table
	BookID    string
	LocalID   int64
	DeletedAt int64
	SHA256    string
	Filesize  int64
	PubFile   string
	Title     string
	MediaType string
}

// WholeBook reports a book-level tombstone.
func (t Tombstone) WholeBook() bool {
	return t.LocalID == 0
}

// FileMapping links a server fileId to a local bookId.
type FileMapping struct {
	FileID int64
	BookID string
}
