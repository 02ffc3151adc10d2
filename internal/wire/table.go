package wire

// Table names a synchronized table.
type Table string

const (
	TableBookData  Table = "book_data"
	TableBookmark  Table = "bookmark"
	TableHighlight Table = "highlight"
	TableNote      Table = "note"
)

// SyncOrder lists every table in reconciliation order. book_data comes first
// because annotations reference a book's server identity.
var SyncOrder = []Table{TableBookData, TableBookmark, TableHighlight, TableNote}

// AnnotationTables lists the tables keyed by (fileId, id).
var AnnotationTables = []Table{TableBookmark, TableHighlight, TableNote}

func (t Table) Valid() bool {
	switch t {
	case TableBookData, TableBookmark, TableHighlight, TableNote:
		return true
	}
	return false
}

func (t Table) IsAnnotation() bool {
	return t.Valid() && t != TableBookData
}

// Ordered returns the distinct valid tables of ts in SyncOrder.
func Ordered(ts []Table) []Table {
	seen := make(map[Table]bool, len(ts))
	for _, t := range ts {
		seen[t] = true
	}
	out := make([]Table, 0, len(seen))
	for _, t := range SyncOrder {
		if seen[t] {
			out = append(out, t)
		}
	}
	return out
}
