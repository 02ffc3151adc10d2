// Package reconcile holds the pure part of the sync algorithm: folding
// server rows, local tombstones and local records into one timeline per
// record, and deciding what to do with each entry. Nothing here does I/O.
package reconcile

import "sort"

// Key identifies a synchronized record. ID is zero for book_data.
type Key struct {
	FileID int64
	ID     int64
}

// Stamp is a keyed timestamp from one of the three sources.
type Stamp struct {
	Key Key
	At  int64
}

// ServerRow is a row as reported by getSince. A non-zero DeletedAt marks a
// server-side soft delete.
type ServerRow struct {
	Key       Key
	UpdatedAt int64
	DeletedAt int64
}

// Entry carries the four optional timestamps of one record. Zero means
// absent.
type Entry struct {
	ClientUpdate int64
	ClientDelete int64
	ServerUpdate int64
	ServerDelete int64
}

type Timeline map[Key]Entry

// Build folds server state, local deletions and local updates, in that
// order, into a Timeline. Duplicate keys keep the latest timestamp.
func Build(server []ServerRow, deletes []Stamp, updates []Stamp) Timeline {
	tl := make(Timeline, len(server)+len(deletes)+len(updates))

	for _, r := range server {
		e := tl[r.Key]
		if r.DeletedAt > 0 {
			e.ServerDelete = max(e.ServerDelete, r.DeletedAt)
		} else {
			e.ServerUpdate = max(e.ServerUpdate, r.UpdatedAt)
		}
		tl[r.Key] = e
	}
	for _, d := range deletes {
		e := tl[d.Key]
		e.ClientDelete = max(e.ClientDelete, d.At)
		tl[d.Key] = e
	}
	for _, u := range updates {
		e := tl[u.Key]
		e.ClientUpdate = max(e.ClientUpdate, u.At)
		tl[u.Key] = e
	}
	return tl
}

// Decision pairs an entry with its action.
type Decision struct {
	Key    Key
	Entry  Entry
	Action Action
}

// Plan decides every entry of tl, ordered by key.
func Plan(tl Timeline) []Decision {
	out := make([]Decision, 0, len(tl))
	for k, e := range tl {
		out = append(out, Decision{Key: k, Entry: e, Action: Decide(e)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.FileID != out[j].Key.FileID {
			return out[i].Key.FileID < out[j].Key.FileID
		}
		return out[i].Key.ID < out[j].Key.ID
	})
	return out
}
