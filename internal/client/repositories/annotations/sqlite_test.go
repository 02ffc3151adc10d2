package annotations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupRepo(t *testing.T, table wire.Table) *SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	name, err := SQLTable(table)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE ` + name + ` (
    book_id      TEXT NOT NULL,
    local_id     INTEGER NOT NULL,
    locator      TEXT NOT NULL,
    text         TEXT NOT NULL DEFAULT '',
    style        TEXT NOT NULL DEFAULT '',
    last_updated INTEGER NOT NULL,
    synced       INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (book_id, local_id)
);`)
	require.NoError(t, err)

	r, err := NewSQLiteRepository(db, table)
	require.NoError(t, err)
	return r
}

func TestNewSQLiteRepository_RejectsBookData(t *testing.T) {
	_, err := NewSQLiteRepository(nil, wire.TableBookData)
	require.ErrorIs(t, err, common.ErrorInvalidTable)
}

func TestUpsertGetDelete(t *testing.T) {
	r := setupRepo(t, wire.TableHighlight)
	ctx := context.Background()

	a := models.Annotation{BookID: "b1", LocalID: 1, Locator: "loc", Text: "quote", Style: "yellow", LastUpdated: 5}
	require.NoError(t, r.Upsert(ctx, a))
	a.Text = "edited"
	a.Synced = true
	require.NoError(t, r.Upsert(ctx, a))

	got, err := r.Get(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, a, *got)

	require.NoError(t, r.Delete(ctx, "b1", 1))
	_, err = r.Get(ctx, "b1", 1)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListByBookAndMaxLocalID(t *testing.T) {
	r := setupRepo(t, wire.TableNote)
	ctx := context.Background()

	for _, a := range []models.Annotation{
		{BookID: "b1", LocalID: 2, Locator: "x", LastUpdated: 1},
		{BookID: "b1", LocalID: 7, Locator: "y", LastUpdated: 1},
		{BookID: "b2", LocalID: 1, Locator: "z", LastUpdated: 1},
	} {
		require.NoError(t, r.Upsert(ctx, a))
	}

	got, err := r.ListByBook(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].LocalID)

	maxID, err := r.MaxLocalID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), maxID)

	maxID, err = r.MaxLocalID(ctx, "nobook")
	require.NoError(t, err)
	assert.Zero(t, maxID)

	require.NoError(t, r.DeleteByBook(ctx, "b1"))
	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b2", all[0].BookID)
}
