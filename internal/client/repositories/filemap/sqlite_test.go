package filemap

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE file_map (
    file_id INTEGER PRIMARY KEY,
    book_id TEXT NOT NULL UNIQUE
);`)
	require.NoError(t, err)
	return db
}

func TestPutAndLookups(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, 7, "b1"))

	id, err := r.FileIDForBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	book, err := r.BookForFileID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "b1", book)

	_, err = r.FileIDForBook(ctx, "b2")
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = r.BookForFileID(ctx, 8)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPut_OneFileIDPerBook(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, 7, "b1"))
	require.NoError(t, r.Put(ctx, 9, "b1"))

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.FileMapping{{FileID: 9, BookID: "b1"}}, all)

	require.NoError(t, r.Put(ctx, 9, "b2"))
	all, err = r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.FileMapping{{FileID: 9, BookID: "b2"}}, all)
}

func TestDeleteByBook(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, 1, "b1"))
	require.NoError(t, r.DeleteByBook(ctx, "b1"))
	_, err := r.FileIDForBook(ctx, "b1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
