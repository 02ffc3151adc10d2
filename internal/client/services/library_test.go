package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/cryptox"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookID_PrefersIdentifier(t *testing.T) {
	assert.Equal(t, cryptox.HashString("urn:isbn:1")[:32], BookID(" urn:isbn:1 ", "Dune"))
	assert.Equal(t, cryptox.HashString("Dune")[:32], BookID("", "Dune"))
	assert.Len(t, BookID("", "x"), 32)
}

func TestImportBook(t *testing.T) {
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	b := d.importBook(t, "dune.epub", "spice", "")

	sha, size, err := cryptox.FileChecksum(b.PubFile)
	require.NoError(t, err)
	assert.Equal(t, BookID("", "dune"), b.BookID)
	assert.Equal(t, "dune", b.Title)
	assert.Equal(t, sha, b.SHA256)
	assert.Equal(t, size, b.Filesize)
	assert.Positive(t, b.LastUpdated)

	got, err := d.library.GetBook(context.Background(), b.BookID)
	require.NoError(t, err)
	if diff := cmp.Diff(b, got); diff != "" {
		t.Errorf("stored book mismatch (-want +got):\n%s", diff)
	}
}

func TestImportBook_PublishesBookData(t *testing.T) {
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	ch, cancel := d.store.Subscribe()
	defer cancel()

	d.importBook(t, "a.epub", "x", "A")

	select {
	case got := <-ch:
		assert.Equal(t, []wire.Table{wire.TableBookData}, got)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestImportBook_ReimportLiftsTombstoneAndKeepsProgress(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	b := d.importBook(t, "a.epub", "x", "A")
	require.NoError(t, d.library.UpdateProgress(ctx, b.BookID, "loc-5"))

	again, err := d.library.ImportBook(ctx, b.PubFile, BookMeta{Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, "loc-5", again.Progress)

	require.NoError(t, d.library.DeleteBook(ctx, b.BookID))
	ts, err := d.store.Read().Tombstones.Get(ctx, wire.TableBookData, b.BookID, 0)
	require.NoError(t, err)

	revived, err := d.library.ImportBook(ctx, b.PubFile, BookMeta{Title: "A"})
	require.NoError(t, err)
	assert.Greater(t, revived.LastUpdated, ts.DeletedAt)
	tombs, err := d.store.Read().Tombstones.List(ctx, wire.TableBookData)
	require.NoError(t, err)
	assert.Empty(t, tombs)
}

func TestUpdateProgress_StampsStrictlyNewer(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	d.library.now = func() int64 { return 100 }
	b := d.importBook(t, "a.epub", "x", "A")
	require.Equal(t, int64(100), b.LastUpdated)

	require.NoError(t, d.library.UpdateProgress(ctx, b.BookID, "p"))
	got, err := d.library.GetBook(ctx, b.BookID)
	require.NoError(t, err)
	assert.Equal(t, int64(101), got.LastUpdated)

	assert.ErrorIs(t, d.library.UpdateProgress(ctx, "missing", "p"), ErrBookNotFound)
}

func TestAddAnnotation_AllocatesPastTombstones(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	b := d.importBook(t, "a.epub", "x", "A")

	a1, err := d.library.AddAnnotation(ctx, wire.TableHighlight, b.BookID, AnnotationInput{Locator: "l1"})
	require.NoError(t, err)
	a2, err := d.library.AddAnnotation(ctx, wire.TableHighlight, b.BookID, AnnotationInput{Locator: "l2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a1.LocalID)
	assert.Equal(t, int64(2), a2.LocalID)

	d.markSynced(t, wire.TableHighlight, b.BookID, a2.LocalID)
	require.NoError(t, d.library.DeleteAnnotation(ctx, wire.TableHighlight, b.BookID, a2.LocalID))
	a3, err := d.library.AddAnnotation(ctx, wire.TableHighlight, b.BookID, AnnotationInput{Locator: "l3"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), a3.LocalID)

	list, err := d.library.ListAnnotations(ctx, wire.TableHighlight, b.BookID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	n, err := d.library.AddAnnotation(ctx, wire.TableNote, b.BookID, AnnotationInput{Locator: "n"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n.LocalID)
}

func TestAnnotation_Errors(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	b := d.importBook(t, "a.epub", "x", "A")

	_, err := d.library.AddAnnotation(ctx, wire.TableBookData, b.BookID, AnnotationInput{})
	assert.ErrorIs(t, err, ErrNotAnnotationTable)
	_, err = d.library.AddAnnotation(ctx, wire.TableNote, "missing", AnnotationInput{})
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.ErrorIs(t, d.library.UpdateAnnotation(ctx, wire.TableNote, b.BookID, 7, AnnotationInput{}), ErrAnnotationNotFound)
	assert.ErrorIs(t, d.library.DeleteAnnotation(ctx, wire.TableNote, b.BookID, 7), ErrAnnotationNotFound)
}

func TestDeleteAnnotation_LeavesTombstone(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	b := d.importBook(t, "a.epub", "x", "A")
	a, err := d.library.AddAnnotation(ctx, wire.TableBookmark, b.BookID, AnnotationInput{Locator: "l"})
	require.NoError(t, err)
	d.markSynced(t, wire.TableBookmark, b.BookID, a.LocalID)

	require.NoError(t, d.library.DeleteAnnotation(ctx, wire.TableBookmark, b.BookID, a.LocalID))

	ts, err := d.store.Read().Tombstones.Get(ctx, wire.TableBookmark, b.BookID, a.LocalID)
	require.NoError(t, err)
	assert.Greater(t, ts.DeletedAt, a.LastUpdated)
	list, err := d.library.ListAnnotations(ctx, wire.TableBookmark, b.BookID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteAnnotation_UnsyncedLeavesNoTombstone(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	b := d.importBook(t, "a.epub", "x", "A")
	a, err := d.library.AddAnnotation(ctx, wire.TableNote, b.BookID, AnnotationInput{Locator: "l"})
	require.NoError(t, err)
	assert.False(t, a.Synced)

	require.NoError(t, d.library.DeleteAnnotation(ctx, wire.TableNote, b.BookID, a.LocalID))

	_, err = d.store.Read().Tombstones.Get(ctx, wire.TableNote, b.BookID, a.LocalID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteBook_SingleTombstoneWithContentIdentity(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	b := d.importBook(t, "a.epub", "x", "A")
	n, err := d.library.AddAnnotation(ctx, wire.TableNote, b.BookID, AnnotationInput{Locator: "l"})
	require.NoError(t, err)
	d.markSynced(t, wire.TableNote, b.BookID, n.LocalID)
	require.NoError(t, d.library.DeleteAnnotation(ctx, wire.TableNote, b.BookID, n.LocalID))
	_, err = d.library.AddAnnotation(ctx, wire.TableHighlight, b.BookID, AnnotationInput{Locator: "h"})
	require.NoError(t, err)

	require.NoError(t, d.library.DeleteBook(ctx, b.BookID))

	repos := d.store.Read()
	books, err := repos.Books.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
	for _, tb := range wire.AnnotationTables {
		rows, err := repos.Annotations(tb).List(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows, tb)
		tombs, err := repos.Tombstones.List(ctx, tb)
		require.NoError(t, err)
		assert.Empty(t, tombs, tb)
	}
	tombs, err := repos.Tombstones.List(ctx, wire.TableBookData)
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, models.Tombstone{
		Table:     wire.TableBookData,
		BookID:    b.BookID,
		DeletedAt: tombs[0].DeletedAt,
		SHA256:    b.SHA256,
		Filesize:  b.Filesize,
		PubFile:   b.PubFile,
		Title:     b.Title,
		MediaType: b.MediaType,
	}, tombs[0])

	assert.ErrorIs(t, d.library.DeleteBook(ctx, b.BookID), ErrBookNotFound)
}

func TestMarkVanishedBooks(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	gone := d.importBook(t, "gone.epub", "1", "Gone")
	kept := d.importBook(t, "kept.epub", "2", "Kept")
	require.NoError(t, os.Remove(gone.PubFile))

	n, err := d.library.MarkVanishedBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	books, err := d.library.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, kept.BookID, books[0].BookID)
	_, err = d.store.Read().Tombstones.Get(ctx, wire.TableBookData, gone.BookID, 0)
	assert.NoError(t, err)
}

func TestDeleteByPath(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newFakeRemote(), ReconcilerOptions{})
	b := d.importBook(t, "a.epub", "x", "A")

	found, err := d.library.DeleteByPath(ctx, "/nowhere.epub")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = d.library.DeleteByPath(ctx, b.PubFile)
	require.NoError(t, err)
	assert.True(t, found)
	_, err = d.library.GetBook(ctx, b.BookID)
	assert.ErrorIs(t, err, ErrBookNotFound)
}
