package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func receive(t *testing.T, ch <-chan []wire.Table) []wire.Table {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(time.Second):
		t.Fatal("no notification")
		return nil
	}
}

func TestOpen_FileDatabaseIsMigratedOnce(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "shelf.db")

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='jobs'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestUpdate_PublishesTouchedTables(t *testing.T) {
	s := openStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	err := s.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.Touch(wire.TableNote, wire.TableBookData)
		return tx.Books.Upsert(ctx, models.Book{BookID: "b1", PubFile: "/b1", LastUpdated: 1})
	})
	require.NoError(t, err)

	assert.Equal(t, []wire.Table{wire.TableBookData, wire.TableNote}, receive(t, ch))
}

func TestUpdate_RollbackPublishesNothing(t *testing.T) {
	s := openStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	err := s.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.Touch(wire.TableBookData)
		require.NoError(t, tx.Books.Upsert(ctx, models.Book{BookID: "b1", PubFile: "/b1", LastUpdated: 1}))
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = s.Read().Books.Get(context.Background(), "b1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	select {
	case got := <-ch:
		t.Fatalf("unexpected notification %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUpdateQuiet_DoesNotPublish(t *testing.T) {
	s := openStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	err := s.UpdateQuiet(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.Touch(wire.TableBookData)
		return tx.Books.Upsert(ctx, models.Book{BookID: "b1", PubFile: "/b1", LastUpdated: 1})
	})
	require.NoError(t, err)

	select {
	case got := <-ch:
		t.Fatalf("unexpected notification %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRepos_AnnotationsPerTable(t *testing.T) {
	s := openStore(t)
	r := s.Read()
	for _, tb := range wire.AnnotationTables {
		assert.NotNil(t, r.Annotations(tb), tb)
	}
	assert.Nil(t, r.Annotations(wire.TableBookData))
}
