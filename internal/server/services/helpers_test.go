package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/server/blobs"
	"github.com/dmitrijs2005/shelfsync/internal/server/config"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *repomanager.MemoryStore
	blobs *blobs.MemoryStore
	users *UserService
	rows  *RowService
	books *BookService
	clock int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: repomanager.NewMemoryStore(), blobs: blobs.NewMemoryStore(), clock: 1_000}
	f.users = NewUserService(f.store, &config.Config{SecretKey: "k", TokenValidity: time.Hour})
	f.rows = NewRowService(f.store)
	f.rows.now = func() int64 { return f.clock }
	f.books = NewBookService(f.store, f.blobs, f.rows, logging.NewNopLogger())
	return f
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u, err := f.users.Register(context.Background(), name, "pw")
	require.NoError(t, err)
	return u.ID
}

func sum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
