package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestPostgresRepositoryManager_ImplementsInterface(t *testing.T) {
	var _ RepositoryManager = NewPostgresRepositoryManager()
	var _ Store = (*PostgresStore)(nil)
	var _ Store = (*MemoryStore)(nil)
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()
	if m.Users(db) == nil || m.Rows(db) == nil || m.Books(db) == nil {
		t.Fatal("factory returned nil")
	}
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	if err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	if err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestPostgresStore_InTxCommitsAndRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()
	s := NewPostgresStore(db, NewPostgresRepositoryManager())

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET current_seq`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"current_seq"}).AddRow(int64(1)))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(ctx context.Context, r Repos) error {
		_, err := r.Users.NextSeq(ctx, "u1")
		return err
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = s.InTx(context.Background(), func(ctx context.Context, r Repos) error {
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, r Repos) error {
		_, err := r.Users.Create(ctx, &models.User{UserName: "alice"})
		return err
	}))

	err := s.InTx(ctx, func(ctx context.Context, r Repos) error {
		if _, err := r.Users.Create(ctx, &models.User{UserName: "bob"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, r Repos) error {
		if _, err := r.Users.GetUserByLogin(ctx, "alice"); err != nil {
			return err
		}
		_, err := r.Users.GetUserByLogin(ctx, "bob")
		assert.Error(t, err, "bob must have been rolled back")
		return nil
	}))
}
