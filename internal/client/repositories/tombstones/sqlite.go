package tombstones

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/dbx"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, t models.Tombstone) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tombstones (table_name, book_id, local_id, deleted_at, sha256, filesize, pub_file, title, media_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, book_id, local_id) DO UPDATE SET
			deleted_at = MAX(deleted_at, excluded.deleted_at),
			sha256     = CASE WHEN excluded.sha256 <> '' THEN excluded.sha256 ELSE sha256 END,
			filesize   = CASE WHEN excluded.sha256 <> '' THEN excluded.filesize ELSE filesize END,
			pub_file   = CASE WHEN excluded.pub_file <> '' THEN excluded.pub_file ELSE pub_file END,
			title      = CASE WHEN excluded.pub_file <> '' THEN excluded.title ELSE title END,
			media_type = CASE WHEN excluded.pub_file <> '' THEN excluded.media_type ELSE media_type END
	`, string(t.Table), t.BookID, t.LocalID, t.DeletedAt, t.SHA256, t.Filesize, t.PubFile, t.Title, t.MediaType)
	if err != nil {
		return fmt.Errorf("failed to put tombstone %s %s/%d: %w", t.Table, t.BookID, t.LocalID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, table wire.Table, bookID string, localID int64) (*models.Tombstone, error) {
	t := models.Tombstone{Table: table, BookID: bookID, LocalID: localID}
	err := r.db.QueryRowContext(ctx, `
		SELECT deleted_at, sha256, filesize, pub_file, title, media_type FROM tombstones
		WHERE table_name = ? AND book_id = ? AND local_id = ?
	`, string(table), bookID, localID).Scan(&t.DeletedAt, &t.SHA256, &t.Filesize, &t.PubFile, &t.Title, &t.MediaType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tombstone: %w", err)
	}
	return &t, nil
}

func (r *SQLiteRepository) List(ctx context.Context, table wire.Table) ([]models.Tombstone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT book_id, local_id, deleted_at, sha256, filesize, pub_file, title, media_type FROM tombstones
		WHERE table_name = ? ORDER BY book_id, local_id
	`, string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query tombstones: %w", err)
	}
	defer rows.Close()

	var out []models.Tombstone
	for rows.Next() {
		t := models.Tombstone{Table: table}
		if err := rows.Scan(&t.BookID, &t.LocalID, &t.DeletedAt, &t.SHA256, &t.Filesize, &t.PubFile, &t.Title, &t.MediaType); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tombstones: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, table wire.Table, bookID string, localID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tombstones WHERE table_name = ? AND book_id = ? AND local_id = ?
	`, string(table), bookID, localID)
	if err != nil {
		return fmt.Errorf("failed to delete tombstone: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByBook(ctx context.Context, bookID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tombstones WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("failed to delete tombstones of %s: %w", bookID, err)
	}
	return nil
}

func (r *SQLiteRepository) MaxLocalID(ctx context.Context, table wire.Table, bookID string) (int64, error) {
	var maxID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(local_id), 0) FROM tombstones WHERE table_name = ? AND book_id = ?
	`, string(table), bookID).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to get max tombstone id: %w", err)
	}
	return maxID, nil
}
