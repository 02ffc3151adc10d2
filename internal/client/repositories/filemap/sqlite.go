package filemap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put records fileID ↔ bookID, dropping any older mapping of either side.
func (r *SQLiteRepository) Put(ctx context.Context, fileID int64, bookID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM file_map WHERE book_id = ? AND file_id <> ?`, bookID, fileID); err != nil {
		return fmt.Errorf("failed to clear mapping of %s: %w", bookID, err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO file_map (file_id, book_id) VALUES (?, ?)
		ON CONFLICT(file_id) DO UPDATE SET book_id = excluded.book_id
	`, fileID, bookID)
	if err != nil {
		return fmt.Errorf("failed to map %d to %s: %w", fileID, bookID, err)
	}
	return nil
}

func (r *SQLiteRepository) FileIDForBook(ctx context.Context, bookID string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT file_id FROM file_map WHERE book_id = ?`, bookID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrorNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up file id of %s: %w", bookID, err)
	}
	return id, nil
}

func (r *SQLiteRepository) BookForFileID(ctx context.Context, fileID int64) (string, error) {
	var bookID string
	err := r.db.QueryRowContext(ctx, `SELECT book_id FROM file_map WHERE file_id = ?`, fileID).Scan(&bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up book of %d: %w", fileID, err)
	}
	return bookID, nil
}

func (r *SQLiteRepository) DeleteByBook(ctx context.Context, bookID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM file_map WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("failed to delete mapping of %s: %w", bookID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.FileMapping, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT file_id, book_id FROM file_map ORDER BY file_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query file map: %w", err)
	}
	defer rows.Close()

	var out []models.FileMapping
	for rows.Next() {
		var m models.FileMapping
		if err := rows.Scan(&m.FileID, &m.BookID); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file map: %w", err)
	}
	return out, nil
}
