package books

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/dbx"
)

const columns = `book_id, pub_file, title, media_type, progress, sha256, filesize, last_updated`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(s scanner) (*models.Book, error) {
	var b models.Book
	if err := s.Scan(&b.BookID, &b.PubFile, &b.Title, &b.MediaType, &b.Progress, &b.SHA256, &b.Filesize, &b.LastUpdated); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, b models.Book) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			pub_file     = excluded.pub_file,
			title        = excluded.title,
			media_type   = excluded.media_type,
			progress     = excluded.progress,
			sha256       = excluded.sha256,
			filesize     = excluded.filesize,
			last_updated = excluded.last_updated
	`, b.BookID, b.PubFile, b.Title, b.MediaType, b.Progress, b.SHA256, b.Filesize, b.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert book %s: %w", b.BookID, err)
	}
	return nil
}

func (r *SQLiteRepository) get(ctx context.Context, where string, arg any) (*models.Book, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM books WHERE `+where+` LIMIT 1`, arg)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, bookID string) (*models.Book, error) {
	return r.get(ctx, `book_id = ?`, bookID)
}

func (r *SQLiteRepository) GetByPubFile(ctx context.Context, path string) (*models.Book, error) {
	return r.get(ctx, `pub_file = ?`, path)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Book, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM books ORDER BY book_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var out []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, bookID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("failed to delete book %s: %w", bookID, err)
	}
	return nil
}
