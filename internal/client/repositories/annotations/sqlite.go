package annotations

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

const columns = `book_id, local_id, locator, text, style, last_updated, synced`

// SQLTable maps a sync table to its SQLite table name.
func SQLTable(t wire.Table) (string, error) {
	switch t {
	case wire.TableBookmark:
		return "bookmarks", nil
	case wire.TableHighlight:
		return "highlights", nil
	case wire.TableNote:
		return "notes", nil
	}
	return "", fmt.Errorf("%w: %s", common.ErrorInvalidTable, t)
}

type SQLiteRepository struct {
	db    dbx.DBTX
	table string
}

// NewSQLiteRepository returns the repository for one annotation table.
func NewSQLiteRepository(db dbx.DBTX, t wire.Table) (*SQLiteRepository, error) {
	name, err := SQLTable(t)
	if err != nil {
		return nil, err
	}
	return &SQLiteRepository{db: db, table: name}, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, a models.Annotation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO `+r.table+` (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id, local_id) DO UPDATE SET
			locator      = excluded.locator,
			text         = excluded.text,
			style        = excluded.style,
			last_updated = excluded.last_updated,
			synced       = excluded.synced
	`, a.BookID, a.LocalID, a.Locator, a.Text, a.Style, a.LastUpdated, a.Synced)
	if err != nil {
		return fmt.Errorf("failed to upsert %s %s/%d: %w", r.table, a.BookID, a.LocalID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, bookID string, localID int64) (*models.Annotation, error) {
	var a models.Annotation
	err := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM `+r.table+` WHERE book_id = ? AND local_id = ?`, bookID, localID).
		Scan(&a.BookID, &a.LocalID, &a.Locator, &a.Text, &a.Style, &a.LastUpdated, &a.Synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s/%d: %w", r.table, bookID, localID, err)
	}
	return &a, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]models.Annotation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM `+r.table+where+` ORDER BY book_id, local_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.table, err)
	}
	defer rows.Close()

	var out []models.Annotation
	for rows.Next() {
		var a models.Annotation
		if err := rows.Scan(&a.BookID, &a.LocalID, &a.Locator, &a.Text, &a.Style, &a.LastUpdated, &a.Synced); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.table, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", r.table, err)
	}
	return out, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Annotation, error) {
	return r.query(ctx, "")
}

func (r *SQLiteRepository) ListByBook(ctx context.Context, bookID string) ([]models.Annotation, error) {
	return r.query(ctx, ` WHERE book_id = ?`, bookID)
}

func (r *SQLiteRepository) Delete(ctx context.Context, bookID string, localID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE book_id = ? AND local_id = ?`, bookID, localID); err != nil {
		return fmt.Errorf("failed to delete %s %s/%d: %w", r.table, bookID, localID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByBook(ctx context.Context, bookID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("failed to delete %s of %s: %w", r.table, bookID, err)
	}
	return nil
}

// MaxLocalID returns the highest local id in use for bookID, or 0.
func (r *SQLiteRepository) MaxLocalID(ctx context.Context, bookID string) (int64, error) {
	var maxID int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(local_id), 0) FROM `+r.table+` WHERE book_id = ?`, bookID).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to get max local id of %s: %w", r.table, err)
	}
	return maxID, nil
}
