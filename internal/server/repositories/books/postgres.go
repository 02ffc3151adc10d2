package books

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/dbx"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const bookColumns = `id, user_id, sha256, size, file_name, storage_key, created_at`

func scanBook(s interface{ Scan(...any) error }) (*models.Book, error) {
	b := &models.Book{}
	if err := s.Scan(&b.ID, &b.UserID, &b.SHA256, &b.Size, &b.FileName, &b.StorageKey, &b.CreatedAt); err != nil {
		return nil, err
	}
	return b, nil
}

// Create relies on ON CONFLICT DO NOTHING so a concurrent upload of the
// same content does not abort the surrounding transaction.
func (r *PostgresRepository) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	query :=
		`INSERT INTO books (user_id, sha256, size, file_name, storage_key)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, sha256, size) DO NOTHING
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		book.UserID, book.SHA256, book.Size, book.FileName, book.StorageKey).Scan(&book.ID, &book.CreatedAt)
	if err != nil {
		if dbx.IsNoRows(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return book, nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, userID, sha256 string, size int64) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books
		WHERE user_id = $1 AND sha256 = $2 AND size = $3`

	return r.one(ctx, query, userID, sha256, size)
}

func (r *PostgresRepository) Get(ctx context.Context, userID string, id int64) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books
		WHERE user_id = $1 AND id = $2`

	return r.one(ctx, query, userID, id)
}

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books
		WHERE user_id = $1
		ORDER BY id`

	rs, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rs.Close()

	var out []models.Book
	for rs.Next() {
		b, err := scanBook(rs)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *b)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string, id int64) error {
	query := `DELETE FROM books WHERE user_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffectedOne(res, common.ErrorNotFound)
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if dbx.IsNoRows(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return b, nil
}
