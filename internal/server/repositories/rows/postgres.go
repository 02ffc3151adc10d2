package rows

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/dbx"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const rowColumns = `user_id, table_name, file_id, local_id, updated_at, deleted_at, data, seq`

func scanRow(s interface{ Scan(...any) error }) (models.Row, error) {
	var (
		r     models.Row
		table string
	)
	if err := s.Scan(&r.UserID, &table, &r.FileID, &r.LocalID, &r.UpdatedAt, &r.DeletedAt, &r.Data, &r.Seq); err != nil {
		return models.Row{}, err
	}
	r.Table = wire.Table(table)
	return r, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string, table wire.Table, fileID, localID int64) (*models.Row, error) {
	query := `SELECT ` + rowColumns + ` FROM sync_rows
		WHERE user_id = $1 AND table_name = $2 AND file_id = $3 AND local_id = $4`

	row, err := scanRow(r.db.QueryRowContext(ctx, query, userID, string(table), fileID, localID))
	if err != nil {
		if dbx.IsNoRows(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &row, nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, userID string, table wire.Table, fileID int64) ([]models.Row, error) {
	query := `SELECT ` + rowColumns + ` FROM sync_rows
		WHERE user_id = $1 AND table_name = $2 AND file_id = $3
		ORDER BY local_id`

	rs, err := r.db.QueryContext(ctx, query, userID, string(table), fileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collect(rs)
}

func (r *PostgresRepository) ListSince(ctx context.Context, userID string, table wire.Table, since int64, limit int) ([]models.Row, error) {
	query := `SELECT ` + rowColumns + ` FROM sync_rows
		WHERE user_id = $1 AND table_name = $2 AND seq > $3
		ORDER BY seq
		LIMIT $4`

	rs, err := r.db.QueryContext(ctx, query, userID, string(table), since, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collect(rs)
}

func (r *PostgresRepository) Upsert(ctx context.Context, row *models.Row) error {
	query := `INSERT INTO sync_rows (` + rowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, table_name, file_id, local_id) DO UPDATE SET
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at,
			data = EXCLUDED.data,
			seq = EXCLUDED.seq`

	_, err := r.db.ExecContext(ctx, query,
		row.UserID, string(row.Table), row.FileID, row.LocalID, row.UpdatedAt, row.DeletedAt, row.Data, row.Seq)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func collect(rs *sql.Rows) ([]models.Row, error) {
	defer rs.Close()

	var out []models.Row
	for rs.Next() {
		row, err := scanRow(rs)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
