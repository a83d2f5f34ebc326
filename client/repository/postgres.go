package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"idPhoto/client/database"
	"idPhoto/client/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS photo_sessions (
	id                UUID PRIMARY KEY,
	trace_id          TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	task_id           TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL,
	error_message     TEXT NOT NULL DEFAULT '',
	output_path       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at      TIMESTAMPTZ
)`

const selectColumns = `id, trace_id, original_filename, task_id, state, error_message, output_path, created_at, updated_at, completed_at`

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// EnsureSchema creates the history table when missing.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create photo_sessions: %w", err)
	}
	return nil
}

func (r *PostgresRepo) CreateSession(ctx context.Context, rec *models.SessionRecord) error {
	query := `
		INSERT INTO photo_sessions (id, trace_id, original_filename, task_id, state, error_message, output_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	return r.db.Pool.QueryRow(ctx, query,
		rec.ID,
		rec.TraceID,
		rec.OriginalFilename,
		rec.TaskID,
		rec.State,
		rec.ErrorMessage,
		rec.OutputPath,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *PostgresRepo) GetSession(ctx context.Context, id string) (*models.SessionRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM photo_sessions WHERE id = $1`

	rec, err := scanRecord(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return rec, nil
}

// UpdateSession writes the mutable fields. A terminal state stamps
// completed_at.
func (r *PostgresRepo) UpdateSession(ctx context.Context, rec *models.SessionRecord) error {
	query := `
		UPDATE photo_sessions
		SET task_id = $1, state = $2, error_message = $3, output_path = $4, updated_at = NOW()
	`

	if rec.State == models.StateCompleted || rec.State == models.StateFailed {
		query += `, completed_at = NOW()`
	}

	query += ` WHERE id = $5`

	result, err := r.db.Pool.Exec(ctx, query, rec.TaskID, rec.State, rec.ErrorMessage, rec.OutputPath, rec.ID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (r *PostgresRepo) ListRecent(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + selectColumns + ` FROM photo_sessions ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := row.Scan(
		&rec.ID,
		&rec.TraceID,
		&rec.OriginalFilename,
		&rec.TaskID,
		&rec.State,
		&rec.ErrorMessage,
		&rec.OutputPath,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
