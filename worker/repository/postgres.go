package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SunilSharmaNP/fvt/worker/engine"
)

var ErrTaskNotFound = errors.New("task not found")

// PostgresRepo archives terminal task states onto the rows the API
// created at submission time.
type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) SaveTerminal(ctx context.Context, rec engine.TerminalRecord) error {
	query := `UPDATE tasks
		SET status = $1, error_message = $2, output_location = $3,
		    updated_at = NOW(), completed_at = $4
		WHERE id = $5`

	tag, err := r.db.Exec(ctx, query,
		string(rec.Status), rec.Detail, rec.Location, rec.Finished, rec.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}
