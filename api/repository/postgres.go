package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/SunilSharmaNP/fvt/api/database"
	"github.com/SunilSharmaNP/fvt/api/models"
)

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Repository {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateTask(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, trace_id, requester_id, chat_id, tool, options, status, error_message, output_location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		task.ID,
		task.TraceID,
		task.RequesterID,
		task.ChatID,
		task.Tool,
		task.Options,
		task.Status,
		task.ErrorMessage,
		task.OutputLocation,
	).Scan(&task.CreatedAt, &task.UpdatedAt)

	return err
}

func (r *PostgresRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `
		SELECT id, trace_id, requester_id, chat_id, tool, options, status,
		       error_message, output_location, created_at, updated_at, completed_at
		FROM tasks
		WHERE id = $1
	`

	row := r.db.Pool.QueryRow(ctx, query, id)

	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.TraceID,
		&task.RequesterID,
		&task.ChatID,
		&task.Tool,
		&task.Options,
		&task.Status,
		&task.ErrorMessage,
		&task.OutputLocation,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return &task, nil
}
