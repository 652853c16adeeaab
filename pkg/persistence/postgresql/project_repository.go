package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

// ProjectRepository handles project database operations.
type ProjectRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ProjectRepository) GetByCode(ctx context.Context, code string) (*models.Project, error) {
	query := `SELECT code, name, archived, created_at FROM projects WHERE code = $1`

	var project models.Project

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&project.Code,
		&project.Name,
		&project.Archived,
		&project.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrProjectNotFound
		}

		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	return &project, nil
}

func (r *ProjectRepository) Save(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (code, name, archived, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			archived = EXCLUDED.archived
	`

	_, err := r.db.ExecContext(ctx, query, project.Code, project.Name, project.Archived, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}

	return nil
}
