// Package postgresql provides PostgreSQL persistence for definitions,
// executions, documents, projects, and audit records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/inkwell-ai/inkwell/pkg/persistence"
	"github.com/inkwell-ai/inkwell/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	definitions *DefinitionRepository
	executions  *ExecutionRepository
	documents   *DocumentRepository
	audit       *AuditRepository
	projects    *ProjectRepository
}

// NewPersistence connects, runs migrations, and returns a ready persistence
// layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		definitions: &DefinitionRepository{db: database, logger: logger},
		executions:  &ExecutionRepository{db: database, logger: logger},
		documents:   &DocumentRepository{db: database, logger: logger},
		audit:       &AuditRepository{db: database, logger: logger},
		projects:    &ProjectRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return p.definitions
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) Documents() persistence.DocumentRepository {
	return p.documents
}

func (p *Persistence) Audit() persistence.AuditRepository {
	return p.audit
}

func (p *Persistence) Projects() persistence.ProjectRepository {
	return p.projects
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
