package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

// DefinitionRepository handles workflow definition database operations.
// Node and edge lists are stored as JSONB; definitions are immutable after
// acceptance, so the upsert only ever touches draft rows.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *DefinitionRepository) Save(ctx context.Context, definition *models.Definition) error {
	nodesJSON, err := json.Marshal(definition.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal definition nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(definition.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal definition edges: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (
			id, workflow_id, version, status, nodes, edges, created_at, accepted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			accepted_at = EXCLUDED.accepted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		definition.ID,
		definition.WorkflowID,
		definition.Version,
		definition.Status,
		nodesJSON,
		edgesJSON,
		definition.CreatedAt,
		definition.AcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save definition: %w", err)
	}

	return nil
}

func (r *DefinitionRepository) AcceptedByWorkflowID(ctx context.Context, workflowID string) (*models.Definition, error) {
	query := `
		SELECT id, workflow_id, version, status, nodes, edges, created_at, accepted_at
		FROM workflow_definitions
		WHERE workflow_id = $1 AND status = 'accepted'
		ORDER BY version DESC
		LIMIT 1
	`

	definition, err := r.scanDefinition(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}

	return definition, nil
}

func (r *DefinitionRepository) ByWorkflowVersion(ctx context.Context, workflowID string, version int) (*models.Definition, error) {
	query := `
		SELECT id, workflow_id, version, status, nodes, edges, created_at, accepted_at
		FROM workflow_definitions
		WHERE workflow_id = $1 AND version = $2
	`

	definition, err := r.scanDefinition(r.db.QueryRowContext(ctx, query, workflowID, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}

	return definition, nil
}

func (r *DefinitionRepository) List(ctx context.Context) ([]*models.Definition, error) {
	query := `
		SELECT id, workflow_id, version, status, nodes, edges, created_at, accepted_at
		FROM workflow_definitions
		ORDER BY workflow_id, version
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var definitions []*models.Definition

	for rows.Next() {
		definition, err := r.scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	return definitions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DefinitionRepository) scanDefinition(row rowScanner) (*models.Definition, error) {
	var (
		definition models.Definition
		nodesJSON  []byte
		edgesJSON  []byte
	)

	err := row.Scan(
		&definition.ID,
		&definition.WorkflowID,
		&definition.Version,
		&definition.Status,
		&nodesJSON,
		&edgesJSON,
		&definition.CreatedAt,
		&definition.AcceptedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &definition.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &definition.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition edges: %w", err)
	}

	return &definition, nil
}
