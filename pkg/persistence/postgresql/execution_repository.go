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

// ExecutionRepository handles execution database operations. The log,
// retry-count, attempt-count, context-state, and pending-input fields are
// stored as JSONB columns.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	fields, err := marshalExecutionFields(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, definition_version, document_id, document_type,
			project_id, user_id, current_node_id, log, retry_counts,
			attempt_counts, gate_outcome, terminal_outcome, context_state,
			pending_input, row_version, created_at, updated_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.DefinitionVersion,
		execution.DocumentID,
		execution.DocumentType,
		execution.ProjectID,
		nullableString(execution.UserID),
		execution.CurrentNodeID,
		fields.log,
		fields.retryCounts,
		fields.attemptCounts,
		nullableString(execution.GateOutcome),
		nullableString(string(execution.TerminalOutcome)),
		fields.contextState,
		fields.pendingInput,
		execution.RowVersion,
		execution.CreatedAt,
		execution.UpdatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to insert execution: %w", err))
	}

	return nil
}

// Update writes the execution only if the stored row still carries
// expectedVersion. A zero-row update means another writer won; the caller
// re-reads and retries.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution, expectedVersion int) error {
	fields, err := marshalExecutionFields(execution)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	query := `
		UPDATE executions SET
			current_node_id = $1,
			log = $2,
			retry_counts = $3,
			attempt_counts = $4,
			gate_outcome = $5,
			terminal_outcome = $6,
			context_state = $7,
			pending_input = $8,
			row_version = $9,
			updated_at = $10,
			completed_at = $11
		WHERE id = $12 AND row_version = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.CurrentNodeID,
		fields.log,
		fields.retryCounts,
		fields.attemptCounts,
		nullableString(execution.GateOutcome),
		nullableString(string(execution.TerminalOutcome)),
		fields.contextState,
		fields.pendingInput,
		expectedVersion+1,
		execution.UpdatedAt,
		execution.CompletedAt,
		execution.ID,
		expectedVersion,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, fmt.Errorf("failed to update execution: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if affected == 0 {
		if _, getErr := r.GetByID(ctx, execution.ID); getErr != nil {
			return getErr
		}

		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrConcurrencyConflict)
	}

	execution.RowVersion = expectedVersion + 1

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.Execution, error) {
	query := selectExecution + ` WHERE id = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", executionID, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.Execution, error) {
	query := selectExecution + ` WHERE document_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

func (r *ExecutionRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM executions WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete executions for document %s: %w", documentID, err)
	}

	return nil
}

const selectExecution = `
	SELECT id, workflow_id, definition_version, document_id, document_type,
		   project_id, user_id, current_node_id, log, retry_counts,
		   attempt_counts, gate_outcome, terminal_outcome, context_state,
		   pending_input, row_version, created_at, updated_at, completed_at
	FROM executions
`

type executionFields struct {
	log           []byte
	retryCounts   []byte
	attemptCounts []byte
	contextState  []byte
	pendingInput  []byte
}

func marshalExecutionFields(execution *models.Execution) (executionFields, error) {
	var fields executionFields

	var err error

	if fields.log, err = json.Marshal(execution.Log); err != nil {
		return fields, fmt.Errorf("failed to marshal execution log: %w", err)
	}

	if fields.retryCounts, err = json.Marshal(execution.RetryCounts); err != nil {
		return fields, fmt.Errorf("failed to marshal retry counts: %w", err)
	}

	if fields.attemptCounts, err = json.Marshal(execution.AttemptCounts); err != nil {
		return fields, fmt.Errorf("failed to marshal attempt counts: %w", err)
	}

	if fields.contextState, err = json.Marshal(execution.ContextState); err != nil {
		return fields, fmt.Errorf("failed to marshal context state: %w", err)
	}

	if execution.PendingInput != nil {
		if fields.pendingInput, err = json.Marshal(execution.PendingInput); err != nil {
			return fields, fmt.Errorf("failed to marshal pending input: %w", err)
		}
	}

	return fields, nil
}

func (r *ExecutionRepository) scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution       models.Execution
		userID          sql.NullString
		gateOutcome     sql.NullString
		terminalOutcome sql.NullString
		logJSON         []byte
		retryJSON       []byte
		attemptJSON     []byte
		stateJSON       []byte
		pendingJSON     []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.DefinitionVersion,
		&execution.DocumentID,
		&execution.DocumentType,
		&execution.ProjectID,
		&userID,
		&execution.CurrentNodeID,
		&logJSON,
		&retryJSON,
		&attemptJSON,
		&gateOutcome,
		&terminalOutcome,
		&stateJSON,
		&pendingJSON,
		&execution.RowVersion,
		&execution.CreatedAt,
		&execution.UpdatedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.UserID = userID.String
	execution.GateOutcome = gateOutcome.String
	execution.TerminalOutcome = models.TerminalOutcome(terminalOutcome.String)

	if err := json.Unmarshal(logJSON, &execution.Log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
	}

	if err := json.Unmarshal(retryJSON, &execution.RetryCounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retry counts: %w", err)
	}

	if err := json.Unmarshal(attemptJSON, &execution.AttemptCounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempt counts: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &execution.ContextState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context state: %w", err)
	}

	if len(pendingJSON) > 0 {
		execution.PendingInput = &models.PendingInput{}
		if err := json.Unmarshal(pendingJSON, execution.PendingInput); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending input: %w", err)
		}
	}

	return &execution, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
