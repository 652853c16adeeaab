package file

import (
	"context"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

const executionKind = "executions"

// ExecutionRepository stores executions as JSON files keyed by execution id.
type ExecutionRepository struct {
	persistence *Persistence
}

func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.Execution, error) {
	var execution models.Execution

	found, err := r.persistence.readEntity(executionKind, executionID, &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", executionID, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var existing models.Execution

	found, err := r.persistence.readEntity(executionKind, execution.ID, &existing)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	if found {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	return r.persistence.writeEntity(executionKind, execution.ID, execution)
}

// Update persists the execution only if the stored row still carries
// expectedVersion, then bumps RowVersion.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution, expectedVersion int) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var existing models.Execution

	found, err := r.persistence.readEntity(executionKind, execution.ID, &existing)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if !found {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	if existing.RowVersion != expectedVersion {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrConcurrencyConflict)
	}

	execution.RowVersion = expectedVersion + 1

	return r.persistence.writeEntity(executionKind, execution.ID, execution)
}

func (r *ExecutionRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.Execution, error) {
	ids, err := r.persistence.listIDs(executionKind)
	if err != nil {
		return nil, err
	}

	var executions []*models.Execution

	for _, id := range ids {
		var execution models.Execution

		found, err := r.persistence.readEntity(executionKind, id, &execution)
		if err != nil {
			return nil, err
		}

		if found && execution.DocumentID == documentID {
			executions = append(executions, &execution)
		}
	}

	return executions, nil
}

func (r *ExecutionRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	executions, err := r.ListByDocument(ctx, documentID)
	if err != nil {
		return err
	}

	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	for _, execution := range executions {
		if err := r.persistence.removeEntity(executionKind, execution.ID); err != nil {
			return persistence.NewExecutionError("DeleteByDocument", execution.ID, err)
		}
	}

	return nil
}
