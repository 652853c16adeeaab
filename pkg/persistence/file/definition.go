package file

import (
	"context"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

const definitionKind = "definitions"

// DefinitionRepository stores workflow definitions as JSON files keyed by
// definition id.
type DefinitionRepository struct {
	persistence *Persistence
}

func (r *DefinitionRepository) Save(ctx context.Context, definition *models.Definition) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.persistence.writeEntity(definitionKind, definition.ID, definition)
}

func (r *DefinitionRepository) List(ctx context.Context) ([]*models.Definition, error) {
	ids, err := r.persistence.listIDs(definitionKind)
	if err != nil {
		return nil, err
	}

	definitions := make([]*models.Definition, 0, len(ids))

	for _, id := range ids {
		var definition models.Definition

		found, err := r.persistence.readEntity(definitionKind, id, &definition)
		if err != nil {
			return nil, err
		}

		if found {
			definitions = append(definitions, &definition)
		}
	}

	return definitions, nil
}

// ByWorkflowVersion returns the exact definition version, regardless of
// status, so running executions keep their bound graph after a newer
// version is accepted.
func (r *DefinitionRepository) ByWorkflowVersion(ctx context.Context, workflowID string, version int) (*models.Definition, error) {
	definitions, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, definition := range definitions {
		if definition.WorkflowID == workflowID && definition.Version == version {
			return definition, nil
		}
	}

	return nil, persistence.ErrDefinitionNotFound
}

// AcceptedByWorkflowID returns the accepted definition with the highest
// version for the workflow.
func (r *DefinitionRepository) AcceptedByWorkflowID(ctx context.Context, workflowID string) (*models.Definition, error) {
	definitions, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	var best *models.Definition

	for _, definition := range definitions {
		if definition.WorkflowID != workflowID || definition.Status != models.DefinitionStatusAccepted {
			continue
		}

		if best == nil || definition.Version > best.Version {
			best = definition
		}
	}

	if best == nil {
		return nil, persistence.ErrDefinitionNotFound
	}

	return best, nil
}
