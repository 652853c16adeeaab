package file

import (
	"context"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

const projectKind = "projects"

// ProjectRepository stores projects as JSON files keyed by project code.
type ProjectRepository struct {
	persistence *Persistence
}

func (r *ProjectRepository) GetByCode(ctx context.Context, code string) (*models.Project, error) {
	var project models.Project

	found, err := r.persistence.readEntity(projectKind, code, &project)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrProjectNotFound
	}

	return &project, nil
}

func (r *ProjectRepository) Save(ctx context.Context, project *models.Project) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.persistence.writeEntity(projectKind, project.Code, project)
}
