// Package staleness invalidates downstream documents when an upstream
// document type produces a new accepted version.
package staleness

import (
	"context"
	"log/slog"

	"github.com/inkwell-ai/inkwell/pkg/lifecycle"
	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

// Propagator walks the static document-type dependency graph and marks
// downstream documents stale through the lifecycle manager, which owns the
// optimistic locking and audit trail for each transition.
type Propagator struct {
	graph     *models.DocTypeGraph
	documents persistence.DocumentRepository
	lifecycle *lifecycle.Manager
	logger    *slog.Logger
}

func NewPropagator(graph *models.DocTypeGraph, documents persistence.DocumentRepository, manager *lifecycle.Manager, logger *slog.Logger) *Propagator {
	return &Propagator{
		graph:     graph,
		documents: documents,
		lifecycle: manager,
		logger:    logger,
	}
}

// Propagate marks every complete or partial document of a type downstream
// of changedType stale, scoped to the given project. Documents that are
// generating or already stale are left alone, so running Propagate twice
// for the same change stales the same set exactly once. Returns the ids of
// documents actually transitioned.
func (p *Propagator) Propagate(ctx context.Context, projectID, changedType string) ([]string, error) {
	var staled []string

	for _, docType := range p.graph.Dependents(changedType) {
		documents, err := p.documents.ListByType(ctx, docType)
		if err != nil {
			return staled, err
		}

		for _, document := range documents {
			if document.ProjectID != projectID || !document.IsLatest {
				continue
			}

			_, changed, err := p.lifecycle.MarkStale(ctx, document.ID, changedType, nil)
			if err != nil {
				return staled, err
			}

			if changed {
				staled = append(staled, document.ID)
			}
		}
	}

	if len(staled) > 0 {
		p.logger.InfoContext(ctx, "Propagated staleness",
			"project_id", projectID,
			"changed_type", changedType,
			"stale_documents", len(staled),
		)
	}

	return staled, nil
}
