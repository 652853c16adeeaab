// Package persistence provides the data storage abstraction layer for
// workflow definitions, executions, documents, projects, and audit records.
package persistence

import (
	"context"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// DefinitionRepository stores immutable workflow definition versions.
type DefinitionRepository interface {
	// AcceptedByWorkflowID returns the accepted definition with the highest
	// version for the workflow, or ErrDefinitionNotFound.
	AcceptedByWorkflowID(ctx context.Context, workflowID string) (*models.Definition, error)
	// ByWorkflowVersion returns the exact definition version an execution
	// bound at start, or ErrDefinitionNotFound.
	ByWorkflowVersion(ctx context.Context, workflowID string, version int) (*models.Definition, error)
	Save(ctx context.Context, definition *models.Definition) error
	List(ctx context.Context) ([]*models.Definition, error)
}

// ExecutionRepository stores workflow executions. Update enforces the
// optimistic concurrency contract: a write against a stale RowVersion fails
// with ErrConcurrencyConflict and must be retried with fresh state.
type ExecutionRepository interface {
	GetByID(ctx context.Context, executionID string) (*models.Execution, error)
	Create(ctx context.Context, execution *models.Execution) error
	// Update persists the execution if the stored row still carries
	// expectedVersion, then bumps RowVersion by one.
	Update(ctx context.Context, execution *models.Execution, expectedVersion int) error
	ListByDocument(ctx context.Context, documentID string) ([]*models.Execution, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// DocumentRepository stores document instances under the same optimistic
// concurrency contract as executions.
type DocumentRepository interface {
	GetByID(ctx context.Context, documentID string) (*models.Document, error)
	// Latest returns the single is_latest document for (project, docType,
	// instanceKey), or ErrDocumentNotFound.
	Latest(ctx context.Context, projectID, docTypeID, instanceKey string) (*models.Document, error)
	ListByType(ctx context.Context, docTypeID string) ([]*models.Document, error)
	Create(ctx context.Context, document *models.Document) error
	Update(ctx context.Context, document *models.Document, expectedVersion int) error
	// Delete removes a document. A document with live children fails with
	// ErrOrphanPrevention; callers wanting a cascade must use the reset
	// operation, which deletes children before parents.
	Delete(ctx context.Context, documentID string) error
	ChildrenOf(ctx context.Context, documentID string) ([]*models.Document, error)
}

// AuditRepository is append-only by construction: the interface offers no
// update or delete, and implementations must not grow one.
type AuditRepository interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	// ListByProject returns records ordered by CreatedAt ascending.
	ListByProject(ctx context.Context, projectID string) ([]*models.AuditRecord, error)
}

// ProjectRepository stores the projects that own documents.
type ProjectRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Project, error)
	Save(ctx context.Context, project *models.Project) error
}

// Persistence aggregates the repositories an engine deployment needs.
type Persistence interface {
	Definitions() DefinitionRepository
	Executions() ExecutionRepository
	Documents() DocumentRepository
	Audit() AuditRepository
	Projects() ProjectRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
