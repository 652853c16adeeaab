package file

import (
	"context"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

const documentKind = "documents"

// DocumentRepository stores documents as JSON files keyed by document id.
type DocumentRepository struct {
	persistence *Persistence
}

func (r *DocumentRepository) GetByID(ctx context.Context, documentID string) (*models.Document, error) {
	var document models.Document

	found, err := r.persistence.readEntity(documentKind, documentID, &document)
	if err != nil {
		return nil, persistence.NewDocumentError("GetByID", documentID, err)
	}

	if !found {
		return nil, persistence.NewDocumentError("GetByID", documentID, persistence.ErrDocumentNotFound)
	}

	return &document, nil
}

func (r *DocumentRepository) Latest(ctx context.Context, projectID, docTypeID, instanceKey string) (*models.Document, error) {
	documents, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	for _, document := range documents {
		if document.ProjectID == projectID && document.DocTypeID == docTypeID &&
			document.InstanceKey == instanceKey && document.IsLatest {
			return document, nil
		}
	}

	return nil, persistence.ErrDocumentNotFound
}

func (r *DocumentRepository) ListByType(ctx context.Context, docTypeID string) ([]*models.Document, error) {
	documents, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*models.Document

	for _, document := range documents {
		if document.DocTypeID == docTypeID {
			matched = append(matched, document)
		}
	}

	return matched, nil
}

func (r *DocumentRepository) Create(ctx context.Context, document *models.Document) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var existing models.Document

	found, err := r.persistence.readEntity(documentKind, document.ID, &existing)
	if err != nil {
		return persistence.NewDocumentError("Create", document.ID, err)
	}

	if found {
		return persistence.NewDocumentError("Create", document.ID, persistence.ErrDocumentAlreadyExists)
	}

	return r.persistence.writeEntity(documentKind, document.ID, document)
}

func (r *DocumentRepository) Update(ctx context.Context, document *models.Document, expectedVersion int) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var existing models.Document

	found, err := r.persistence.readEntity(documentKind, document.ID, &existing)
	if err != nil {
		return persistence.NewDocumentError("Update", document.ID, err)
	}

	if !found {
		return persistence.NewDocumentError("Update", document.ID, persistence.ErrDocumentNotFound)
	}

	if existing.RowVersion != expectedVersion {
		return persistence.NewDocumentError("Update", document.ID, persistence.ErrConcurrencyConflict)
	}

	document.RowVersion = expectedVersion + 1

	return r.persistence.writeEntity(documentKind, document.ID, document)
}

// Delete removes a document unless it still owns children. The ownership
// relationship is RESTRICT: callers must delete children first, which the
// cascading reset operation does in order.
func (r *DocumentRepository) Delete(ctx context.Context, documentID string) error {
	children, err := r.ChildrenOf(ctx, documentID)
	if err != nil {
		return err
	}

	if len(children) > 0 {
		return persistence.NewDocumentError("Delete", documentID, persistence.ErrOrphanPrevention)
	}

	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var existing models.Document

	found, err := r.persistence.readEntity(documentKind, documentID, &existing)
	if err != nil {
		return persistence.NewDocumentError("Delete", documentID, err)
	}

	if !found {
		return persistence.NewDocumentError("Delete", documentID, persistence.ErrDocumentNotFound)
	}

	return r.persistence.removeEntity(documentKind, documentID)
}

func (r *DocumentRepository) ChildrenOf(ctx context.Context, documentID string) ([]*models.Document, error) {
	documents, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	var children []*models.Document

	for _, document := range documents {
		if document.ParentDocumentID != nil && *document.ParentDocumentID == documentID {
			children = append(children, document)
		}
	}

	return children, nil
}

func (r *DocumentRepository) list(ctx context.Context) ([]*models.Document, error) {
	ids, err := r.persistence.listIDs(documentKind)
	if err != nil {
		return nil, err
	}

	documents := make([]*models.Document, 0, len(ids))

	for _, id := range ids {
		var document models.Document

		found, err := r.persistence.readEntity(documentKind, id, &document)
		if err != nil {
			return nil, err
		}

		if found {
			documents = append(documents, &document)
		}
	}

	return documents, nil
}
