package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

// foreignKeyViolation is the postgres error class raised when a RESTRICT
// relationship blocks a delete.
const foreignKeyViolation = "23503"

// DocumentRepository handles document database operations.
type DocumentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *DocumentRepository) Create(ctx context.Context, document *models.Document) error {
	query := `
		INSERT INTO documents (
			id, doc_type_id, project_id, parent_document_id, instance_key,
			lifecycle_state, state_changed_at, is_latest, row_version, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		document.ID,
		document.DocTypeID,
		document.ProjectID,
		document.ParentDocumentID,
		document.InstanceKey,
		document.LifecycleState,
		document.StateChangedAt,
		document.IsLatest,
		document.RowVersion,
		document.CreatedAt,
	)
	if err != nil {
		return persistence.NewDocumentError("Create", document.ID, fmt.Errorf("failed to insert document: %w", err))
	}

	return nil
}

func (r *DocumentRepository) Update(ctx context.Context, document *models.Document, expectedVersion int) error {
	query := `
		UPDATE documents SET
			lifecycle_state = $1,
			state_changed_at = $2,
			is_latest = $3,
			row_version = $4
		WHERE id = $5 AND row_version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		document.LifecycleState,
		document.StateChangedAt,
		document.IsLatest,
		expectedVersion+1,
		document.ID,
		expectedVersion,
	)
	if err != nil {
		return persistence.NewDocumentError("Update", document.ID, fmt.Errorf("failed to update document: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewDocumentError("Update", document.ID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if affected == 0 {
		if _, getErr := r.GetByID(ctx, document.ID); getErr != nil {
			return getErr
		}

		return persistence.NewDocumentError("Update", document.ID, persistence.ErrConcurrencyConflict)
	}

	document.RowVersion = expectedVersion + 1

	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, documentID string) (*models.Document, error) {
	query := selectDocument + ` WHERE id = $1`

	document, err := r.scanDocument(r.db.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDocumentError("GetByID", documentID, persistence.ErrDocumentNotFound)
		}

		return nil, persistence.NewDocumentError("GetByID", documentID, err)
	}

	return document, nil
}

func (r *DocumentRepository) Latest(ctx context.Context, projectID, docTypeID, instanceKey string) (*models.Document, error) {
	query := selectDocument + ` WHERE project_id = $1 AND doc_type_id = $2 AND instance_key = $3 AND is_latest`

	document, err := r.scanDocument(r.db.QueryRowContext(ctx, query, projectID, docTypeID, instanceKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDocumentNotFound
		}

		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	return document, nil
}

func (r *DocumentRepository) ListByType(ctx context.Context, docTypeID string) ([]*models.Document, error) {
	query := selectDocument + ` WHERE doc_type_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, docTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var documents []*models.Document

	for rows.Next() {
		document, err := r.scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		documents = append(documents, document)
	}

	return documents, rows.Err()
}

// Delete removes a document. The parent_document_id RESTRICT constraint
// turns deletes of documents with live children into ErrOrphanPrevention.
func (r *DocumentRepository) Delete(ctx context.Context, documentID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return persistence.NewDocumentError("Delete", documentID, persistence.ErrOrphanPrevention)
		}

		return persistence.NewDocumentError("Delete", documentID, fmt.Errorf("failed to delete document: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewDocumentError("Delete", documentID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if affected == 0 {
		return persistence.NewDocumentError("Delete", documentID, persistence.ErrDocumentNotFound)
	}

	return nil
}

func (r *DocumentRepository) ChildrenOf(ctx context.Context, documentID string) ([]*models.Document, error) {
	query := selectDocument + ` WHERE parent_document_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query child documents: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var children []*models.Document

	for rows.Next() {
		child, err := r.scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		children = append(children, child)
	}

	return children, rows.Err()
}

const selectDocument = `
	SELECT id, doc_type_id, project_id, parent_document_id, instance_key,
		   lifecycle_state, state_changed_at, is_latest, row_version, created_at
	FROM documents
`

func (r *DocumentRepository) scanDocument(row rowScanner) (*models.Document, error) {
	var (
		document models.Document
		parentID sql.NullString
	)

	err := row.Scan(
		&document.ID,
		&document.DocTypeID,
		&document.ProjectID,
		&parentID,
		&document.InstanceKey,
		&document.LifecycleState,
		&document.StateChangedAt,
		&document.IsLatest,
		&document.RowVersion,
		&document.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		document.ParentDocumentID = &parentID.String
	}

	return &document, nil
}
