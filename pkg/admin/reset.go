// Package admin implements operator-facing maintenance operations. Reset is
// the only code path that hard-deletes documents, and it deletes children
// before parents so the RESTRICT constraint never fires mid-cascade.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/audit"
	"github.com/inkwell-ai/inkwell/pkg/eventbus"
	"github.com/inkwell-ai/inkwell/pkg/events"
	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

// Service performs administrative resets against the persistence layer.
type Service struct {
	persistence persistence.Persistence
	ledger      *audit.Ledger
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewService(p persistence.Persistence, ledger *audit.Ledger, publisher eventbus.EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		ledger:      ledger,
		publisher:   publisher,
		logger:      logger,
	}
}

// Reset deletes the latest document of the given type and instance key in
// the project, its ownership subtree, and every execution attached to those
// documents, so production can be re-triggered from scratch. It fails loudly
// when the project or the document does not exist. Every deletion is
// audited.
func (s *Service) Reset(ctx context.Context, projectCode, docTypeID, instanceKey string, actor *string) (int, error) {
	project, err := s.persistence.Projects().GetByCode(ctx, projectCode)
	if err != nil {
		return 0, fmt.Errorf("reset %s/%s: %w", projectCode, docTypeID, err)
	}

	document, err := s.persistence.Documents().Latest(ctx, project.Code, docTypeID, instanceKey)
	if err != nil {
		return 0, fmt.Errorf("reset %s/%s: %w", projectCode, docTypeID, err)
	}

	ordered, err := s.deletionOrder(ctx, document)
	if err != nil {
		return 0, err
	}

	for _, doc := range ordered {
		if err := s.persistence.Executions().DeleteByDocument(ctx, doc.ID); err != nil {
			return 0, fmt.Errorf("failed to delete executions of document %s: %w", doc.ID, err)
		}

		if err := s.persistence.Documents().Delete(ctx, doc.ID); err != nil {
			return 0, fmt.Errorf("failed to delete document %s: %w", doc.ID, err)
		}

		if _, err := s.ledger.Write(ctx, models.AuditActionDeleted, project.Code, actor, "document reset", map[string]any{
			"document_id": doc.ID,
			"doc_type_id": doc.DocTypeID,
		}); err != nil {
			s.logger.ErrorContext(ctx, "Failed to audit reset deletion", "document_id", doc.ID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Reset documents",
		"project", projectCode,
		"doc_type", docTypeID,
		"deleted", len(ordered),
	)

	if s.publisher != nil {
		event := events.DocumentsReset{
			BaseEvent: events.BaseEvent{
				ID:        uuid.New().String(),
				Type:      events.DocumentsResetEvent,
				Timestamp: time.Now().UTC(),
			},
			ProjectID:    project.Code,
			DocTypeID:    docTypeID,
			InstanceKey:  instanceKey,
			DeletedCount: len(ordered),
		}
		if err := s.publisher.Publish(ctx, document.ID, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish reset event", "error", err)
		}
	}

	return len(ordered), nil
}

// deletionOrder returns the ownership subtree rooted at document with
// children strictly before their parents.
func (s *Service) deletionOrder(ctx context.Context, document *models.Document) ([]*models.Document, error) {
	var ordered []*models.Document

	var walk func(doc *models.Document) error

	walk = func(doc *models.Document) error {
		children, err := s.persistence.Documents().ChildrenOf(ctx, doc.ID)
		if err != nil {
			return err
		}

		for _, child := range children {
			if err := walk(child); err != nil {
				return err
			}
		}

		ordered = append(ordered, doc)

		return nil
	}

	if err := walk(document); err != nil {
		return nil, err
	}

	return ordered, nil
}
