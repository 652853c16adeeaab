// Package lifecycle owns document lifecycle state. All transitions go
// through the Manager, which enforces the legal transition set, the
// archived-project guard, and the optimistic concurrency contract.
package lifecycle

import (
	"context"
	"errors"
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

var (
	// ErrIllegalStateTransition is returned when a requested transition is
	// not in the legal set.
	ErrIllegalStateTransition = errors.New("illegal lifecycle state transition")
	// ErrProjectArchived is returned when a mutation targets a document
	// whose project is archived. The rejection is itself audited.
	ErrProjectArchived = errors.New("project is archived")
)

// conflictRetries bounds re-reads on optimistic lock conflicts.
const conflictRetries = 3

// Manager drives documents through generating, partial, complete, and
// stale. required maps doc type id to the section names an artifact must
// carry before the document may be marked complete.
type Manager struct {
	persistence persistence.Persistence
	ledger      *audit.Ledger
	publisher   eventbus.EventPublisher
	required    map[string][]string
	logger      *slog.Logger
}

func NewManager(p persistence.Persistence, ledger *audit.Ledger, publisher eventbus.EventPublisher, requiredSections map[string][]string, logger *slog.Logger) *Manager {
	return &Manager{
		persistence: p,
		ledger:      ledger,
		publisher:   publisher,
		required:    requiredSections,
		logger:      logger,
	}
}

// canTransition is the single source of truth for the legal transition set.
// Regeneration always re-enters generating; stale is never cleared in place.
func canTransition(from, to models.LifecycleState) bool {
	switch from {
	case models.LifecycleStateGenerating:
		return to == models.LifecycleStatePartial || to == models.LifecycleStateComplete
	case models.LifecycleStatePartial:
		return to == models.LifecycleStateStale
	case models.LifecycleStateComplete:
		return to == models.LifecycleStateStale
	case models.LifecycleStateStale:
		return to == models.LifecycleStateGenerating
	default:
		return false
	}
}

// BeginGeneration creates a new document instance in the generating state.
// Any previous latest instance for (project, docType, instanceKey) loses
// is_latest; the stale flag on old instances is never cleared in place.
func (m *Manager) BeginGeneration(ctx context.Context, projectID, docTypeID, instanceKey string, parentID *string, actor *string) (*models.Document, error) {
	if err := m.guardArchived(ctx, projectID, actor, "begin_generation"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if previous, err := m.persistence.Documents().Latest(ctx, projectID, docTypeID, instanceKey); err == nil {
		previousVersion := previous.RowVersion
		previous.IsLatest = false

		if err := m.persistence.Documents().Update(ctx, previous, previousVersion); err != nil {
			return nil, fmt.Errorf("failed to unlatch previous %s document: %w", docTypeID, err)
		}
	} else if !errors.Is(err, persistence.ErrDocumentNotFound) {
		return nil, err
	}

	document := &models.Document{
		ID:               "doc-" + uuid.New().String()[:8],
		DocTypeID:        docTypeID,
		ProjectID:        projectID,
		ParentDocumentID: parentID,
		InstanceKey:      instanceKey,
		LifecycleState:   models.LifecycleStateGenerating,
		StateChangedAt:   now,
		IsLatest:         true,
		RowVersion:       1,
		CreatedAt:        now,
	}

	if err := m.persistence.Documents().Create(ctx, document); err != nil {
		return nil, err
	}

	m.audit(ctx, models.AuditActionCreated, document, actor, "document generation started", nil)
	m.publishStateChanged(ctx, document, "")

	return document, nil
}

// Regenerate re-enters generating from stale. This is the only way out of
// stale.
func (m *Manager) Regenerate(ctx context.Context, documentID string, actor *string) (*models.Document, error) {
	return m.transition(ctx, documentID, models.LifecycleStateGenerating, actor, "document regeneration started", nil)
}

// CompleteGeneration transitions a generating document to complete when
// every section the doc type requires is present in the artifact, and to
// partial otherwise. A partial document is never completed in place; the
// missing sections arrive through a new generation cycle.
func (m *Manager) CompleteGeneration(ctx context.Context, documentID string, artifact map[string]any, actor *string) (*models.Document, error) {
	target := models.LifecycleStateComplete

	var missing []string

	for _, section := range m.requiredFor(ctx, documentID) {
		if _, present := artifact[section]; !present {
			missing = append(missing, section)
		}
	}

	if len(missing) > 0 {
		target = models.LifecycleStatePartial
	}

	metadata := map[string]any{}
	if len(missing) > 0 {
		metadata["missing_sections"] = missing
	}

	return m.transition(ctx, documentID, target, actor, "document generation finished", metadata)
}

// MarkStale transitions a complete or partial document to stale because an
// upstream dependency changed. Generating and already-stale documents are
// left untouched, which makes propagation idempotent.
func (m *Manager) MarkStale(ctx context.Context, documentID, upstreamType string, actor *string) (*models.Document, bool, error) {
	document, err := m.persistence.Documents().GetByID(ctx, documentID)
	if err != nil {
		return nil, false, err
	}

	switch document.LifecycleState {
	case models.LifecycleStateGenerating, models.LifecycleStateStale:
		return document, false, nil
	case models.LifecycleStatePartial, models.LifecycleStateComplete:
	default:
		return nil, false, fmt.Errorf("document %s in unknown state %q: %w", documentID, document.LifecycleState, ErrIllegalStateTransition)
	}

	updated, err := m.transition(ctx, documentID, models.LifecycleStateStale, actor,
		"upstream dependency changed", map[string]any{"upstream_type": upstreamType})
	if err != nil {
		return nil, false, err
	}

	m.publish(ctx, updated.ID, events.DocumentStale{
		BaseEvent:    m.baseEvent(events.DocumentStaleEvent),
		DocumentID:   updated.ID,
		DocTypeID:    updated.DocTypeID,
		UpstreamType: upstreamType,
	})

	return updated, true, nil
}

// transition performs one audited state change under the per-document
// optimistic lock, re-reading and retrying a bounded number of times when a
// concurrent writer wins.
func (m *Manager) transition(ctx context.Context, documentID string, to models.LifecycleState, actor *string, reason string, metadata map[string]any) (*models.Document, error) {
	var lastErr error

	for attempt := 0; attempt < conflictRetries; attempt++ {
		document, err := m.persistence.Documents().GetByID(ctx, documentID)
		if err != nil {
			return nil, err
		}

		if err := m.guardArchived(ctx, document.ProjectID, actor, string(to)); err != nil {
			return nil, err
		}

		from := document.LifecycleState
		if from == to {
			return document, nil
		}

		if !canTransition(from, to) {
			return nil, fmt.Errorf("document %s cannot move %s -> %s: %w", documentID, from, to, ErrIllegalStateTransition)
		}

		loadedVersion := document.RowVersion
		document.LifecycleState = to
		document.StateChangedAt = time.Now().UTC()

		err = m.persistence.Documents().Update(ctx, document, loadedVersion)
		if err == nil {
			if metadata == nil {
				metadata = map[string]any{}
			}

			metadata["from"] = string(from)
			metadata["to"] = string(to)

			m.audit(ctx, models.AuditActionUpdated, document, actor, reason, metadata)
			m.publishStateChanged(ctx, document, from)

			return document, nil
		}

		if !persistence.IsConcurrencyConflict(err) {
			return nil, err
		}

		lastErr = err

		m.logger.WarnContext(ctx, "Lifecycle transition lost optimistic lock, retrying",
			"document_id", documentID,
			"to", to,
			"attempt", attempt+1,
		)
	}

	return nil, fmt.Errorf("document %s transition to %s kept conflicting: %w", documentID, to, lastErr)
}

// guardArchived rejects mutations on archived projects and records the
// rejection in the audit ledger.
func (m *Manager) guardArchived(ctx context.Context, projectID string, actor *string, attempted string) error {
	project, err := m.persistence.Projects().GetByCode(ctx, projectID)
	if err != nil {
		if errors.Is(err, persistence.ErrProjectNotFound) {
			return nil
		}

		return err
	}

	if !project.Archived {
		return nil
	}

	if _, err := m.ledger.WriteEditBlocked(ctx, projectID, actor, attempted); err != nil {
		m.logger.ErrorContext(ctx, "Failed to audit blocked edit", "project_id", projectID, "error", err)
	}

	return fmt.Errorf("project %s: %w", projectID, ErrProjectArchived)
}

func (m *Manager) requiredFor(ctx context.Context, documentID string) []string {
	document, err := m.persistence.Documents().GetByID(ctx, documentID)
	if err != nil {
		return nil
	}

	return m.required[document.DocTypeID]
}

func (m *Manager) audit(ctx context.Context, action models.AuditAction, document *models.Document, actor *string, reason string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	metadata["document_id"] = document.ID
	metadata["doc_type_id"] = document.DocTypeID

	if _, err := m.ledger.Write(ctx, action, document.ProjectID, actor, reason, metadata); err != nil {
		m.logger.ErrorContext(ctx, "Failed to append audit record",
			"document_id", document.ID,
			"action", action,
			"error", err,
		)
	}
}

func (m *Manager) publishStateChanged(ctx context.Context, document *models.Document, from models.LifecycleState) {
	m.publish(ctx, document.ID, events.DocumentStateChanged{
		BaseEvent:  m.baseEvent(events.DocumentStateChangedEvent),
		DocumentID: document.ID,
		DocTypeID:  document.DocTypeID,
		From:       from,
		To:         document.LifecycleState,
	})
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, key, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

func (m *Manager) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}
