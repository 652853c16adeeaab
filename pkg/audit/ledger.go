// Package audit provides the append-only audit ledger. Records are
// immutable once written; reconstructing history is done purely by
// replaying records in creation order.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

// Ledger writes and replays audit records. It never reads-modifies-writes:
// the only write path is an append of a freshly minted record.
type Ledger struct {
	repository persistence.AuditRepository
	logger     *slog.Logger
}

// NewLedger creates a ledger over the given repository.
func NewLedger(repository persistence.AuditRepository, logger *slog.Logger) *Ledger {
	return &Ledger{repository: repository, logger: logger}
}

// Write appends one record. actor is nil for system-initiated actions.
func (l *Ledger) Write(ctx context.Context, action models.AuditAction, projectID string, actor *string, reason string, metadata map[string]any) (*models.AuditRecord, error) {
	record := &models.AuditRecord{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		ActorUserID: actor,
		Action:      action,
		Reason:      reason,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}

	if err := l.repository.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append audit record: %w", err)
	}

	l.logger.DebugContext(ctx, "Appended audit record",
		"audit_id", record.ID,
		"project_id", projectID,
		"action", action,
	)

	return record, nil
}

// WriteEditBlocked records a mutation rejected because the owning project is
// archived. The rejection is itself an audit event, never discarded
// silently.
func (l *Ledger) WriteEditBlocked(ctx context.Context, projectID string, actor *string, attempted string) (*models.AuditRecord, error) {
	return l.Write(ctx, models.AuditActionEditBlockedArchived, projectID, actor,
		"mutation rejected: project is archived",
		map[string]any{"attempted_action": attempted},
	)
}

// History replays every record for a project in CreatedAt order.
func (l *Ledger) History(ctx context.Context, projectID string) ([]*models.AuditRecord, error) {
	records, err := l.repository.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to replay audit history: %w", err)
	}

	return records, nil
}
