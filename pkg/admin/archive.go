package admin

import (
	"context"
	"fmt"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// ArchiveProject freezes a project. Archived projects reject every document
// and execution mutation until unarchived; the rejection itself is audited.
// Archiving an already archived project is a no-op.
func (s *Service) ArchiveProject(ctx context.Context, projectCode string, actor *string, reason string) error {
	return s.setArchived(ctx, projectCode, actor, reason, true)
}

// UnarchiveProject lifts the freeze. A no-op when the project is not
// archived.
func (s *Service) UnarchiveProject(ctx context.Context, projectCode string, actor *string, reason string) error {
	return s.setArchived(ctx, projectCode, actor, reason, false)
}

func (s *Service) setArchived(ctx context.Context, projectCode string, actor *string, reason string, archived bool) error {
	project, err := s.persistence.Projects().GetByCode(ctx, projectCode)
	if err != nil {
		return fmt.Errorf("archive %s: %w", projectCode, err)
	}

	if project.Archived == archived {
		return nil
	}

	project.Archived = archived

	if err := s.persistence.Projects().Save(ctx, project); err != nil {
		return fmt.Errorf("failed to save project %s: %w", projectCode, err)
	}

	action := models.AuditActionArchived
	if !archived {
		action = models.AuditActionUnarchived
	}

	if _, err := s.ledger.Write(ctx, action, project.Code, actor, reason, nil); err != nil {
		s.logger.ErrorContext(ctx, "Failed to audit archive change", "project", projectCode, "error", err)
	}

	s.logger.InfoContext(ctx, "Changed project archive state",
		"project", projectCode,
		"archived", archived,
	)

	return nil
}
