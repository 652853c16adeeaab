package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

const auditKind = "audit"

// AuditRepository stores audit records as JSON files. It is append-only:
// there is no update or delete method, matching the domain contract.
type AuditRepository struct {
	persistence *Persistence
}

func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var existing models.AuditRecord

	found, err := r.persistence.readEntity(auditKind, record.ID, &existing)
	if err != nil {
		return err
	}

	if found {
		return fmt.Errorf("audit record %s already written, records are immutable", record.ID)
	}

	return r.persistence.writeEntity(auditKind, record.ID, record)
}

// ListByProject returns records for the project ordered by CreatedAt
// ascending, which is the replay order for history reconstruction.
func (r *AuditRepository) ListByProject(ctx context.Context, projectID string) ([]*models.AuditRecord, error) {
	ids, err := r.persistence.listIDs(auditKind)
	if err != nil {
		return nil, err
	}

	var records []*models.AuditRecord

	for _, id := range ids {
		var record models.AuditRecord

		found, err := r.persistence.readEntity(auditKind, id, &record)
		if err != nil {
			return nil, err
		}

		if found && record.ProjectID == projectID {
			records = append(records, &record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}
