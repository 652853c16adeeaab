package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// AuditRepository handles audit ledger database operations. Append-only:
// there is no update or delete, and the schema carries rules rejecting both.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_records (id, project_id, actor_user_id, action, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.ProjectID,
		record.ActorUserID,
		record.Action,
		record.Reason,
		metadataJSON,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	return nil
}

func (r *AuditRepository) ListByProject(ctx context.Context, projectID string) ([]*models.AuditRecord, error) {
	query := `
		SELECT id, project_id, actor_user_id, action, reason, metadata, created_at
		FROM audit_records
		WHERE project_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var records []*models.AuditRecord

	for rows.Next() {
		var (
			record       models.AuditRecord
			actor        sql.NullString
			metadataJSON []byte
		)

		err := rows.Scan(
			&record.ID,
			&record.ProjectID,
			&actor,
			&record.Action,
			&record.Reason,
			&metadataJSON,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}

		if actor.Valid {
			record.ActorUserID = &actor.String
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}
