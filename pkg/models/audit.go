package models

import "time"

// AuditAction is the closed set of actions the audit ledger records.
type AuditAction string

const (
	AuditActionCreated             AuditAction = "CREATED"
	AuditActionUpdated             AuditAction = "UPDATED"
	AuditActionArchived            AuditAction = "ARCHIVED"
	AuditActionUnarchived          AuditAction = "UNARCHIVED"
	AuditActionDeleted             AuditAction = "DELETED"
	AuditActionEditBlockedArchived AuditAction = "EDIT_BLOCKED_ARCHIVED"
)

// AuditRecord is one immutable entry in the append-only audit ledger.
// ActorUserID is nil for system-initiated actions. No update or delete path
// exists at the domain layer; history is reconstructed purely by replaying
// records in CreatedAt order.
type AuditRecord struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	ActorUserID *string        `json:"actor_user_id,omitempty"`
	Action      AuditAction    `json:"action"`
	Reason      string         `json:"reason,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
