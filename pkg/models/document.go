package models

import "time"

// LifecycleState is the closed set of document lifecycle states. A document
// with no row has no state at all.
type LifecycleState string

const (
	LifecycleStateGenerating LifecycleState = "generating"
	LifecycleStatePartial    LifecycleState = "partial"
	LifecycleStateComplete   LifecycleState = "complete"
	LifecycleStateStale      LifecycleState = "stale"
)

// Valid reports whether the value is a member of the closed state set.
func (s LifecycleState) Valid() bool {
	switch s {
	case LifecycleStateGenerating, LifecycleStatePartial, LifecycleStateComplete, LifecycleStateStale:
		return true
	default:
		return false
	}
}

// Document is one produced document instance. ParentDocumentID is an
// ownership edge: deleting a parent with live children is blocked (RESTRICT)
// outside the cascading reset operation.
type Document struct {
	ID               string         `json:"id"`
	DocTypeID        string         `json:"doc_type_id"`
	ProjectID        string         `json:"project_id"`
	ParentDocumentID *string        `json:"parent_document_id,omitempty"`
	InstanceKey      string         `json:"instance_key,omitempty"`
	LifecycleState   LifecycleState `json:"lifecycle_state"`
	StateChangedAt   time.Time      `json:"state_changed_at"`
	IsLatest         bool           `json:"is_latest"`
	RowVersion       int            `json:"row_version"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Project owns documents and executions. An archived project rejects all
// mutation; the rejection itself is audited.
type Project struct {
	Code      string    `json:"code" validate:"required"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}
