package models

import "time"

// TerminalOutcome is the write-once final status of a workflow execution.
// The empty value means the execution is still active.
type TerminalOutcome string

const (
	TerminalOutcomeNone      TerminalOutcome = ""
	TerminalOutcomeComplete  TerminalOutcome = "complete"
	TerminalOutcomeFailed    TerminalOutcome = "failed"
	TerminalOutcomeAbandoned TerminalOutcome = "abandoned"
)

// LogEntry is one element of an execution's append-only log. Entries are
// never edited or truncated.
type LogEntry struct {
	NodeID    string        `json:"node_id"`
	EnteredAt time.Time     `json:"entered_at"`
	Outcome   string        `json:"outcome"`
	Duration  time.Duration `json:"duration"`
	Attempt   int           `json:"attempt,omitempty"`
}

// Log entry outcomes written by the engine itself, alongside edge condition
// labels.
const (
	LogOutcomeAttemptStarted = "attempt_started"
	LogOutcomeRetry          = "retry"
	LogOutcomeRetryExhausted = "retry_exhausted"
	LogOutcomeAbandoned      = "abandoned"
	LogOutcomeInputSubmitted = "input_submitted"
)

// PendingInput suspends an execution at a human-approval gate. SchemaRef
// names the docdef schema the submitted payload must satisfy.
type PendingInput struct {
	SchemaRef string         `json:"schema_ref"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Execution is the stateful run of one document through a workflow
// definition. RowVersion implements the optimistic concurrency check: only
// one advance/retry/input submission may land per version.
type Execution struct {
	ID                string          `json:"id"`
	WorkflowID        string          `json:"workflow_id"`
	DefinitionVersion int             `json:"definition_version"`
	DocumentID        string          `json:"document_id"`
	DocumentType      string          `json:"document_type"`
	ProjectID         string          `json:"project_id"`
	UserID            string          `json:"user_id,omitempty"`
	CurrentNodeID     string          `json:"current_node_id"`
	Log               []LogEntry      `json:"log"`
	RetryCounts       map[string]int  `json:"retry_counts"`
	AttemptCounts     map[string]int  `json:"attempt_counts"`
	GateOutcome       string          `json:"gate_outcome,omitempty"`
	TerminalOutcome   TerminalOutcome `json:"terminal_outcome,omitempty"`
	ContextState      ContextState    `json:"context_state"`
	PendingInput      *PendingInput   `json:"pending_input,omitempty"`
	RowVersion        int             `json:"row_version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the execution has reached an absorbing state.
func (e *Execution) IsTerminal() bool {
	return e.TerminalOutcome != TerminalOutcomeNone
}

// AwaitingInput reports whether the execution is suspended at a
// human-approval gate.
func (e *Execution) AwaitingInput() bool {
	return e.PendingInput != nil
}

// AppendLog appends one entry to the execution log. The log is append-only;
// no code path removes or rewrites entries.
func (e *Execution) AppendLog(entry LogEntry) {
	e.Log = append(e.Log, entry)
}

// BumpAttempt increments and returns the monotonic attempt counter for a
// node. Results stamped with an older attempt are stale and discarded.
func (e *Execution) BumpAttempt(nodeID string) int {
	if e.AttemptCounts == nil {
		e.AttemptCounts = make(map[string]int, 1)
	}

	e.AttemptCounts[nodeID]++

	return e.AttemptCounts[nodeID]
}
