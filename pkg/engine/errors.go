// Package engine implements the workflow execution engine: it walks a bound
// definition graph per document, evaluating gates, counting retries, and
// recording every transition durably before acting on it.
package engine

import (
	"errors"
	"fmt"

	"github.com/inkwell-ai/inkwell/pkg/schema"
)

// Engine error taxonomy. Terminal outcomes, retry exhaustion included, are
// never errors: they come back as normal terminal executions.
var (
	// ErrExecutionTerminal indicates advance, retry, or input submission was
	// called on an execution whose terminal outcome is already set.
	ErrExecutionTerminal = errors.New("execution already terminal")

	// ErrIllegalTransition indicates caller misuse: no matching edge, a
	// retry on a node without a retry policy, or similar. Not retried.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrAwaitingInput indicates the execution is suspended at a
	// human-approval gate; only SubmitUserInput may move it.
	ErrAwaitingInput = errors.New("execution suspended awaiting user input")

	// ErrNoPendingInput indicates SubmitUserInput was called while no input
	// was pending.
	ErrNoPendingInput = errors.New("no pending user input")

	// ErrStaleAttempt indicates a generation result arrived for an attempt
	// the execution has already moved past. The result is discarded.
	ErrStaleAttempt = errors.New("stale generation attempt discarded")

	// ErrGateEvaluation indicates malformed gating rule configuration.
	// Fatal, surfaced, never retried.
	ErrGateEvaluation = errors.New("gate evaluation failed")

	// ErrSchemaValidation indicates a payload failed docdef schema
	// validation. The execution stays where it was for correction.
	ErrSchemaValidation = errors.New("schema validation failed")
)

// GateEvaluationError pinpoints the node and rule that could not be
// evaluated.
type GateEvaluationError struct {
	NodeID string
	Reason string
}

func (e *GateEvaluationError) Error() string {
	return fmt.Sprintf("gate evaluation failed at node %s: %s", e.NodeID, e.Reason)
}

func (e *GateEvaluationError) Is(target error) bool {
	return target == ErrGateEvaluation
}

// SchemaValidationError wraps the schema registry's validation detail so
// callers can surface per-field violations.
type SchemaValidationError struct {
	Err *schema.ValidationError
}

func (e *SchemaValidationError) Error() string {
	return e.Err.Error()
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Err
}

func (e *SchemaValidationError) Is(target error) bool {
	return target == ErrSchemaValidation
}
