// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates no accepted definition exists for the
	// given workflow id.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrExecutionNotFound indicates an execution was not found by id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrDocumentNotFound indicates a document was not found.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrProjectNotFound indicates a project was not found by code.
	ErrProjectNotFound = errors.New("project not found")

	// ErrConcurrencyConflict indicates an optimistic version check failed.
	// The caller retries with fresh state.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")

	// ErrOrphanPrevention indicates a delete was blocked by an ownership
	// relationship. Use the cascading reset operation instead.
	ErrOrphanPrevention = errors.New("delete blocked: document has dependent children, use reset")

	// ErrExecutionAlreadyExists indicates an execution id collision on create.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrDocumentAlreadyExists indicates a document id collision on create.
	ErrDocumentAlreadyExists = errors.New("document already exists")
)

// ExecutionError wraps execution-related errors with operation context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Update")
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// DocumentError wraps document-related errors with operation context.
type DocumentError struct {
	Op         string
	DocumentID string
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s operation failed for document %s: %v", e.Op, e.DocumentID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

func (e *DocumentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDocumentError creates a new document error with context.
func NewDocumentError(op, documentID string, err error) *DocumentError {
	return &DocumentError{Op: op, DocumentID: documentID, Err: err}
}

// IsConcurrencyConflict checks if an error indicates a failed optimistic
// version check.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrProjectNotFound)
}
