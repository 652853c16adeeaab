// Package events defines event types published on execution and document
// lifecycle transitions.
package events

import (
	"time"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

type EventType string

// Bus topics.
const ExecutionTopic = "inkwell.executions" // Execution lifecycle events
const DocumentTopic = "inkwell.documents"   // Document lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	NodeEnteredEvent        EventType = "execution.node.entered"
	NodeCompletedEvent      EventType = "execution.node.completed"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionFinishedEvent  EventType = "execution.finished"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionAbandonedEvent EventType = "execution.abandoned"

	// Document lifecycle events.
	DocumentStateChangedEvent EventType = "document.state.changed"
	DocumentStaleEvent        EventType = "document.stale"
	DocumentsResetEvent       EventType = "document.reset"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	EngineID   string         `json:"engine_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	DocumentID   string `json:"document_id"`
	DocumentType string `json:"document_type"`
	StartNodeID  string `json:"start_node_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type NodeEntered struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	StationID   string `json:"station_id,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
}

func (e NodeEntered) GetType() EventType {
	return NodeEnteredEvent
}

type NodeCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id"`
	Outcome     string        `json:"outcome"`
	Duration    time.Duration `json:"duration"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

// ExecutionSuspended is published when an execution parks at a
// human-approval gate waiting for input.
type ExecutionSuspended struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	SchemaRef   string `json:"schema_ref"`
}

func (e ExecutionSuspended) GetType() EventType {
	return ExecutionSuspendedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionFinished struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	Outcome     models.TerminalOutcome `json:"outcome"`
	NodeID      string                 `json:"node_id"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

// ExecutionFailed is published alongside the generic finished event when an
// execution lands on a failure terminal, typically after retry exhaustion.
type ExecutionFailed struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	RetryCounts map[string]int `json:"retry_counts,omitempty"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionAbandoned struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionAbandoned) GetType() EventType {
	return ExecutionAbandonedEvent
}

type DocumentStateChanged struct {
	BaseEvent

	DocumentID string                `json:"document_id"`
	DocTypeID  string                `json:"doc_type_id"`
	From       models.LifecycleState `json:"from,omitempty"`
	To         models.LifecycleState `json:"to"`
}

func (e DocumentStateChanged) GetType() EventType {
	return DocumentStateChangedEvent
}

// DocumentStale is published for each document the staleness propagator
// invalidates, alongside the generic state change event.
type DocumentStale struct {
	BaseEvent

	DocumentID   string `json:"document_id"`
	DocTypeID    string `json:"doc_type_id"`
	UpstreamType string `json:"upstream_type"`
}

func (e DocumentStale) GetType() EventType {
	return DocumentStaleEvent
}

type DocumentsReset struct {
	BaseEvent

	ProjectID    string `json:"project_id"`
	DocTypeID    string `json:"doc_type_id"`
	InstanceKey  string `json:"instance_key,omitempty"`
	DeletedCount int    `json:"deleted_count"`
}

func (e DocumentsReset) GetType() EventType {
	return DocumentsResetEvent
}
