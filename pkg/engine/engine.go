package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/audit"
	"github.com/inkwell-ai/inkwell/pkg/eventbus"
	"github.com/inkwell-ai/inkwell/pkg/events"
	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
	"github.com/inkwell-ai/inkwell/pkg/schema"
)

// Engine drives workflow executions through their bound definition graphs.
// Every state change is persisted through the optimistic concurrency
// contract before it is acted upon, so a crashed process resumes from the
// stored row with nothing lost.
type Engine struct {
	persistence persistence.Persistence
	schemas     *schema.Registry
	ledger      *audit.Ledger
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// New creates an engine. publisher may be nil when no event transport is
// configured; everything else is required.
func New(p persistence.Persistence, schemas *schema.Registry, ledger *audit.Ledger, publisher eventbus.EventPublisher, logger *slog.Logger) *Engine {
	return &Engine{
		persistence: p,
		schemas:     schemas,
		ledger:      ledger,
		publisher:   publisher,
		logger:      logger,
	}
}

// StartRequest binds a new execution to a document and workflow.
type StartRequest struct {
	WorkflowID   string
	DocumentID   string
	DocumentType string
	ProjectID    string
	UserID       string
	// InitialContext seeds the context state, typically with intake data.
	InitialContext map[string]any
}

// Start binds the latest accepted definition version and creates the
// execution at the definition's start node. No log entry is appended until
// the first node completes.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.Execution, error) {
	definition, err := e.persistence.Definitions().AcceptedByWorkflowID(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to bind definition for workflow %s: %w", req.WorkflowID, err)
	}

	if err := definition.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	execution := &models.Execution{
		ID:                "exec-" + uuid.New().String()[:8],
		WorkflowID:        req.WorkflowID,
		DefinitionVersion: definition.Version,
		DocumentID:        req.DocumentID,
		DocumentType:      req.DocumentType,
		ProjectID:         req.ProjectID,
		UserID:            req.UserID,
		CurrentNodeID:     definition.StartNode().ID,
		RetryCounts:       make(map[string]int),
		AttemptCounts:     make(map[string]int),
		ContextState:      models.NewContextState(e.schemas.BundleHash(), req.InitialContext),
		RowVersion:        1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := e.persistence.Executions().Create(ctx, execution); err != nil {
		return nil, err
	}

	e.audit(ctx, models.AuditActionCreated, execution, "execution started", map[string]any{
		"execution_id": execution.ID,
		"document_id":  execution.DocumentID,
		"workflow_id":  execution.WorkflowID,
	})

	e.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:    e.baseEvent(events.ExecutionStartedEvent, execution.WorkflowID),
		ExecutionID:  execution.ID,
		DocumentID:   execution.DocumentID,
		DocumentType: execution.DocumentType,
		StartNodeID:  execution.CurrentNodeID,
	})

	e.logger.InfoContext(ctx, "Started execution",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"document_id", execution.DocumentID,
		"start_node", execution.CurrentNodeID,
	)

	return execution, nil
}

// Advance evaluates the current node's outgoing edges against the node
// result and moves the execution along the chosen edge. Arriving at a
// terminal node sets the terminal outcome and freezes the execution;
// arriving at a human-approval gate suspends it.
func (e *Engine) Advance(ctx context.Context, executionID string, result models.NodeResult) (*models.Execution, error) {
	execution, definition, err := e.load(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.IsTerminal() {
		return nil, fmt.Errorf("cannot advance execution %s: %w", executionID, ErrExecutionTerminal)
	}

	if execution.AwaitingInput() {
		return nil, fmt.Errorf("cannot advance execution %s: %w", executionID, ErrAwaitingInput)
	}

	loadedVersion := execution.RowVersion

	outcome, err := e.applyAdvance(execution, definition, result)
	if err != nil {
		return nil, err
	}

	if err := e.persistence.Executions().Update(ctx, execution, loadedVersion); err != nil {
		return nil, err
	}

	e.announceAdvance(ctx, execution, outcome)

	return execution, nil
}

// Retry re-enters the current node for another attempt, or forces the
// execution into the node's designated failure terminal when the retry
// policy is used up. Retry exhaustion is a normal terminal outcome, not an
// error.
func (e *Engine) Retry(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, definition, err := e.load(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.IsTerminal() {
		return nil, fmt.Errorf("cannot retry execution %s: %w", executionID, ErrExecutionTerminal)
	}

	if execution.AwaitingInput() {
		return nil, fmt.Errorf("cannot retry suspended execution %s: %w", executionID, ErrIllegalTransition)
	}

	node := definition.NodeByID(execution.CurrentNodeID)
	if node == nil {
		return nil, fmt.Errorf("current node %s missing from definition: %w", execution.CurrentNodeID, models.ErrInvalidDefinition)
	}

	if node.RetryPolicy == nil {
		return nil, fmt.Errorf("node %s has no retry policy: %w", node.ID, ErrIllegalTransition)
	}

	loadedVersion := execution.RowVersion
	now := time.Now().UTC()

	execution.RetryCounts[node.ID]++
	execution.UpdatedAt = now

	exhausted := execution.RetryCounts[node.ID] >= node.RetryPolicy.MaxAttempts
	if exhausted {
		if err := e.forceFailure(execution, definition, node); err != nil {
			return nil, err
		}
	} else {
		execution.AppendLog(models.LogEntry{
			NodeID:    node.ID,
			EnteredAt: now,
			Outcome:   models.LogOutcomeRetry,
			Attempt:   execution.RetryCounts[node.ID],
		})
	}

	if err := e.persistence.Executions().Update(ctx, execution, loadedVersion); err != nil {
		return nil, err
	}

	if exhausted {
		e.audit(ctx, models.AuditActionUpdated, execution, "retry policy exhausted", map[string]any{
			"execution_id": execution.ID,
			"node_id":      node.ID,
			"retry_count":  execution.RetryCounts[node.ID],
		})
		e.publish(ctx, execution.ID, events.ExecutionFinished{
			BaseEvent:   e.baseEvent(events.ExecutionFinishedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			Outcome:     execution.TerminalOutcome,
			NodeID:      execution.CurrentNodeID,
		})
		e.publish(ctx, execution.ID, events.ExecutionFailed{
			BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			NodeID:      execution.CurrentNodeID,
			RetryCounts: execution.RetryCounts,
		})
	} else {
		e.publish(ctx, execution.ID, events.NodeEntered{
			BaseEvent:   e.baseEvent(events.NodeEnteredEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			StationID:   node.Station.ID,
			Attempt:     execution.RetryCounts[node.ID],
		})
	}

	return execution, nil
}

// BeginAttempt durably records that a generation attempt is about to be
// invoked: the attempt counter is bumped and an attempt-in-progress log
// entry is persisted before any external call is made. Recovery after a
// crash resumes from this row.
func (e *Engine) BeginAttempt(ctx context.Context, executionID string) (*models.Execution, *models.Node, int, error) {
	execution, definition, err := e.load(ctx, executionID)
	if err != nil {
		return nil, nil, 0, err
	}

	if execution.IsTerminal() {
		return nil, nil, 0, fmt.Errorf("cannot begin attempt on execution %s: %w", executionID, ErrExecutionTerminal)
	}

	if execution.AwaitingInput() {
		return nil, nil, 0, fmt.Errorf("cannot begin attempt on suspended execution %s: %w", executionID, ErrAwaitingInput)
	}

	node := definition.NodeByID(execution.CurrentNodeID)
	if node == nil {
		return nil, nil, 0, fmt.Errorf("current node %s missing from definition: %w", execution.CurrentNodeID, models.ErrInvalidDefinition)
	}

	if node.Type != models.NodeTypeGeneration {
		return nil, nil, 0, fmt.Errorf("node %s is not a generation node: %w", node.ID, ErrIllegalTransition)
	}

	loadedVersion := execution.RowVersion
	now := time.Now().UTC()
	attempt := execution.BumpAttempt(node.ID)

	execution.AppendLog(models.LogEntry{
		NodeID:    node.ID,
		EnteredAt: now,
		Outcome:   models.LogOutcomeAttemptStarted,
		Attempt:   attempt,
	})
	execution.UpdatedAt = now

	if err := e.persistence.Executions().Update(ctx, execution, loadedVersion); err != nil {
		return nil, nil, 0, err
	}

	return execution, node, attempt, nil
}

// SubmitUserInput resolves a suspended human-approval gate: the payload is
// validated against the pending schema ref, merged into context state, and
// the execution advances. A validation failure leaves the execution
// suspended for correction.
func (e *Engine) SubmitUserInput(ctx context.Context, executionID string, payload map[string]any) (*models.Execution, error) {
	execution, definition, err := e.load(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.IsTerminal() {
		return nil, fmt.Errorf("cannot submit input to execution %s: %w", executionID, ErrExecutionTerminal)
	}

	if !execution.AwaitingInput() {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNoPendingInput)
	}

	if err := e.validatePayload(execution.PendingInput.SchemaRef, payload); err != nil {
		return nil, err
	}

	loadedVersion := execution.RowVersion
	now := time.Now().UTC()

	for key, value := range payload {
		execution.ContextState.Set(key, value)
	}

	execution.AppendLog(models.LogEntry{
		NodeID:    execution.CurrentNodeID,
		EnteredAt: now,
		Outcome:   models.LogOutcomeInputSubmitted,
	})
	execution.PendingInput = nil

	result := models.NodeResult{
		NodeID:      execution.CurrentNodeID,
		Status:      models.NodeStatusSuccess,
		Data:        payload,
		CompletedAt: now,
	}

	outcome, err := e.applyAdvance(execution, definition, result)
	if err != nil {
		return nil, err
	}

	if err := e.persistence.Executions().Update(ctx, execution, loadedVersion); err != nil {
		return nil, err
	}

	e.publish(ctx, execution.ID, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		NodeID:      outcome.fromNodeID,
	})
	e.announceAdvance(ctx, execution, outcome)

	return execution, nil
}

// Abandon marks the execution terminal from any non-terminal state.
// Idempotent: abandoning a terminal execution returns it unchanged. Any
// outstanding generation call is not cancelled; its late result is
// discarded by the stale-attempt check.
func (e *Engine) Abandon(ctx context.Context, executionID string, reason string) (*models.Execution, error) {
	execution, _, err := e.load(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.IsTerminal() {
		return execution, nil
	}

	loadedVersion := execution.RowVersion
	now := time.Now().UTC()

	execution.TerminalOutcome = models.TerminalOutcomeAbandoned
	execution.PendingInput = nil
	execution.AppendLog(models.LogEntry{
		NodeID:    execution.CurrentNodeID,
		EnteredAt: now,
		Outcome:   models.LogOutcomeAbandoned,
	})
	execution.UpdatedAt = now
	execution.CompletedAt = &now

	if err := e.persistence.Executions().Update(ctx, execution, loadedVersion); err != nil {
		return nil, err
	}

	e.audit(ctx, models.AuditActionUpdated, execution, "execution abandoned: "+reason, map[string]any{
		"execution_id": execution.ID,
	})
	e.publish(ctx, execution.ID, events.ExecutionAbandoned{
		BaseEvent:   e.baseEvent(events.ExecutionAbandonedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Reason:      reason,
	})

	return execution, nil
}

// Get returns an execution by id.
func (e *Engine) Get(ctx context.Context, executionID string) (*models.Execution, error) {
	return e.persistence.Executions().GetByID(ctx, executionID)
}

// CurrentNode returns the execution together with the node it is
// currently parked at in its bound definition version.
func (e *Engine) CurrentNode(ctx context.Context, executionID string) (*models.Execution, *models.Node, error) {
	execution, definition, err := e.load(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}

	node := definition.NodeByID(execution.CurrentNodeID)
	if node == nil {
		return nil, nil, fmt.Errorf("current node %s missing from definition: %w", execution.CurrentNodeID, models.ErrInvalidDefinition)
	}

	return execution, node, nil
}

// advanceOutcome captures what applyAdvance did, for post-save events.
type advanceOutcome struct {
	fromNodeID string
	toNode     *models.Node
	edge       *models.Edge
	duration   time.Duration
	exhausted  bool
}

// applyAdvance mutates the in-memory execution; the caller persists it in
// one optimistic write so the whole transition is atomic.
func (e *Engine) applyAdvance(execution *models.Execution, definition *models.Definition, result models.NodeResult) (*advanceOutcome, error) {
	node := definition.NodeByID(execution.CurrentNodeID)
	if node == nil {
		return nil, fmt.Errorf("current node %s missing from definition: %w", execution.CurrentNodeID, models.ErrInvalidDefinition)
	}

	if err := e.checkAttempt(execution, node, result); err != nil {
		return nil, err
	}

	if node.Type == models.NodeTypeGate && node.GateKind != models.GateKindApproval && node.InputSchemaRef != "" {
		if err := e.validatePayload(node.InputSchemaRef, result.Data); err != nil {
			return nil, err
		}
	}

	edge, err := chooseEdge(definition, node, result, execution.ContextState)
	if err != nil {
		if errors.Is(err, errNoMatchingEdge) {
			return nil, fmt.Errorf("no edge matches at node %s: %w", node.ID, ErrIllegalTransition)
		}

		return nil, err
	}

	target := definition.NodeByID(edge.To)
	now := time.Now().UTC()
	enteredAt := execution.UpdatedAt
	duration := now.Sub(enteredAt)

	outcome := &advanceOutcome{fromNodeID: node.ID, edge: edge, duration: duration}

	execution.AppendLog(models.LogEntry{
		NodeID:    node.ID,
		EnteredAt: enteredAt,
		Outcome:   edge.Condition,
		Duration:  duration,
		Attempt:   execution.AttemptCounts[node.ID],
	})

	if node.Type == models.NodeTypeGate {
		execution.GateOutcome = edge.Condition
	}

	execution.ContextState.Apply(node, result)
	execution.UpdatedAt = now

	// Re-entering a remediation node consumes one attempt of its retry
	// policy; using up the policy forces the designated failure terminal.
	if target.RetryPolicy != nil {
		execution.RetryCounts[target.ID]++

		if execution.RetryCounts[target.ID] >= target.RetryPolicy.MaxAttempts {
			outcome.exhausted = true

			if err := e.forceFailure(execution, definition, target); err != nil {
				return nil, err
			}

			outcome.toNode = definition.NodeByID(execution.CurrentNodeID)

			return outcome, nil
		}
	}

	execution.CurrentNodeID = target.ID
	outcome.toNode = target

	switch {
	case target.IsTerminal():
		execution.TerminalOutcome = target.Outcome
		execution.CompletedAt = &now
	case target.IsApprovalGate():
		execution.PendingInput = &models.PendingInput{SchemaRef: target.InputSchemaRef}
	}

	return outcome, nil
}

// forceFailure transitions into the retry policy's failure terminal node.
func (e *Engine) forceFailure(execution *models.Execution, definition *models.Definition, node *models.Node) error {
	failure := definition.NodeByID(node.RetryPolicy.FailureNodeID)
	if failure == nil || !failure.IsTerminal() {
		return fmt.Errorf("retry policy of node %s targets invalid failure node %s: %w",
			node.ID, node.RetryPolicy.FailureNodeID, models.ErrInvalidDefinition)
	}

	now := time.Now().UTC()

	execution.AppendLog(models.LogEntry{
		NodeID:    node.ID,
		EnteredAt: now,
		Outcome:   models.LogOutcomeRetryExhausted,
		Attempt:   execution.RetryCounts[node.ID],
	})
	execution.CurrentNodeID = failure.ID
	execution.TerminalOutcome = failure.Outcome
	execution.UpdatedAt = now
	execution.CompletedAt = &now

	return nil
}

// checkAttempt discards results from superseded attempts: a late response
// from a retried call must not overwrite state the execution has already
// moved past.
func (e *Engine) checkAttempt(execution *models.Execution, node *models.Node, result models.NodeResult) error {
	if result.NodeID != "" && result.NodeID != node.ID {
		return fmt.Errorf("result for node %s but execution is at %s: %w", result.NodeID, node.ID, ErrStaleAttempt)
	}

	if result.Attempt > 0 && result.Attempt != execution.AttemptCounts[node.ID] {
		return fmt.Errorf("result for attempt %d but current attempt is %d: %w",
			result.Attempt, execution.AttemptCounts[node.ID], ErrStaleAttempt)
	}

	return nil
}

func (e *Engine) validatePayload(schemaRef string, payload map[string]any) error {
	if schemaRef == "" {
		return nil
	}

	err := e.schemas.Validate(schemaRef, payload)
	if err == nil {
		return nil
	}

	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		return &SchemaValidationError{Err: validationErr}
	}

	return err
}

func (e *Engine) load(ctx context.Context, executionID string) (*models.Execution, *models.Definition, error) {
	execution, err := e.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}

	definition, err := e.persistence.Definitions().ByWorkflowVersion(ctx, execution.WorkflowID, execution.DefinitionVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load bound definition for execution %s: %w", executionID, err)
	}

	return execution, definition, nil
}

func (e *Engine) announceAdvance(ctx context.Context, execution *models.Execution, outcome *advanceOutcome) {
	e.audit(ctx, models.AuditActionUpdated, execution, "execution advanced", map[string]any{
		"execution_id": execution.ID,
		"from_node":    outcome.fromNodeID,
		"to_node":      execution.CurrentNodeID,
		"edge":         outcome.edge.Condition,
	})

	e.publish(ctx, execution.ID, events.NodeCompleted{
		BaseEvent:   e.baseEvent(events.NodeCompletedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		NodeID:      outcome.fromNodeID,
		Outcome:     outcome.edge.Condition,
		Duration:    outcome.duration,
	})

	switch {
	case execution.IsTerminal():
		e.publish(ctx, execution.ID, events.ExecutionFinished{
			BaseEvent:   e.baseEvent(events.ExecutionFinishedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			Outcome:     execution.TerminalOutcome,
			NodeID:      execution.CurrentNodeID,
		})

		if execution.TerminalOutcome == models.TerminalOutcomeFailed {
			e.publish(ctx, execution.ID, events.ExecutionFailed{
				BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
				ExecutionID: execution.ID,
				NodeID:      execution.CurrentNodeID,
				RetryCounts: execution.RetryCounts,
			})
		}
	case execution.AwaitingInput():
		e.publish(ctx, execution.ID, events.ExecutionSuspended{
			BaseEvent:   e.baseEvent(events.ExecutionSuspendedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			NodeID:      execution.CurrentNodeID,
			SchemaRef:   execution.PendingInput.SchemaRef,
		})
	default:
		e.publish(ctx, execution.ID, events.NodeEntered{
			BaseEvent:   e.baseEvent(events.NodeEnteredEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			NodeID:      execution.CurrentNodeID,
			StationID:   outcome.toNode.Station.ID,
		})
	}
}

func (e *Engine) audit(ctx context.Context, action models.AuditAction, execution *models.Execution, reason string, metadata map[string]any) {
	var actor *string
	if execution.UserID != "" {
		actor = &execution.UserID
	}

	if _, err := e.ledger.Write(ctx, action, execution.ProjectID, actor, reason, metadata); err != nil {
		e.logger.ErrorContext(ctx, "Failed to append audit record",
			"execution_id", execution.ID,
			"action", action,
			"error", err,
		)
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}
