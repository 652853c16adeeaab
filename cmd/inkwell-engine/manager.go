package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/inkwell-ai/inkwell/pkg/engine"
	"github.com/inkwell-ai/inkwell/pkg/eventbus"
	"github.com/inkwell-ai/inkwell/pkg/events"
	"github.com/inkwell-ai/inkwell/pkg/generation"
	"github.com/inkwell-ai/inkwell/pkg/lifecycle"
	"github.com/inkwell-ai/inkwell/pkg/log"
	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/staleness"
)

// EngineManager subscribes to execution lifecycle events and drives the
// production loop: started and resumed executions run through the
// generation runner, finished ones feed the document lifecycle and
// staleness propagation.
type EngineManager struct {
	id         string
	engine     *engine.Engine
	runner     *generation.Runner
	lifecycle  *lifecycle.Manager
	propagator *staleness.Propagator
	eventBus   eventbus.EventBus
	logger     *slog.Logger
}

func NewEngineManager(
	id string,
	eng *engine.Engine,
	runner *generation.Runner,
	lifecycleManager *lifecycle.Manager,
	propagator *staleness.Propagator,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *EngineManager {
	return &EngineManager{
		id:         id,
		engine:     eng,
		runner:     runner,
		lifecycle:  lifecycleManager,
		propagator: propagator,
		eventBus:   eventBus,
		logger:     logger.With("module", "inkwell-engine", "engine_id", id),
	}
}

func (m *EngineManager) Start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting engine manager")

	if err := m.eventBus.Handle(events.ExecutionStartedEvent, m.handleExecutionStarted); err != nil {
		return err
	}

	if err := m.eventBus.Handle(events.ExecutionResumedEvent, m.handleExecutionResumed); err != nil {
		return err
	}

	if err := m.eventBus.Handle(events.ExecutionFinishedEvent, m.handleExecutionFinished); err != nil {
		return err
	}

	if err := m.eventBus.Subscribe(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	m.logger.InfoContext(ctx, "Engine started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	m.logger.InfoContext(ctx, "Shutting down engine...")

	return nil
}

func (m *EngineManager) handleExecutionStarted(ctx context.Context, event any) error {
	startedEvent, ok := event.(*events.ExecutionStarted)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for ExecutionStarted")

		return nil
	}

	logger := log.WithExecution(m.logger, startedEvent.ExecutionID).With(
		"document_id", startedEvent.DocumentID,
		"event_id", startedEvent.ID,
	)
	logger.InfoContext(ctx, "Processing execution started event")

	return m.runExecution(ctx, logger, startedEvent.ExecutionID)
}

func (m *EngineManager) handleExecutionResumed(ctx context.Context, event any) error {
	resumedEvent, ok := event.(*events.ExecutionResumed)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for ExecutionResumed")

		return nil
	}

	logger := log.WithExecution(m.logger, resumedEvent.ExecutionID).With("event_id", resumedEvent.ID)
	logger.InfoContext(ctx, "Processing execution resumed event")

	return m.runExecution(ctx, logger, resumedEvent.ExecutionID)
}

func (m *EngineManager) runExecution(ctx context.Context, logger *slog.Logger, executionID string) error {
	execution, err := m.runner.Run(ctx, executionID)
	if err != nil {
		logger.ErrorContext(ctx, "Execution run failed", "error", err)

		return err
	}

	switch {
	case execution.IsTerminal():
		logger.InfoContext(ctx, "Execution reached terminal node", "outcome", execution.TerminalOutcome)
	case execution.AwaitingInput():
		logger.InfoContext(ctx, "Execution suspended awaiting approval", "node_id", execution.CurrentNodeID)
	}

	return nil
}

// handleExecutionFinished settles the document: a complete outcome closes
// the generation cycle and invalidates downstream documents.
func (m *EngineManager) handleExecutionFinished(ctx context.Context, event any) error {
	finishedEvent, ok := event.(*events.ExecutionFinished)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for ExecutionFinished")

		return nil
	}

	if finishedEvent.Outcome != models.TerminalOutcomeComplete {
		return nil
	}

	execution, err := m.engine.Get(ctx, finishedEvent.ExecutionID)
	if err != nil {
		return err
	}

	logger := log.WithExecution(m.logger, execution.ID).With("document_id", execution.DocumentID)

	document, err := m.lifecycle.CompleteGeneration(ctx, execution.DocumentID, execution.ContextState.Values, nil)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to settle document lifecycle", "error", err)

		return err
	}

	if document.LifecycleState != models.LifecycleStateComplete {
		return nil
	}

	staled, err := m.propagator.Propagate(ctx, document.ProjectID, document.DocTypeID)
	if err != nil {
		logger.ErrorContext(ctx, "Staleness propagation failed", "error", err)

		return err
	}

	if len(staled) > 0 {
		logger.InfoContext(ctx, "Invalidated downstream documents", "count", len(staled))
	}

	return nil
}
