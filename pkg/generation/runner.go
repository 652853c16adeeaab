package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkwell-ai/inkwell/pkg/engine"
	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/otelhelper"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

// conflictRetries bounds re-invocations of an engine operation that lost
// the optimistic lock. Each retry re-reads fresh state inside the engine.
const conflictRetries = 3

// Runner drives one execution until it parks: at a terminal node, at a
// human-approval gate, or on an error the engine cannot absorb. The
// sequencing makes generation crash-safe: the attempt is persisted before
// the invoker is called, so recovery re-reads the row and resumes from
// CurrentNodeID.
type Runner struct {
	engine  *engine.Engine
	invoker Invoker
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewRunner creates a runner. tracer may be nil when tracing is disabled.
func NewRunner(eng *engine.Engine, invoker Invoker, tracer trace.Tracer, logger *slog.Logger) *Runner {
	return &Runner{
		engine:  eng,
		invoker: invoker,
		tracer:  tracer,
		logger:  logger,
	}
}

// Run advances the execution node by node. Generation nodes invoke the
// external call under a durable attempt; automatic gates are evaluated with
// the latest artifact. Run returns the execution in whatever parked state
// it reached.
func (r *Runner) Run(ctx context.Context, executionID string) (*models.Execution, error) {
	var artifact map[string]any

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		execution, node, err := r.engine.CurrentNode(ctx, executionID)
		if err != nil {
			return nil, err
		}

		if execution.IsTerminal() || execution.AwaitingInput() {
			return execution, nil
		}

		switch node.Type {
		case models.NodeTypeGeneration:
			artifact, err = r.runGeneration(ctx, executionID, node)
			if err != nil {
				return nil, err
			}
		case models.NodeTypeGate:
			// Approval gates suspend on arrival, so a gate reached here is
			// automatic and is evaluated with the artifact that led to it.
			_, err = r.advance(ctx, executionID, models.NodeResult{
				Status: models.NodeStatusSuccess,
				Data:   artifact,
			})
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("runner cannot act on node %s of type %s: %w", node.ID, node.Type, engine.ErrIllegalTransition)
		}
	}
}

// runGeneration performs one durable attempt. Invocation failure is routed
// through Retry, which either re-enters the node or exhausts into the
// failure terminal. A stale result is discarded without effect.
func (r *Runner) runGeneration(ctx context.Context, executionID string, node *models.Node) (map[string]any, error) {
	execution, node, attempt, err := r.engine.BeginAttempt(ctx, executionID)
	if err != nil {
		return nil, err
	}

	invokeCtx, span := r.startSpan(ctx, execution, node, attempt)

	result, invokeErr := r.invoker.Invoke(invokeCtx, node, execution.ContextState.Clone())

	if invokeErr != nil || result.Status == models.NodeStatusError {
		if span != nil {
			if invokeErr == nil {
				invokeErr = errors.New(result.Error)
			}

			otelhelper.SetError(span, invokeErr)
			span.End()
		}

		r.logger.WarnContext(ctx, "Generation attempt failed",
			"execution_id", executionID,
			"node_id", node.ID,
			"attempt", attempt,
			"error", invokeErr,
		)

		if _, err := r.retry(ctx, executionID); err != nil {
			return nil, err
		}

		return nil, nil
	}

	if span != nil {
		span.End()
	}

	result.NodeID = node.ID
	result.Attempt = attempt

	_, err = r.advance(ctx, executionID, result)
	if err != nil {
		if errors.Is(err, engine.ErrStaleAttempt) {
			r.logger.InfoContext(ctx, "Discarded stale generation result",
				"execution_id", executionID,
				"node_id", node.ID,
				"attempt", attempt,
			)

			return nil, nil
		}

		return nil, err
	}

	return result.Data, nil
}

// advance calls engine.Advance, retrying a bounded number of times when the
// write loses the optimistic lock. The engine re-reads fresh state on every
// call, so a retry is a clean re-application.
func (r *Runner) advance(ctx context.Context, executionID string, result models.NodeResult) (*models.Execution, error) {
	var (
		execution *models.Execution
		err       error
	)

	for attempt := 0; attempt < conflictRetries; attempt++ {
		execution, err = r.engine.Advance(ctx, executionID, result)
		if err == nil || !persistence.IsConcurrencyConflict(err) {
			return execution, err
		}

		r.logger.WarnContext(ctx, "Advance lost optimistic lock, retrying",
			"execution_id", executionID,
			"attempt", attempt+1,
		)
	}

	return execution, err
}

// retry calls engine.Retry under the same bounded conflict policy.
func (r *Runner) retry(ctx context.Context, executionID string) (*models.Execution, error) {
	var (
		execution *models.Execution
		err       error
	)

	for attempt := 0; attempt < conflictRetries; attempt++ {
		execution, err = r.engine.Retry(ctx, executionID)
		if err == nil || !persistence.IsConcurrencyConflict(err) {
			return execution, err
		}

		r.logger.WarnContext(ctx, "Retry lost optimistic lock, retrying",
			"execution_id", executionID,
			"attempt", attempt+1,
		)
	}

	return execution, err
}

func (r *Runner) startSpan(ctx context.Context, execution *models.Execution, node *models.Node, attempt int) (context.Context, trace.Span) {
	if r.tracer == nil {
		return ctx, nil
	}

	return otelhelper.StartSpan(ctx, r.tracer, "generation.invoke",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.StationIDKey, node.Station.ID),
		attribute.Int(otelhelper.AttemptKey, attempt),
	)
}
