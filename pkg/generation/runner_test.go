package generation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/audit"
	"github.com/inkwell-ai/inkwell/pkg/engine"
	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
	"github.com/inkwell-ai/inkwell/pkg/persistence/file"
	"github.com/inkwell-ai/inkwell/pkg/schema"
	"github.com/inkwell-ai/inkwell/pkg/testutil"
)

func newTestRunner(t *testing.T, invoker Invoker, maxAttempts int) (*Runner, *models.Execution, *engine.Engine) {
	t.Helper()

	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	registry, err := schema.NewRegistry(map[string][]byte{})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ledger := audit.NewLedger(p.Audit(), logger)
	eng := engine.New(p, registry, ledger, nil, logger)

	definition := testutil.CreateRemediationDefinition("wf-article", maxAttempts)
	require.NoError(t, p.Definitions().Save(ctx, definition))

	execution, err := eng.Start(ctx, engine.StartRequest{
		WorkflowID:   "wf-article",
		DocumentID:   "doc-1",
		DocumentType: "article",
		ProjectID:    "proj-1",
	})
	require.NoError(t, err)

	return NewRunner(eng, invoker, nil, logger), execution, eng
}

func resultWith(node *models.Node, data map[string]any) models.NodeResult {
	return models.NodeResult{NodeID: node.ID, Status: models.NodeStatusSuccess, Data: data}
}

func TestRunner_RunToCompletion(t *testing.T) {
	invoker := InvokerFunc(func(_ context.Context, node *models.Node, _ models.ContextState) (models.NodeResult, error) {
		return resultWith(node, map[string]any{"body": "draft text", "verdict": "accept"}), nil
	})

	runner, execution, _ := newTestRunner(t, invoker, 2)

	final, err := runner.Run(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TerminalOutcomeComplete, final.TerminalOutcome)
	assert.Equal(t, "done", final.CurrentNodeID)
	assert.Equal(t, "draft text", final.ContextState.Values["body"])
	assert.Equal(t, 1, final.AttemptCounts["draft"])
}

func TestRunner_RemediationLoopRecovers(t *testing.T) {
	calls := map[string]int{}

	invoker := InvokerFunc(func(_ context.Context, node *models.Node, _ models.ContextState) (models.NodeResult, error) {
		calls[node.ID]++

		verdict := "accept"
		if node.ID == "draft" {
			verdict = "reject"
		}

		return resultWith(node, map[string]any{"body": "text", "verdict": verdict}), nil
	})

	runner, execution, _ := newTestRunner(t, invoker, 3)

	final, err := runner.Run(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TerminalOutcomeComplete, final.TerminalOutcome)
	assert.Equal(t, 1, calls["draft"])
	assert.Equal(t, 1, calls["remediation"])
	assert.Equal(t, 1, final.RetryCounts["remediation"])
}

func TestRunner_ExhaustionEndsOnFailureTerminal(t *testing.T) {
	invoker := InvokerFunc(func(_ context.Context, node *models.Node, _ models.ContextState) (models.NodeResult, error) {
		return resultWith(node, map[string]any{"body": "text", "verdict": "reject"}), nil
	})

	runner, execution, _ := newTestRunner(t, invoker, 2)

	final, err := runner.Run(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TerminalOutcomeFailed, final.TerminalOutcome)
	assert.Equal(t, "failed", final.CurrentNodeID)
	assert.Equal(t, 2, final.RetryCounts["remediation"])
}

func TestRunner_InvocationFailureWithoutPolicy(t *testing.T) {
	invoker := InvokerFunc(func(_ context.Context, _ *models.Node, _ models.ContextState) (models.NodeResult, error) {
		return models.NodeResult{}, errors.New("backend unavailable")
	})

	runner, execution, eng := newTestRunner(t, invoker, 2)

	_, err := runner.Run(context.Background(), execution.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)

	// The attempt itself was durably recorded before the call failed.
	stored, err := eng.Get(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AttemptCounts["draft"])
	require.NotEmpty(t, stored.Log)
	assert.Equal(t, models.LogOutcomeAttemptStarted, stored.Log[0].Outcome)
}

// contestedPersistence injects a bounded number of optimistic lock losses
// into execution updates before delegating to the real store.
type contestedPersistence struct {
	persistence.Persistence
	executions *contestedExecutions
}

func (p *contestedPersistence) Executions() persistence.ExecutionRepository {
	return p.executions
}

type contestedExecutions struct {
	persistence.ExecutionRepository
	conflicts int
}

func (r *contestedExecutions) Update(ctx context.Context, execution *models.Execution, expectedVersion int) error {
	if r.conflicts > 0 {
		r.conflicts--

		return persistence.ErrConcurrencyConflict
	}

	return r.ExecutionRepository.Update(ctx, execution, expectedVersion)
}

func TestRunner_RetriesLostOptimisticLock(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	executions := &contestedExecutions{ExecutionRepository: p.Executions()}
	store := &contestedPersistence{Persistence: p, executions: executions}

	registry, err := schema.NewRegistry(map[string][]byte{})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ledger := audit.NewLedger(p.Audit(), logger)
	eng := engine.New(store, registry, ledger, nil, logger)

	require.NoError(t, p.Definitions().Save(ctx, testutil.CreateRemediationDefinition("wf-article", 2)))

	execution, err := eng.Start(ctx, engine.StartRequest{
		WorkflowID:   "wf-article",
		DocumentID:   "doc-1",
		DocumentType: "article",
		ProjectID:    "proj-1",
	})
	require.NoError(t, err)

	invoker := InvokerFunc(func(_ context.Context, node *models.Node, _ models.ContextState) (models.NodeResult, error) {
		// Lose the lock once on the advance that applies this result.
		executions.conflicts = 1

		return resultWith(node, map[string]any{"body": "text", "verdict": "accept"}), nil
	})

	runner := NewRunner(eng, invoker, nil, logger)

	final, err := runner.Run(ctx, execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TerminalOutcomeComplete, final.TerminalOutcome)
	assert.Zero(t, executions.conflicts)
}

func TestRunner_CancelledContext(t *testing.T) {
	invoker := InvokerFunc(func(_ context.Context, node *models.Node, _ models.ContextState) (models.NodeResult, error) {
		return resultWith(node, map[string]any{"body": "x", "verdict": "accept"}), nil
	})

	runner, execution, _ := newTestRunner(t, invoker, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, execution.ID)
	assert.ErrorIs(t, err, context.Canceled)
}
