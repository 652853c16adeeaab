package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/audit"
	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
	"github.com/inkwell-ai/inkwell/pkg/persistence/file"
	"github.com/inkwell-ai/inkwell/pkg/schema"
	"github.com/inkwell-ai/inkwell/pkg/testutil"
)

const reviewSchema = `{
	"type": "object",
	"required": ["approved"],
	"properties": {
		"approved": {"type": "boolean"},
		"notes": {"type": "string"}
	}
}`

func newTestEngine(t *testing.T) (*Engine, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	registry, err := schema.NewRegistry(map[string][]byte{
		"docdef:review": []byte(reviewSchema),
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ledger := audit.NewLedger(p.Audit(), logger)

	return New(p, registry, ledger, nil, logger), p
}

func startRemediationExecution(t *testing.T, eng *Engine, p *file.Persistence, maxAttempts int) *models.Execution {
	t.Helper()

	ctx := context.Background()
	definition := testutil.CreateRemediationDefinition("wf-article", maxAttempts)
	require.NoError(t, definition.Validate())
	require.NoError(t, p.Definitions().Save(ctx, definition))

	execution, err := eng.Start(ctx, StartRequest{
		WorkflowID:   "wf-article",
		DocumentID:   "doc-1",
		DocumentType: "article",
		ProjectID:    "proj-1",
		UserID:       "user-1",
	})
	require.NoError(t, err)

	return execution
}

func TestEngine_Start(t *testing.T) {
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 2)

	assert.Equal(t, "draft", execution.CurrentNodeID)
	assert.Equal(t, 1, execution.DefinitionVersion)
	assert.Empty(t, execution.Log, "no log entry until the first node completes")
	assert.False(t, execution.IsTerminal())
	assert.NotEmpty(t, execution.ContextState.SchemaHash)
}

func TestEngine_Start_NoAcceptedDefinition(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), StartRequest{WorkflowID: "wf-missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestEngine_Advance_ToCompletion(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 2)

	execution, err := eng.Advance(ctx, execution.ID, models.NodeResult{
		NodeID: "draft",
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"body": "first draft"},
	})
	require.NoError(t, err)
	assert.Equal(t, "qa-gate", execution.CurrentNodeID)
	assert.Equal(t, "first draft", execution.ContextState.Values["body"])
	require.Len(t, execution.Log, 1)
	assert.Equal(t, "drafted", execution.Log[0].Outcome)

	execution, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"verdict": "accept"},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", execution.CurrentNodeID)
	assert.Equal(t, models.TerminalOutcomeComplete, execution.TerminalOutcome)
	assert.Equal(t, "accept", execution.GateOutcome)
	assert.NotNil(t, execution.CompletedAt)
}

func TestEngine_Advance_NoMatchingEdge(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 2)

	execution, err := eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"body": "draft"},
	})
	require.NoError(t, err)

	_, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"verdict": "shrug"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

// Two consecutive rejects against a remediation node with max_attempts=2
// must exhaust the retry policy and land on the failure terminal.
func TestEngine_RetryExhaustion(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 2)

	execution, err := eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"body": "draft"},
	})
	require.NoError(t, err)

	// First reject enters the remediation node.
	execution, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"verdict": "reject"},
	})
	require.NoError(t, err)
	assert.Equal(t, "remediation", execution.CurrentNodeID)
	assert.Equal(t, 1, execution.RetryCounts["remediation"])
	assert.False(t, execution.IsTerminal())

	execution, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"body": "revision"},
	})
	require.NoError(t, err)
	assert.Equal(t, "qa-gate", execution.CurrentNodeID)

	// Second reject uses up the policy and forces the failure terminal.
	execution, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"verdict": "reject"},
	})
	require.NoError(t, err)
	assert.Equal(t, "failed", execution.CurrentNodeID)
	assert.Equal(t, models.TerminalOutcomeFailed, execution.TerminalOutcome)
	assert.Equal(t, 2, execution.RetryCounts["remediation"])

	last := execution.Log[len(execution.Log)-1]
	assert.Equal(t, models.LogOutcomeRetryExhausted, last.Outcome)
	assert.Equal(t, "remediation", last.NodeID)
}

func TestEngine_TerminalIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 2)

	execution, err := eng.Abandon(ctx, execution.ID, "operator gave up")
	require.NoError(t, err)
	assert.Equal(t, models.TerminalOutcomeAbandoned, execution.TerminalOutcome)

	_, err = eng.Advance(ctx, execution.ID, models.NodeResult{Status: models.NodeStatusSuccess})
	assert.ErrorIs(t, err, ErrExecutionTerminal)

	_, err = eng.Retry(ctx, execution.ID)
	assert.ErrorIs(t, err, ErrExecutionTerminal)

	_, err = eng.SubmitUserInput(ctx, execution.ID, map[string]any{"approved": true})
	assert.ErrorIs(t, err, ErrExecutionTerminal)

	// Abandon stays idempotent.
	again, err := eng.Abandon(ctx, execution.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, models.TerminalOutcomeAbandoned, again.TerminalOutcome)
	assert.Equal(t, execution.RowVersion, again.RowVersion)
}

func TestEngine_Retry(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 3)

	// No retry policy on the draft node.
	_, err := eng.Retry(ctx, execution.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	execution, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"body": "draft"},
	})
	require.NoError(t, err)

	execution, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"verdict": "reject"},
	})
	require.NoError(t, err)
	require.Equal(t, "remediation", execution.CurrentNodeID)
	require.Equal(t, 1, execution.RetryCounts["remediation"])

	execution, err = eng.Retry(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, execution.RetryCounts["remediation"])
	assert.False(t, execution.IsTerminal())
	assert.Equal(t, models.LogOutcomeRetry, execution.Log[len(execution.Log)-1].Outcome)

	execution, err = eng.Retry(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, execution.RetryCounts["remediation"])
	assert.Equal(t, models.TerminalOutcomeFailed, execution.TerminalOutcome)
	assert.Equal(t, "failed", execution.CurrentNodeID)
}

func TestEngine_BeginAttempt_StaleResultDiscarded(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 2)

	_, _, first, err := eng.BeginAttempt(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	_, _, second, err := eng.BeginAttempt(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second)

	// A late result from the superseded first attempt must not land.
	_, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		NodeID:  "draft",
		Attempt: first,
		Status:  models.NodeStatusSuccess,
		Data:    map[string]any{"body": "late"},
	})
	assert.ErrorIs(t, err, ErrStaleAttempt)

	execution, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		NodeID:  "draft",
		Attempt: second,
		Status:  models.NodeStatusSuccess,
		Data:    map[string]any{"body": "current"},
	})
	require.NoError(t, err)
	assert.Equal(t, "qa-gate", execution.CurrentNodeID)
	assert.Equal(t, "current", execution.ContextState.Values["body"])
}

func approvalDefinition() *models.Definition {
	nodes := []*models.Node{
		testutil.CreateTestNode("intake", testutil.WithContributes("body")),
		testutil.CreateTestNode("review",
			testutil.WithApprovalGate("docdef:review"),
			testutil.WithStation("qa", 2),
		),
		testutil.CreateTestNode("done", testutil.WithTerminal(models.TerminalOutcomeComplete)),
		testutil.CreateTestNode("declined", testutil.WithTerminal(models.TerminalOutcomeFailed)),
	}
	nodes[1].GatingRules = []models.GatingRule{
		{When: models.Rule{Kind: models.RuleKindEquals, Field: "approved", Value: true}, Edge: "approve"},
		{When: models.Rule{Kind: models.RuleKindEquals, Field: "approved", Value: false}, Edge: "decline"},
	}

	edges := []*models.Edge{
		{From: "intake", To: "review", Condition: "submitted"},
		{From: "review", To: "done", Condition: "approve"},
		{From: "review", To: "declined", Condition: "decline"},
	}

	return testutil.CreateTestDefinition("wf-approval", nodes, edges)
}

func TestEngine_SubmitUserInput(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)

	definition := approvalDefinition()
	require.NoError(t, definition.Validate())
	require.NoError(t, p.Definitions().Save(ctx, definition))

	execution, err := eng.Start(ctx, StartRequest{
		WorkflowID:   "wf-approval",
		DocumentID:   "doc-2",
		DocumentType: "article",
		ProjectID:    "proj-1",
	})
	require.NoError(t, err)

	// Input submission is only legal while suspended.
	_, err = eng.SubmitUserInput(ctx, execution.ID, map[string]any{"approved": true})
	assert.ErrorIs(t, err, ErrNoPendingInput)

	execution, err = eng.Advance(ctx, execution.ID, models.NodeResult{
		Status: models.NodeStatusSuccess,
		Data:   map[string]any{"body": "text"},
	})
	require.NoError(t, err)
	require.True(t, execution.AwaitingInput())
	assert.Equal(t, "docdef:review", execution.PendingInput.SchemaRef)

	_, err = eng.Advance(ctx, execution.ID, models.NodeResult{Status: models.NodeStatusSuccess})
	assert.ErrorIs(t, err, ErrAwaitingInput)

	// Invalid payload leaves the execution suspended for correction.
	_, err = eng.SubmitUserInput(ctx, execution.ID, map[string]any{"approved": "yes"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaValidation)

	var validationErr *schema.ValidationError

	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "docdef:review", validationErr.SchemaRef)

	suspended, err := eng.Get(ctx, execution.ID)
	require.NoError(t, err)
	assert.True(t, suspended.AwaitingInput())

	execution, err = eng.SubmitUserInput(ctx, execution.ID, map[string]any{"approved": true, "notes": "ship it"})
	require.NoError(t, err)
	assert.False(t, execution.AwaitingInput())
	assert.Equal(t, "done", execution.CurrentNodeID)
	assert.Equal(t, models.TerminalOutcomeComplete, execution.TerminalOutcome)
	assert.Equal(t, true, execution.ContextState.Values["approved"])
}

func TestEngine_AuditTrailWritten(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 2)

	_, err := eng.Abandon(ctx, execution.ID, "test")
	require.NoError(t, err)

	records, err := p.Audit().ListByProject(ctx, "proj-1")
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, models.AuditActionCreated, records[0].Action)
}

func TestEngine_ConcurrentAdvanceLoses(t *testing.T) {
	ctx := context.Background()
	eng, p := newTestEngine(t)
	execution := startRemediationExecution(t, eng, p, 2)

	// Simulate a competing writer landing first.
	competitor, err := p.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	require.NoError(t, p.Executions().Update(ctx, competitor, competitor.RowVersion))

	stale := execution.RowVersion
	require.NoError(t, p.Executions().Update(ctx, competitor, competitor.RowVersion))

	err = p.Executions().Update(ctx, execution, stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, persistence.ErrConcurrencyConflict))
}
