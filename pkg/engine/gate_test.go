package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/testutil"
)

func gateDefinition(rules []models.GatingRule, defaultEdge string) (*models.Definition, *models.Node) {
	gate := testutil.CreateTestNode("gate", testutil.WithGate(rules...))
	gate.DefaultEdge = defaultEdge

	definition := testutil.CreateTestDefinition("wf-gate",
		[]*models.Node{
			testutil.CreateTestNode("writer"),
			gate,
			testutil.CreateTestNode("done", testutil.WithTerminal(models.TerminalOutcomeComplete)),
			testutil.CreateTestNode("failed", testutil.WithTerminal(models.TerminalOutcomeFailed)),
		},
		[]*models.Edge{
			{From: "writer", To: "gate", Condition: "written"},
			{From: "gate", To: "done", Condition: "pass"},
			{From: "gate", To: "failed", Condition: "fail"},
		},
	)

	return definition, gate
}

func TestChooseEdge_FirstMatchWins(t *testing.T) {
	definition, gate := gateDefinition([]models.GatingRule{
		{When: models.Rule{Kind: models.RuleKindEquals, Field: "score", Value: 10}, Edge: "pass"},
		{When: models.Rule{Kind: models.RuleKindPresent, Field: "score"}, Edge: "fail"},
	}, "")

	result := models.NodeResult{Data: map[string]any{"score": 10}}

	edge, err := chooseEdge(definition, gate, result, models.ContextState{})
	require.NoError(t, err)
	assert.Equal(t, "pass", edge.Condition)
}

func TestChooseEdge_RuleReadsContextState(t *testing.T) {
	definition, gate := gateDefinition([]models.GatingRule{
		{When: models.Rule{Kind: models.RuleKindIn, Field: "genre", Values: []any{"essay", "report"}}, Edge: "pass"},
	}, "fail")

	state := models.NewContextState("hash", map[string]any{"genre": "essay"})

	edge, err := chooseEdge(definition, gate, models.NodeResult{}, state)
	require.NoError(t, err)
	assert.Equal(t, "pass", edge.Condition)
}

func TestChooseEdge_DefaultEdgeFallback(t *testing.T) {
	definition, gate := gateDefinition([]models.GatingRule{
		{When: models.Rule{Kind: models.RuleKindEquals, Field: "verdict", Value: "yes"}, Edge: "pass"},
	}, "fail")

	edge, err := chooseEdge(definition, gate, models.NodeResult{Data: map[string]any{"verdict": "no"}}, models.ContextState{})
	require.NoError(t, err)
	assert.Equal(t, "fail", edge.Condition)
}

func TestChooseEdge_NoMatchNoDefault(t *testing.T) {
	definition, gate := gateDefinition([]models.GatingRule{
		{When: models.Rule{Kind: models.RuleKindEquals, Field: "verdict", Value: "yes"}, Edge: "pass"},
	}, "")

	_, err := chooseEdge(definition, gate, models.NodeResult{Data: map[string]any{"verdict": "no"}}, models.ContextState{})
	assert.ErrorIs(t, err, errNoMatchingEdge)
}

func TestChooseEdge_SingleEdgeUnconditional(t *testing.T) {
	definition, _ := gateDefinition(nil, "")
	writer := definition.NodeByID("writer")

	edge, err := chooseEdge(definition, writer, models.NodeResult{}, models.ContextState{})
	require.NoError(t, err)
	assert.Equal(t, "written", edge.Condition)
}
