package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() *Definition {
	return &Definition{
		WorkflowID: "wf-test",
		Version:    1,
		Status:     DefinitionStatusAccepted,
		Nodes: []*Node{
			{ID: "draft", Station: Station{ID: "draft"}, Type: NodeTypeGeneration},
			{
				ID:      "qa",
				Station: Station{ID: "qa"},
				Type:    NodeTypeGate,
				GatingRules: []GatingRule{
					{When: Rule{Kind: RuleKindEquals, Field: "verdict", Value: "accept"}, Edge: "accept"},
					{When: Rule{Kind: RuleKindEquals, Field: "verdict", Value: "reject"}, Edge: "reject"},
				},
			},
			{
				ID:          "remediation",
				Station:     Station{ID: "qa"},
				Type:        NodeTypeGeneration,
				RetryPolicy: &RetryPolicy{MaxAttempts: 2, FailureNodeID: "failed"},
			},
			{ID: "done", Station: Station{ID: "done"}, Type: NodeTypeTerminal, Outcome: TerminalOutcomeComplete},
			{ID: "failed", Station: Station{ID: "done"}, Type: NodeTypeTerminal, Outcome: TerminalOutcomeFailed},
		},
		Edges: []*Edge{
			{From: "draft", To: "qa", Condition: "drafted"},
			{From: "qa", To: "done", Condition: "accept"},
			{From: "qa", To: "remediation", Condition: "reject"},
			{From: "remediation", To: "qa", Condition: "revised"},
		},
	}
}

func TestDefinition_Validate(t *testing.T) {
	require.NoError(t, validDefinition().Validate())
}

func TestDefinition_Validate_DuplicateNodeID(t *testing.T) {
	definition := validDefinition()
	definition.Nodes = append(definition.Nodes, &Node{ID: "draft", Station: Station{ID: "x"}, Type: NodeTypeGeneration})

	err := definition.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestDefinition_Validate_TerminalWithoutOutcome(t *testing.T) {
	definition := validDefinition()
	definition.NodeByID("done").Outcome = TerminalOutcomeNone

	assert.ErrorIs(t, definition.Validate(), ErrInvalidDefinition)
}

func TestDefinition_Validate_NonTerminalWithoutOutgoingEdge(t *testing.T) {
	definition := validDefinition()
	definition.Edges = definition.Edges[:3]

	assert.ErrorIs(t, definition.Validate(), ErrInvalidDefinition)
}

func TestDefinition_Validate_EdgeToUnknownNode(t *testing.T) {
	definition := validDefinition()
	definition.Edges[0].To = "nowhere"

	assert.ErrorIs(t, definition.Validate(), ErrInvalidDefinition)
}

func TestDefinition_Validate_UnboundedCycle(t *testing.T) {
	definition := validDefinition()
	definition.NodeByID("remediation").RetryPolicy = nil

	err := definition.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "cycle")
}

func TestDefinition_Validate_RetryTargetNotTerminal(t *testing.T) {
	definition := validDefinition()
	definition.NodeByID("remediation").RetryPolicy.FailureNodeID = "qa"

	assert.ErrorIs(t, definition.Validate(), ErrInvalidDefinition)
}

func TestDefinition_Validate_GatingRuleTargetsMissingEdge(t *testing.T) {
	definition := validDefinition()
	definition.NodeByID("qa").GatingRules[0].Edge = "missing"

	assert.ErrorIs(t, definition.Validate(), ErrInvalidDefinition)
}

func TestDefinition_Validate_UnreachableNode(t *testing.T) {
	definition := validDefinition()
	// Two nodes feeding each other are disconnected from the start node but
	// both carry inbound edges, so the single-start check stays satisfied.
	definition.Nodes = append(definition.Nodes,
		&Node{ID: "island-a", Station: Station{ID: "x"}, Type: NodeTypeGeneration},
		&Node{ID: "island-b", Station: Station{ID: "x"}, Type: NodeTypeGeneration},
	)
	definition.Edges = append(definition.Edges,
		&Edge{From: "island-a", To: "island-b", Condition: "go"},
		&Edge{From: "island-b", To: "island-a", Condition: "back"},
	)

	err := definition.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestDefinition_StartNode(t *testing.T) {
	definition := validDefinition()
	assert.Equal(t, "draft", definition.StartNode().ID)
}

func TestDefinition_OutgoingEdges(t *testing.T) {
	definition := validDefinition()

	edges := definition.OutgoingEdges("qa")
	require.Len(t, edges, 2)
	assert.Equal(t, "accept", edges[0].Condition)
	assert.Equal(t, "reject", edges[1].Condition)
}
