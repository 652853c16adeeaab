package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_Equals(t *testing.T) {
	rule := Rule{Kind: RuleKindEquals, Field: "verdict", Value: "accept"}

	matched, err := rule.Evaluate(NodeResult{Data: map[string]any{"verdict": "accept"}}, ContextState{})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = rule.Evaluate(NodeResult{Data: map[string]any{"verdict": "reject"}}, ContextState{})
	require.NoError(t, err)
	assert.False(t, matched)

	// Absent field never matches.
	matched, err = rule.Evaluate(NodeResult{}, ContextState{})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestRule_Equals_NumbersSurviveJSONRoundTrip(t *testing.T) {
	rule := Rule{Kind: RuleKindEquals, Field: "score", Value: 10}

	// Numbers arrive as float64 after a JSON round trip.
	matched, err := rule.Evaluate(NodeResult{Data: map[string]any{"score": float64(10)}}, ContextState{})
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestRule_In(t *testing.T) {
	rule := Rule{Kind: RuleKindIn, Field: "genre", Values: []any{"essay", "report"}}

	matched, err := rule.Evaluate(NodeResult{Data: map[string]any{"genre": "report"}}, ContextState{})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = rule.Evaluate(NodeResult{Data: map[string]any{"genre": "poem"}}, ContextState{})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestRule_Present(t *testing.T) {
	rule := Rule{Kind: RuleKindPresent, Field: "summary"}

	matched, err := rule.Evaluate(NodeResult{Data: map[string]any{"summary": "text"}}, ContextState{})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = rule.Evaluate(NodeResult{Data: map[string]any{"summary": nil}}, ContextState{})
	require.NoError(t, err)
	assert.False(t, matched, "a nil value does not count as present")
}

func TestRule_FallsBackToContextState(t *testing.T) {
	rule := Rule{Kind: RuleKindEquals, Field: "language", Value: "en"}
	state := NewContextState("hash", map[string]any{"language": "en"})

	matched, err := rule.Evaluate(NodeResult{}, state)
	require.NoError(t, err)
	assert.True(t, matched)

	// Result data shadows context state.
	matched, err = rule.Evaluate(NodeResult{Data: map[string]any{"language": "de"}}, state)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestRule_UnknownKind(t *testing.T) {
	rule := Rule{Kind: "regex", Field: "x"}

	_, err := rule.Evaluate(NodeResult{}, ContextState{})
	assert.Error(t, err)
}

func TestRule_Status(t *testing.T) {
	rule := Rule{Kind: RuleKindStatus, Value: "success"}

	matched, err := rule.Evaluate(NodeResult{Status: NodeStatusSuccess}, ContextState{})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = rule.Evaluate(NodeResult{Status: NodeStatusError}, ContextState{})
	require.NoError(t, err)
	assert.False(t, matched)
}
