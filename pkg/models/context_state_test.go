package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextState_Apply_OnlyContributedKeys(t *testing.T) {
	state := NewContextState("hash-1", map[string]any{"title": "old"})
	node := &Node{ID: "draft", Contributes: []string{"body", "title"}}

	state.Apply(node, NodeResult{Data: map[string]any{
		"body":    "text",
		"title":   "new",
		"scratch": "not declared",
	}})

	assert.Equal(t, "text", state.Values["body"])
	assert.Equal(t, "new", state.Values["title"], "last writer wins per key")
	assert.NotContains(t, state.Values, "scratch")
	assert.Equal(t, "hash-1", state.SchemaHash)
}

func TestContextState_Apply_NoContributes(t *testing.T) {
	state := NewContextState("hash", nil)

	state.Apply(&Node{ID: "gate"}, NodeResult{Data: map[string]any{"x": 1}})

	assert.Empty(t, state.Values)
}

func TestContextState_Clone_Independent(t *testing.T) {
	state := NewContextState("hash", map[string]any{"a": 1})
	clone := state.Clone()

	clone.Set("a", 2)
	clone.Set("b", 3)

	assert.Equal(t, 1, state.Values["a"])
	assert.NotContains(t, state.Values, "b")
}
