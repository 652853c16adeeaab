// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// CreateTestNode creates a generation node with default values that can be
// overridden.
func CreateTestNode(id string, overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:      id,
		Station: models.Station{ID: "draft", Label: "Draft", Order: 1},
		Type:    models.NodeTypeGeneration,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithGate configures the node as an automatic gate with the given rules.
func WithGate(rules ...models.GatingRule) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeGate
		n.GateKind = models.GateKindAutomatic
		n.GatingRules = rules
	}
}

// WithApprovalGate configures the node as a human-approval gate.
func WithApprovalGate(schemaRef string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeGate
		n.GateKind = models.GateKindApproval
		n.InputSchemaRef = schemaRef
	}
}

// WithTerminal configures the node as a terminal with the given outcome.
func WithTerminal(outcome models.TerminalOutcome) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeTerminal
		n.Outcome = outcome
		n.Station = models.Station{ID: "done", Label: "Done", Order: 99}
	}
}

// WithRetryPolicy attaches a retry policy to the node.
func WithRetryPolicy(maxAttempts int, failureNodeID string) func(*models.Node) {
	return func(n *models.Node) {
		n.RetryPolicy = &models.RetryPolicy{MaxAttempts: maxAttempts, FailureNodeID: failureNodeID}
	}
}

// WithContributes declares the context state keys the node writes.
func WithContributes(keys ...string) func(*models.Node) {
	return func(n *models.Node) {
		n.Contributes = keys
	}
}

// WithDefaultEdge sets the fallback edge condition.
func WithDefaultEdge(condition string) func(*models.Node) {
	return func(n *models.Node) {
		n.DefaultEdge = condition
	}
}

// WithStation sets the display station.
func WithStation(id string, order int) func(*models.Node) {
	return func(n *models.Node) {
		n.Station = models.Station{ID: id, Label: id, Order: order}
	}
}

// CreateTestDefinition creates an accepted definition with the given nodes
// and edges.
func CreateTestDefinition(workflowID string, nodes []*models.Node, edges []*models.Edge) *models.Definition {
	now := time.Now().UTC()

	return &models.Definition{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Version:    1,
		Status:     models.DefinitionStatusAccepted,
		Nodes:      nodes,
		Edges:      edges,
		CreatedAt:  now,
		AcceptedAt: &now,
	}
}

// CreateRemediationDefinition builds the canonical three-node remediation
// graph: draft generation, a quality gate, a bounded remediation loop, and
// two terminals.
func CreateRemediationDefinition(workflowID string, maxAttempts int) *models.Definition {
	nodes := []*models.Node{
		CreateTestNode("draft", WithContributes("body")),
		CreateTestNode("qa-gate", WithGate(
			models.GatingRule{
				When: models.Rule{Kind: models.RuleKindEquals, Field: "verdict", Value: "accept"},
				Edge: "accept",
			},
			models.GatingRule{
				When: models.Rule{Kind: models.RuleKindEquals, Field: "verdict", Value: "reject"},
				Edge: "reject",
			},
		), WithStation("qa", 2)),
		CreateTestNode("remediation",
			WithContributes("body"),
			WithRetryPolicy(maxAttempts, "failed"),
			WithStation("qa", 2),
		),
		CreateTestNode("done", WithTerminal(models.TerminalOutcomeComplete)),
		CreateTestNode("failed", WithTerminal(models.TerminalOutcomeFailed)),
	}

	edges := []*models.Edge{
		{From: "draft", To: "qa-gate", Condition: "drafted"},
		{From: "qa-gate", To: "done", Condition: "accept"},
		{From: "qa-gate", To: "remediation", Condition: "reject"},
		{From: "remediation", To: "qa-gate", Condition: "revised"},
	}

	return CreateTestDefinition(workflowID, nodes, edges)
}

// CreateTestDocument creates a document with default values that can be
// overridden.
func CreateTestDocument(projectID, docTypeID string, overrides ...func(*models.Document)) *models.Document {
	now := time.Now().UTC()
	document := &models.Document{
		ID:             "doc-" + uuid.New().String()[:8],
		DocTypeID:      docTypeID,
		ProjectID:      projectID,
		LifecycleState: models.LifecycleStateGenerating,
		StateChangedAt: now,
		IsLatest:       true,
		RowVersion:     1,
		CreatedAt:      now,
	}

	for _, override := range overrides {
		override(document)
	}

	return document
}

// WithState sets the lifecycle state.
func WithState(state models.LifecycleState) func(*models.Document) {
	return func(d *models.Document) {
		d.LifecycleState = state
	}
}

// WithParent sets the ownership parent.
func WithParent(parentID string) func(*models.Document) {
	return func(d *models.Document) {
		d.ParentDocumentID = &parentID
	}
}

// WithInstanceKey sets the instance key for multi-instance doc types.
func WithInstanceKey(key string) func(*models.Document) {
	return func(d *models.Document) {
		d.InstanceKey = key
	}
}

// CreateTestProject creates an active project.
func CreateTestProject(code string) *models.Project {
	return &models.Project{
		Code:      code,
		Name:      "Project " + code,
		CreatedAt: time.Now().UTC(),
	}
}
