// Package models defines the core domain models for station-based document
// production workflows.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefinitionStatus represents the lifecycle state of a workflow definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft    DefinitionStatus = "draft"    // Editable, not executable
	DefinitionStatusAccepted DefinitionStatus = "accepted" // Current active, executable
	DefinitionStatusRetired  DefinitionStatus = "retired"  // Historical, not executable
)

// NodeType partitions workflow nodes by role in the production graph.
type NodeType string

const (
	NodeTypeGeneration NodeType = "generation" // Produces content via an external invocation
	NodeTypeGate       NodeType = "gate"       // Inspects produced artifacts, chooses an edge
	NodeTypeTerminal   NodeType = "terminal"   // Absorbing final state
)

// GateKind distinguishes automatic gates from gates that suspend for a human
// decision.
type GateKind string

const (
	GateKindAutomatic GateKind = "automatic"
	GateKindApproval  GateKind = "approval"
)

// Station is a display-grouping label applied to workflow nodes. The engine
// treats it as opaque metadata; only Order is meaningful, and only to a UI.
type Station struct {
	ID    string `json:"id"    validate:"required"`
	Label string `json:"label"`
	Order int    `json:"order"`
}

// RetryPolicy bounds re-entry into a node. FailureNodeID names the terminal
// node the execution is forced into once MaxAttempts is used up.
type RetryPolicy struct {
	MaxAttempts   int    `json:"max_attempts"    validate:"required,min=1"`
	FailureNodeID string `json:"failure_node_id" validate:"required"`
}

// Node is a single processing station instance in a workflow definition.
type Node struct {
	ID          string       `json:"node_id"                    validate:"required"`
	Station     Station      `json:"station"`
	Type        NodeType     `json:"type"                       validate:"required,oneof=generation gate terminal"`
	GatingRules []GatingRule `json:"gating_rules,omitempty"     validate:"dive"`
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`
	GateKind    GateKind     `json:"gate_kind,omitempty"        validate:"omitempty,oneof=automatic approval"`
	// InputSchemaRef names the docdef schema an automatic gate validates the
	// artifact against, or the schema a human-approval payload must satisfy.
	InputSchemaRef string `json:"input_schema_ref,omitempty"`
	// Contributes lists the context state keys this node writes on success.
	Contributes []string `json:"contributes,omitempty"`
	// DefaultEdge is the condition label of the fallback edge taken when no
	// gating rule matches.
	DefaultEdge string `json:"default_edge,omitempty"`
	// Outcome is the terminal outcome assigned when an execution arrives at
	// this node. Terminal nodes only.
	Outcome TerminalOutcome `json:"outcome,omitempty"`
}

func (n *Node) IsTerminal() bool {
	return n.Type == NodeTypeTerminal
}

func (n *Node) IsApprovalGate() bool {
	return n.Type == NodeTypeGate && n.GateKind == GateKindApproval
}

// Edge is an allowed transition between two nodes. Condition is the label
// gating rules and default edges select by.
type Edge struct {
	From      string `json:"from" validate:"required"`
	To        string `json:"to"   validate:"required"`
	Condition string `json:"condition"`
}

// Definition is an immutable, versioned workflow graph. Executions bind the
// accepted definition version at start and never rebind.
type Definition struct {
	ID         string           `json:"id"`
	WorkflowID string           `json:"workflow_id" validate:"required"`
	Version    int              `json:"version"     validate:"required,min=1"`
	Status     DefinitionStatus `json:"status"      validate:"required,oneof=draft accepted retired"`
	Nodes      []*Node          `json:"nodes"       validate:"required,min=1,dive"`
	Edges      []*Edge          `json:"edges"       validate:"dive"`
	CreatedAt  time.Time        `json:"created_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
}

// ErrInvalidDefinition is the sentinel all definition validation failures
// match via errors.Is.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// DefinitionError describes why a workflow definition was rejected at load
// time. Definition errors are fatal and never retried.
type DefinitionError struct {
	WorkflowID string
	Reason     string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid definition for workflow %s: %s", e.WorkflowID, e.Reason)
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

func (d *Definition) definitionError(format string, args ...any) *DefinitionError {
	return &DefinitionError{WorkflowID: d.WorkflowID, Reason: fmt.Sprintf(format, args...)}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NodeByID returns the node with the given id, or nil.
func (d *Definition) NodeByID(nodeID string) *Node {
	for _, node := range d.Nodes {
		if node.ID == nodeID {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns the edges leaving the given node, in definition order.
func (d *Definition) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range d.Edges {
		if edge.From == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// StartNode returns the single node with no inbound edges. Validate
// guarantees exactly one exists.
func (d *Definition) StartNode() *Node {
	inbound := make(map[string]int, len(d.Nodes))
	for _, edge := range d.Edges {
		inbound[edge.To]++
	}

	for _, node := range d.Nodes {
		if inbound[node.ID] == 0 {
			return node
		}
	}

	return nil
}

// Validate checks structural and graph invariants: unique node ids, a single
// start node, resolvable edges, at least one outgoing edge per non-terminal
// node, terminal reachability, and acyclicity outside bounded remediation
// loops. Any violation is a fatal DefinitionError.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return d.definitionError("struct validation failed: %v", err)
	}

	byID := make(map[string]*Node, len(d.Nodes))

	for _, node := range d.Nodes {
		if _, dup := byID[node.ID]; dup {
			return d.definitionError("duplicate node id %q", node.ID)
		}

		byID[node.ID] = node

		if node.IsTerminal() && node.Outcome == TerminalOutcomeNone {
			return d.definitionError("terminal node %q has no outcome", node.ID)
		}

		if node.RetryPolicy != nil && node.IsTerminal() {
			return d.definitionError("terminal node %q cannot carry a retry policy", node.ID)
		}
	}

	for _, edge := range d.Edges {
		if _, ok := byID[edge.From]; !ok {
			return d.definitionError("edge references unknown node %q", edge.From)
		}

		if _, ok := byID[edge.To]; !ok {
			return d.definitionError("edge references unknown node %q", edge.To)
		}
	}

	if err := d.validateDegrees(byID); err != nil {
		return err
	}

	if err := d.validateRetryTargets(byID); err != nil {
		return err
	}

	if err := d.validateReachability(byID); err != nil {
		return err
	}

	return d.validateCycles(byID)
}

func (d *Definition) validateDegrees(byID map[string]*Node) error {
	inbound := make(map[string]int, len(byID))
	outbound := make(map[string]int, len(byID))

	for _, edge := range d.Edges {
		inbound[edge.To]++
		outbound[edge.From]++
	}

	var startCount int

	for _, node := range d.Nodes {
		if inbound[node.ID] == 0 {
			startCount++

			if node.IsTerminal() {
				return d.definitionError("start node %q cannot be terminal", node.ID)
			}
		}

		if node.IsTerminal() {
			if outbound[node.ID] > 0 {
				return d.definitionError("terminal node %q has outgoing edges", node.ID)
			}

			continue
		}

		if outbound[node.ID] == 0 {
			return d.definitionError("non-terminal node %q has no outgoing edge", node.ID)
		}

		if node.DefaultEdge != "" && !d.hasEdgeWithCondition(node.ID, node.DefaultEdge) {
			return d.definitionError("node %q declares default edge %q but no such edge exists", node.ID, node.DefaultEdge)
		}

		for _, rule := range node.GatingRules {
			if !d.hasEdgeWithCondition(node.ID, rule.Edge) {
				return d.definitionError("node %q gating rule targets missing edge %q", node.ID, rule.Edge)
			}
		}
	}

	if startCount != 1 {
		return d.definitionError("expected exactly one start node, found %d", startCount)
	}

	return nil
}

func (d *Definition) hasEdgeWithCondition(nodeID, condition string) bool {
	for _, edge := range d.OutgoingEdges(nodeID) {
		if edge.Condition == condition {
			return true
		}
	}

	return false
}

func (d *Definition) validateRetryTargets(byID map[string]*Node) error {
	for _, node := range d.Nodes {
		if node.RetryPolicy == nil {
			continue
		}

		failure, ok := byID[node.RetryPolicy.FailureNodeID]
		if !ok {
			return d.definitionError("node %q retry policy targets unknown node %q", node.ID, node.RetryPolicy.FailureNodeID)
		}

		if !failure.IsTerminal() {
			return d.definitionError("node %q retry policy must target a terminal node, got %q", node.ID, failure.ID)
		}
	}

	return nil
}

func (d *Definition) validateReachability(byID map[string]*Node) error {
	start := d.StartNode()
	if start == nil {
		return d.definitionError("no start node")
	}

	visited := make(map[string]bool, len(byID))
	queue := []string{start.ID}
	visited[start.ID] = true

	var terminalReached bool

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if byID[current].IsTerminal() {
			terminalReached = true
		}

		for _, edge := range d.OutgoingEdges(current) {
			if !visited[edge.To] {
				visited[edge.To] = true
				queue = append(queue, edge.To)
			}
		}
	}

	if !terminalReached {
		return d.definitionError("no terminal node reachable from start node %q", start.ID)
	}

	for _, node := range d.Nodes {
		if !visited[node.ID] {
			return d.definitionError("node %q unreachable from start node %q", node.ID, start.ID)
		}
	}

	return nil
}

// validateCycles rejects any cycle that does not pass through a node with a
// bounded retry policy. Remediation loops are the only legal cycles because
// the policy guarantees termination.
func (d *Definition) validateCycles(byID map[string]*Node) error {
	const (
		white = iota
		grey
		black
	)

	color := make(map[string]int, len(byID))

	var visit func(nodeID string, path []string) error

	visit = func(nodeID string, path []string) error {
		color[nodeID] = grey
		path = append(path, nodeID)

		for _, edge := range d.OutgoingEdges(nodeID) {
			switch color[edge.To] {
			case white:
				if err := visit(edge.To, path); err != nil {
					return err
				}
			case grey:
				if !d.cycleIsBounded(path, edge.To) {
					return d.definitionError("unbounded cycle through node %q", edge.To)
				}
			}
		}

		color[nodeID] = black

		return nil
	}

	for _, node := range d.Nodes {
		if color[node.ID] == white {
			if err := visit(node.ID, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *Definition) cycleIsBounded(path []string, entry string) bool {
	inCycle := false

	for _, nodeID := range path {
		if nodeID == entry {
			inCycle = true
		}

		if inCycle {
			if node := d.NodeByID(nodeID); node != nil && node.RetryPolicy != nil {
				return true
			}
		}
	}

	return false
}
