package engine

import (
	"errors"
	"fmt"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// errNoMatchingEdge distinguishes "no rule matched and no default exists"
// (caller-visible as ErrIllegalTransition) from malformed rule
// configuration (ErrGateEvaluation).
var errNoMatchingEdge = errors.New("no matching edge")

// chooseEdge is the gate evaluator: a pure function from (node, result,
// state) to an outgoing edge. Gating rules are evaluated in order and the
// first match wins; when none match, the node's default edge is used. A
// node with no rules and a single outgoing edge takes it unconditionally.
func chooseEdge(definition *models.Definition, node *models.Node, result models.NodeResult, state models.ContextState) (*models.Edge, error) {
	edges := definition.OutgoingEdges(node.ID)

	for _, rule := range node.GatingRules {
		matched, err := rule.When.Evaluate(result, state)
		if err != nil {
			return nil, &GateEvaluationError{NodeID: node.ID, Reason: err.Error()}
		}

		if !matched {
			continue
		}

		edge := edgeByCondition(edges, rule.Edge)
		if edge == nil {
			return nil, &GateEvaluationError{
				NodeID: node.ID,
				Reason: fmt.Sprintf("rule targets missing edge %q", rule.Edge),
			}
		}

		return edge, nil
	}

	if node.DefaultEdge != "" {
		if edge := edgeByCondition(edges, node.DefaultEdge); edge != nil {
			return edge, nil
		}

		return nil, &GateEvaluationError{
			NodeID: node.ID,
			Reason: fmt.Sprintf("default edge %q does not exist", node.DefaultEdge),
		}
	}

	if len(node.GatingRules) == 0 && len(edges) == 1 {
		return edges[0], nil
	}

	return nil, errNoMatchingEdge
}

func edgeByCondition(edges []*models.Edge, condition string) *models.Edge {
	for _, edge := range edges {
		if edge.Condition == condition {
			return edge
		}
	}

	return nil
}
