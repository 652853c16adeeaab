// Package models provides gating rule evaluation for workflow gate nodes.
package models

import (
	"fmt"
)

// RuleKind enumerates the supported gating predicate variants.
type RuleKind string

const (
	RuleKindEquals  RuleKind = "equals"  // Field equals a single value
	RuleKindIn      RuleKind = "in"      // Field is a member of a value set
	RuleKindPresent RuleKind = "present" // Field exists and is non-nil
	RuleKindStatus  RuleKind = "status"  // Node result status equals a value
)

// Rule is one node of the gating rule AST. Rules are data, evaluated by an
// interpreter; they never carry executable code.
type Rule struct {
	Kind   RuleKind `json:"kind"             validate:"required,oneof=equals in present status"`
	Field  string   `json:"field"            validate:"required_unless=Kind status"`
	Value  any      `json:"value,omitempty"`
	Values []any    `json:"values,omitempty"`
}

// GatingRule pairs a predicate with the condition label of the edge taken
// when it matches. Rules are evaluated in order; the first match wins.
type GatingRule struct {
	When Rule   `json:"when"`
	Edge string `json:"edge" validate:"required"`
}

// Evaluate interprets the rule against a node result and the execution's
// context state. Fields resolve against the result data first, falling back
// to context state values.
func (r Rule) Evaluate(result NodeResult, state ContextState) (bool, error) {
	value, present := lookupField(r.Field, result, state)

	switch r.Kind {
	case RuleKindStatus:
		return valuesEqual(string(result.Status), r.Value), nil
	case RuleKindPresent:
		return present && value != nil, nil
	case RuleKindEquals:
		if !present {
			return false, nil
		}

		return valuesEqual(value, r.Value), nil
	case RuleKindIn:
		if !present {
			return false, nil
		}

		for _, candidate := range r.Values {
			if valuesEqual(value, candidate) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("unknown rule kind %q", r.Kind)
	}
}

func lookupField(field string, result NodeResult, state ContextState) (any, bool) {
	if result.Data != nil {
		if value, ok := result.Data[field]; ok {
			return value, true
		}
	}

	if state.Values != nil {
		if value, ok := state.Values[field]; ok {
			return value, true
		}
	}

	return nil, false
}

// valuesEqual compares loosely enough to survive a JSON round trip, where
// all numbers arrive as float64.
func valuesEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == right
	}

	if lf, lok := asFloat(left); lok {
		if rf, rok := asFloat(right); rok {
			return lf == rf
		}

		return false
	}

	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
