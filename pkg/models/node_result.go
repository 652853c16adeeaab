package models

import "time"

// NodeStatus defines the possible outcomes of a node invocation.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)

// NodeResult is the artifact an invocation of a generation node produced, or
// the payload a human supplied at an approval gate. Attempt carries the
// per-node attempt counter stamped when the attempt began, so late results
// from superseded attempts can be detected and discarded.
type NodeResult struct {
	NodeID      string         `json:"node_id"`
	Attempt     int            `json:"attempt"`
	Status      NodeStatus     `json:"status"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}
