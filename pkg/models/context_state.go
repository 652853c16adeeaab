package models

// ContextState is the structured payload carried across node invocations.
// It is the sole continuity mechanism between workflow steps: raw
// conversational history is never stored or replayed. SchemaHash stamps the
// schema bundle the state was produced under so drift is detectable later.
type ContextState struct {
	SchemaHash string         `json:"schema_hash,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
}

// NewContextState returns a state seeded with the given values under the
// given schema bundle hash.
func NewContextState(schemaHash string, values map[string]any) ContextState {
	state := ContextState{SchemaHash: schemaHash, Values: make(map[string]any, len(values))}
	for key, value := range values {
		state.Values[key] = value
	}

	return state
}

// Apply merges a node result into the state. Only keys the node declares in
// Contributes are written, last writer wins per key, no deep merge.
func (s *ContextState) Apply(node *Node, result NodeResult) {
	if len(node.Contributes) == 0 || result.Data == nil {
		return
	}

	if s.Values == nil {
		s.Values = make(map[string]any, len(node.Contributes))
	}

	for _, key := range node.Contributes {
		if value, ok := result.Data[key]; ok {
			s.Values[key] = value
		}
	}
}

// Set writes a single key. Used when merging user input payloads, which
// carry no contributing node.
func (s *ContextState) Set(key string, value any) {
	if s.Values == nil {
		s.Values = make(map[string]any, 1)
	}

	s.Values[key] = value
}

// Get reads a single key.
func (s *ContextState) Get(key string) (any, bool) {
	if s.Values == nil {
		return nil, false
	}

	value, ok := s.Values[key]

	return value, ok
}

// Clone returns a shallow copy with an independent value map.
func (s ContextState) Clone() ContextState {
	clone := ContextState{SchemaHash: s.SchemaHash}
	if s.Values != nil {
		clone.Values = make(map[string]any, len(s.Values))
		for key, value := range s.Values {
			clone.Values[key] = value
		}
	}

	return clone
}
