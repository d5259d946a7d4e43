package model

import "encoding/json"

// NodeResult is the outcome of one context-gathering node. Each slot is set
// exactly once, either with data or with an error string.
type NodeResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ContextBundle is the transient, in-memory result of concurrent gathering:
// a mapping from node name to its result. A bundle with zero successful nodes
// is still a valid, complete result.
type ContextBundle struct {
	Nodes map[string]NodeResult `json:"nodes"`
}

// NewContextBundle returns an empty bundle sized for n nodes.
func NewContextBundle(n int) *ContextBundle {
	return &ContextBundle{Nodes: make(map[string]NodeResult, n)}
}

// Succeeded returns the names of nodes that produced data, in map order.
func (b *ContextBundle) Succeeded() []string {
	var names []string
	for name, res := range b.Nodes {
		if res.Success {
			names = append(names, name)
		}
	}
	return names
}

// Counts returns the number of succeeded and failed node slots.
func (b *ContextBundle) Counts() (succeeded, failed int) {
	for _, res := range b.Nodes {
		if res.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
