package api

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Node is one typed unit of work (trigger, action, or condition) in an
// automation graph. Config is free-form; the engine only renders it against
// the execution context and hands it to the matching runner.
type Node struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Edge is a directed link between two nodes. Branch optionally names the
// branch outcome the edge belongs to: "true"/"false" on condition nodes,
// "failure" for failure routing. An empty branch means the edge is followed
// on ordinary success.
type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Branch string `json:"branch,omitempty"`
}

// Definition is one published, immutable version of an automation graph.
// Edits never mutate an existing version; publishing produces a new one.
type Definition struct {
	AutomationID string `json:"automation_id"`
	Version      int    `json:"version"`
	Nodes        []Node `json:"nodes"`
	Edges        []Edge `json:"edges"`
}

// ValidationError marks launch-time validation failures (malformed
// definition documents, invalid event payloads) so callers can tell them
// apart from store or transport errors.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "relay: " + e.Reason
}

// ParseDefinition decodes a node/edge document and validates its structural
// shape. The business meaning of node configs is not validated.
func ParseDefinition(doc []byte) (Definition, error) {
	var def Definition
	if err := json.Unmarshal(doc, &def); err != nil {
		return Definition{}, &ValidationError{Reason: "invalid definition document: " + err.Error()}
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks node id uniqueness, non-empty node types, and edge
// referential integrity.
func (d Definition) Validate() error {
	if len(d.Nodes) == 0 {
		return &ValidationError{Reason: "definition has no nodes"}
	}
	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return &ValidationError{Reason: "definition contains a node with an empty id"}
		}
		if n.Type == "" {
			return &ValidationError{Reason: fmt.Sprintf("node %q has an empty type", n.ID)}
		}
		if ids[n.ID] {
			return &ValidationError{Reason: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		ids[n.ID] = true
	}
	for _, e := range d.Edges {
		if !ids[e.From] {
			return &ValidationError{Reason: fmt.Sprintf("edge references unknown node %q", e.From)}
		}
		if !ids[e.To] {
			return &ValidationError{Reason: fmt.Sprintf("edge references unknown node %q", e.To)}
		}
	}
	return nil
}

// NodeByID returns the node with the given id.
func (d Definition) NodeByID(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// EdgesFrom returns all edges leaving the given node, in document order.
func (d Definition) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}
