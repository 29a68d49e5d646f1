// Package execctx builds and layers the immutable execution context
// snapshots that node templates render against.
//
// A context is a plain nested map tree. It is always a detached deep copy:
// concurrent node execution can never observe changing upstream state
// mid-run, and merging a node's output produces a new layer instead of
// mutating the shared snapshot.
package execctx

import (
	"dario.cat/mergo"
)

// Subject identifies the triggering domain entity and its snapshotted
// fields.
type Subject struct {
	Type   string
	ID     string
	Fields map[string]any
}

// Build snapshots the subject, its related entities, and the acting user
// into a context tree. Entities are addressable by their name, e.g.
// {{job.priority}} or {{contact.number}}. Node outputs accumulate under
// "nodes" as the run progresses.
func Build(subject Subject, related map[string]map[string]any, actor map[string]any) map[string]any {
	ctx := make(map[string]any, len(related)+3)
	if subject.Type != "" {
		ctx[subject.Type] = normalizeEntity(subject.Type, subject.Fields, subject.ID)
	}
	for name, fields := range related {
		ctx[name] = normalizeEntity(name, fields, "")
	}
	if actor != nil {
		ctx["actor"] = Clone(actor)
	}
	ctx["nodes"] = map[string]any{}
	return ctx
}

// BuildFromPayload derives the initial run context from a domain event
// payload: the full payload snapshot lives under "event", and every
// map-valued payload field is promoted to the top level so templates can
// address entity fields directly ({{job.priority}} for payload
// {"job": {"priority": ...}}).
func BuildFromPayload(payload map[string]any) map[string]any {
	ctx := map[string]any{
		"event": Clone(payload),
	}
	for k, v := range payload {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		ctx[k] = normalizeEntity(k, m, "")
	}
	ctx["nodes"] = map[string]any{}
	return ctx
}

// SubjectRef extracts the subject reference from an event payload.
func SubjectRef(payload map[string]any) (subjectType, subjectID string, ok bool) {
	subject, ok := payload["subject"].(map[string]any)
	if !ok {
		return "", "", false
	}
	subjectType, _ = subject["type"].(string)
	subjectID, _ = subject["id"].(string)
	return subjectType, subjectID, subjectType != "" && subjectID != ""
}

func normalizeEntity(kind string, fields map[string]any, id string) map[string]any {
	out := Clone(fields)
	if id != "" {
		if _, exists := out["id"]; !exists {
			out["id"] = id
		}
	}
	if kind == "contact" {
		applyContactAliases(out)
	}
	return out
}

// applyContactAliases exposes the contact's primary phone under the stable
// "number" alias that message templates are written against.
func applyContactAliases(contact map[string]any) {
	if _, exists := contact["number"]; exists {
		return
	}
	for _, k := range []string{"phone_primary", "mobile", "phone"} {
		if v, exists := contact[k]; exists {
			contact["number"] = v
			return
		}
	}
}

// Merge layers a node's output over the upstream context view and records
// it under nodes.<nodeID>. Neither input map is mutated.
func Merge(base map[string]any, nodeID string, output map[string]any) (map[string]any, error) {
	out := Clone(base)
	if len(output) == 0 {
		return out, nil
	}

	layer := Clone(output)
	if err := mergo.Merge(&out, layer, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, err
	}

	nodes, _ := out["nodes"].(map[string]any)
	if nodes == nil {
		nodes = map[string]any{}
		out["nodes"] = nodes
	}
	nodes[nodeID] = Clone(output)
	return out, nil
}

// Clone deep-copies a context tree. Only maps and slices are copied
// structurally; scalar leaves are shared, which is safe because the engine
// never mutates leaves in place.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
