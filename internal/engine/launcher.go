package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/relay/internal/execctx"
	"github.com/petrijr/relay/pkg/api"
)

// Launch starts one run of a specific definition version. An empty run id
// with a nil error means no trigger node of the definition matched the
// payload, which is a normal "doesn't apply" outcome.
func (e *Engine) Launch(ctx context.Context, automationID string, version int, payload map[string]any) (string, error) {
	if _, _, ok := execctx.SubjectRef(payload); !ok {
		return "", &api.ValidationError{Reason: `event payload must carry a "subject" object with "type" and "id"`}
	}
	def, err := e.store.Definitions.GetDefinition(automationID, version)
	if err != nil {
		return "", err
	}
	return e.launch(ctx, def, payload)
}

// launch runs the start-of-run algorithm: match trigger nodes, build the
// initial context, compute the start-node set, create the run, and schedule
// the start nodes. No run record is created before the payload is known to
// apply.
func (e *Engine) launch(ctx context.Context, def api.Definition, payload map[string]any) (string, error) {
	if err := def.Validate(); err != nil {
		return "", err
	}

	matched := e.matchTriggerNodes(def, payload)
	if len(matched) == 0 {
		return "", nil
	}

	startNodes := startNodeSet(def, matched)
	subjectType, subjectID, _ := execctx.SubjectRef(payload)

	run := &api.Run{
		ID:           uuid.NewString(),
		AutomationID: def.AutomationID,
		Version:      def.Version,
		SubjectType:  subjectType,
		SubjectID:    subjectID,
		Status:       api.StatusRunning,
		Pending:      len(startNodes),
		StartedAt:    time.Now(),
	}

	// Degenerate run: the trigger matched but nothing is downstream.
	if len(startNodes) == 0 {
		run.Status = api.StatusCompleted
		run.FinishedAt = run.StartedAt
	}

	if err := e.store.Runs.CreateRun(ctx, run); err != nil {
		return "", err
	}

	e.observer.OnRunStart(ctx, run)
	e.appendEvent(ctx, api.RunEvent{
		RunID:        run.ID,
		Type:         api.EventRunStarted,
		AutomationID: def.AutomationID,
		Version:      def.Version,
	})

	if run.Status == api.StatusCompleted {
		e.observer.OnRunCompleted(ctx, run)
		e.appendEvent(ctx, api.RunEvent{RunID: run.ID, Type: api.EventRunCompleted})
		return run.ID, nil
	}

	// Every start node receives the same initial snapshot.
	initial := execctx.BuildFromPayload(payload)
	for _, nodeID := range startNodes {
		exec := api.ScheduledExecution{
			RunID:     run.ID,
			NodeID:    nodeID,
			DedupeKey: uuid.NewString(),
			Input:     initial,
		}
		e.appendEvent(ctx, api.RunEvent{RunID: run.ID, Type: api.EventNodeScheduled, NodeID: nodeID})
		if err := e.schedule(ctx, exec); err != nil {
			if ferr := e.failRun(ctx, run.ID, fmt.Sprintf("scheduling node %s: %v", nodeID, err)); ferr != nil {
				return run.ID, ferr
			}
			return run.ID, fmt.Errorf("scheduling node %s: %w", nodeID, err)
		}
	}
	return run.ID, nil
}

// matchTriggerNodes returns the ids of trigger-category nodes whose config
// matches the payload. A node is trigger-category when its registered
// runner implements api.TriggerMatcher; config is matched unrendered.
func (e *Engine) matchTriggerNodes(def api.Definition, payload map[string]any) []string {
	matchers := e.registry.Matchers()

	var matched []string
	for _, node := range def.Nodes {
		m, ok := matchers[node.Type]
		if !ok {
			continue
		}
		if m.Match(node.Config, payload) {
			matched = append(matched, node.ID)
		}
	}
	return matched
}

// startNodeSet is the deduplicated union of edge targets leaving the
// matched trigger nodes, in document order.
func startNodeSet(def api.Definition, triggerIDs []string) []string {
	isTrigger := make(map[string]bool, len(triggerIDs))
	for _, id := range triggerIDs {
		isTrigger[id] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, edge := range def.Edges {
		if !isTrigger[edge.From] || seen[edge.To] {
			continue
		}
		seen[edge.To] = true
		out = append(out, edge.To)
	}
	return out
}
