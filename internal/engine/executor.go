package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/relay/internal/execctx"
	"github.com/petrijr/relay/internal/persistence"
	"github.com/petrijr/relay/internal/template"
	"github.com/petrijr/relay/pkg/api"
)

// branchFailure tags edges followed when a node reports a non-fatal
// failure.
const branchFailure = "failure"

// ExecuteNode processes one scheduled node execution: dedupe check, config
// render, runner dispatch, context merge, branch selection, and the atomic
// pending-counter update. It is safe to call concurrently for different
// nodes of the same run and tolerates redelivered messages.
//
// A non-nil error means infrastructure trouble the queue should surface;
// per-node failures are absorbed into the run outcome instead.
func (e *Engine) ExecuteNode(ctx context.Context, exec api.ScheduledExecution) error {
	run, err := e.store.Runs.GetRun(ctx, exec.RunID)
	if errors.Is(err, persistence.ErrRunNotFound) {
		// Stale message for a run that no longer exists.
		return nil
	}
	if err != nil {
		return err
	}

	if run.Status.Terminal() {
		e.appendEvent(ctx, api.RunEvent{
			RunID: run.ID, Type: api.EventNodeSkipped, NodeID: exec.NodeID,
			Detail: "run already " + string(run.Status),
		})
		return nil
	}

	// The marker decides first delivery vs redelivery. A duplicate is
	// dropped without touching the counter: the first delivery already
	// accounted for this scheduling decision.
	first, err := e.store.Runs.MarkScheduled(ctx, exec.RunID, exec.NodeID, exec.DedupeKey)
	if err != nil {
		return err
	}
	if !first {
		e.appendEvent(ctx, api.RunEvent{
			RunID: run.ID, Type: api.EventNodeSkipped, NodeID: exec.NodeID,
			Detail: "duplicate delivery",
		})
		return nil
	}

	def, err := e.store.Definitions.GetDefinition(run.AutomationID, run.Version)
	if err != nil {
		return e.failRun(ctx, run.ID, fmt.Sprintf("definition %s v%d unavailable: %v", run.AutomationID, run.Version, err))
	}

	node, res := e.runNode(ctx, run, def, exec)

	if res.Fatal {
		e.appendEvent(ctx, api.RunEvent{
			RunID: run.ID, Type: api.EventNodeFailed, NodeID: exec.NodeID,
			Detail: nodeDetail(node.Type, res),
		})
		return e.failRun(ctx, run.ID, fmt.Sprintf("node %s failed fatally", exec.NodeID))
	}

	eventType := api.EventNodeCompleted
	if !res.Success {
		eventType = api.EventNodeFailed
	}
	e.appendEvent(ctx, api.RunEvent{
		RunID: run.ID, Type: eventType, NodeID: exec.NodeID,
		Detail: nodeDetail(node.Type, res),
	})

	merged, err := execctx.Merge(exec.Input, exec.NodeID, res.Output)
	if err != nil {
		return e.failRun(ctx, run.ID, fmt.Sprintf("merging output of node %s: %v", exec.NodeID, err))
	}

	next := nextNodeIDs(def, exec.NodeID, res)

	// Single atomic update: -1 for this node, +len(next) for its
	// successors. Scheduling happens only after the counter already
	// accounts for the successors, so the run can never complete while
	// work is still being handed out.
	pending, status, err := e.store.Runs.AdvancePending(ctx, run.ID, len(next))
	if err != nil {
		if errors.Is(err, persistence.ErrPendingUnderflow) {
			return e.failRun(ctx, run.ID, "pending count underflow: "+exec.NodeID)
		}
		return err
	}

	if status != api.StatusRunning {
		if status == api.StatusCompleted && pending == 0 {
			e.finalizeCompleted(ctx, run.ID)
		}
		return nil
	}

	for _, nodeID := range next {
		succ := api.ScheduledExecution{
			RunID:     run.ID,
			NodeID:    nodeID,
			DedupeKey: uuid.NewString(),
			Input:     merged,
		}
		e.appendEvent(ctx, api.RunEvent{RunID: run.ID, Type: api.EventNodeScheduled, NodeID: nodeID})
		if err := e.schedule(ctx, succ); err != nil {
			if ferr := e.failRun(ctx, run.ID, fmt.Sprintf("scheduling node %s: %v", nodeID, err)); ferr != nil {
				return ferr
			}
			return fmt.Errorf("scheduling node %s: %w", nodeID, err)
		}
	}
	return nil
}

// runNode resolves, renders, and invokes the node's runner. Unknown nodes,
// unknown runner types, returned errors, and runner panics all collapse
// into a non-fatal failure result.
func (e *Engine) runNode(ctx context.Context, run *api.Run, def api.Definition, exec api.ScheduledExecution) (api.Node, api.NodeResult) {
	node, ok := def.NodeByID(exec.NodeID)
	if !ok {
		return node, api.NodeResult{
			Success: false,
			Output:  map[string]any{"error": "unknown node id " + exec.NodeID},
		}
	}

	runner, err := e.registry.Resolve(node.Type)
	if err != nil {
		return node, api.NodeResult{
			Success: false,
			Output:  map[string]any{"error": err.Error()},
		}
	}

	rendered := template.RenderConfig(node.Config, exec.Input)

	e.observer.OnNodeStart(ctx, run, node.ID, node.Type)
	started := time.Now()
	res, err := invokeRunner(ctx, runner, rendered, exec.Input)
	if err != nil {
		res = api.NodeResult{
			Success: false,
			Output:  map[string]any{"error": err.Error()},
		}
	}
	if res.Output == nil {
		res.Output = map[string]any{}
	}
	e.observer.OnNodeCompleted(ctx, run, node.ID, node.Type, res, time.Since(started))
	return node, res
}

// invokeRunner shields the walker from panicking runners. A panic becomes
// a non-fatal failure so one bad custom runner cannot take the worker down.
func invokeRunner(ctx context.Context, r api.Runner, config, input map[string]any) (res api.NodeResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = api.NodeResult{}
			err = fmt.Errorf("runner panic: %v", p)
		}
	}()
	return r.Run(ctx, config, input)
}

// nextNodeIDs selects the successor set for one node outcome:
//
//   - failure with "failure"-tagged edges present: those edges
//   - a boolean under the "result" output key: edges whose branch tag
//     equals the boolean's string form (condition fan-out)
//   - ordinary success: all untagged edges
//   - failure without failure routing: the path terminates
func nextNodeIDs(def api.Definition, nodeID string, res api.NodeResult) []string {
	edges := def.EdgesFrom(nodeID)

	if !res.Success {
		var failureTargets []string
		for _, edge := range edges {
			if edge.Branch == branchFailure {
				failureTargets = append(failureTargets, edge.To)
			}
		}
		if len(failureTargets) > 0 {
			return dedupe(failureTargets)
		}
	}

	if result, ok := res.Output[api.OutputResult].(bool); ok {
		tag := strconv.FormatBool(result)
		var targets []string
		for _, edge := range edges {
			if edge.Branch == tag {
				targets = append(targets, edge.To)
			}
		}
		return dedupe(targets)
	}

	if !res.Success {
		return nil
	}

	var targets []string
	for _, edge := range edges {
		if edge.Branch == "" {
			targets = append(targets, edge.To)
		}
	}
	return dedupe(targets)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func nodeDetail(nodeType string, res api.NodeResult) string {
	if res.Success {
		return nodeType
	}
	if msg, ok := res.Output["error"].(string); ok && msg != "" {
		return msg
	}
	return nodeType + ": failed"
}

// failRun marks the run failed and reports it. It is the single fatal exit
// path shared by the launcher and the executor.
func (e *Engine) failRun(ctx context.Context, runID, cause string) error {
	if err := e.store.Runs.FailRun(ctx, runID, cause); err != nil {
		return err
	}
	e.appendEvent(ctx, api.RunEvent{RunID: runID, Type: api.EventRunFailed, Detail: cause})
	if run, err := e.store.Runs.GetRun(ctx, runID); err == nil {
		e.observer.OnRunFailed(ctx, run, errors.New(cause))
	}
	return nil
}

// finalizeCompleted reports the completion transition. AdvancePending
// guarantees exactly one caller reaches this per run.
func (e *Engine) finalizeCompleted(ctx context.Context, runID string) {
	e.appendEvent(ctx, api.RunEvent{RunID: runID, Type: api.EventRunCompleted})
	if run, err := e.store.Runs.GetRun(ctx, runID); err == nil {
		e.observer.OnRunCompleted(ctx, run)
	}
}
