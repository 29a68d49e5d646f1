package api

import "context"

// OutputResult is the output key condition-style runners use to publish
// their boolean outcome. The walker matches it against edge branch tags.
const OutputResult = "result"

// NodeResult is the outcome of one runner invocation.
type NodeResult struct {
	// Success reports whether the node's side effect succeeded. A false
	// value is a non-fatal per-node failure by default: the walker follows
	// the definition's "failure" branch if one exists, otherwise the path
	// terminates without failing the run.
	Success bool

	// Fatal marks the whole run failed, independent of the pending count.
	// Runners set it when a node is explicitly configured as critical.
	Fatal bool

	// Output is merged into the context available to downstream nodes and
	// recorded under nodes.<id> in the execution context.
	Output map[string]any
}

// Runner is the pluggable implementation executing one node type's side
// effect. Config is the node's config map, already rendered against the
// execution context. Runners must enforce their own call timeout; a stuck
// external call must not block the run's counter protocol indefinitely.
//
// A returned error is treated the same as a non-fatal failure: it is
// recorded on the run's history but does not fail the run.
type Runner interface {
	Run(ctx context.Context, config map[string]any, execCtx map[string]any) (NodeResult, error)
}

// TriggerMatcher is implemented by trigger-category runners. The launcher
// uses Match to decide which trigger nodes of a definition apply to the
// firing event payload; only edges leaving matched trigger nodes seed the
// run's start nodes.
type TriggerMatcher interface {
	Runner

	Match(config map[string]any, payload map[string]any) bool
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, config map[string]any, execCtx map[string]any) (NodeResult, error)

func (f RunnerFunc) Run(ctx context.Context, config map[string]any, execCtx map[string]any) (NodeResult, error) {
	return f(ctx, config, execCtx)
}
