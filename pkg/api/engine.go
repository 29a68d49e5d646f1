package api

import "context"

// Engine is the high-level automation engine API.
type Engine interface {
	// RegisterRunner registers a node runner under its type key. Built-in
	// runners are registered at construction time; RegisterRunner adds or
	// replaces nothing silently; a duplicate key is an error.
	//
	// All runners must be registered before the engine starts accepting
	// events.
	RegisterRunner(typeKey string, r Runner) error

	// PublishDefinition validates the node/edge document and stores it as
	// the next version of the given automation. Published versions are
	// immutable.
	PublishDefinition(automationID string, doc []byte) (Definition, error)

	// LatestDefinition returns the most recently published version.
	LatestDefinition(automationID string) (Definition, error)

	// SaveTrigger creates or updates a trigger binding.
	SaveTrigger(t Trigger) error

	// DeactivateTrigger marks a trigger inactive; inactive triggers are
	// ignored by Notify.
	DeactivateTrigger(id string) error

	// Notify matches the domain event against all active triggers for
	// eventKey and launches a run per matching trigger against the
	// automation's latest published version. It returns the ids of the
	// runs it started; triggers whose definitions don't apply to the
	// payload start no run and produce no error.
	//
	// A malformed payload fails fast with a *ValidationError before any
	// run record is created.
	Notify(ctx context.Context, eventKey string, payload map[string]any) ([]string, error)

	// Launch starts one run of a specific definition version for the given
	// payload. It returns an empty run id (and no error) when no trigger
	// node of the definition matches the payload.
	Launch(ctx context.Context, automationID string, version int, payload map[string]any) (string, error)

	// GetRun looks up a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs matching the given options.
	// If options are zero-valued, all runs are returned.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*Run, error)

	// RecoverStuckRuns scans for runs that are still marked StatusRunning
	// (for example after a process crash) and marks them StatusFailed with
	// a standard error message. It returns the number of runs it updated.
	//
	// This method is intended to be called on process startup *before*
	// starting workers or accepting new events, so that no run is
	// legitimately running when it is executed.
	RecoverStuckRuns(ctx context.Context) (int, error)
}

// HistoryReader allows reading a run's event history.
type HistoryReader interface {
	// ListEvents returns all events for a run in chronological order.
	ListEvents(ctx context.Context, runID string) ([]RunEvent, error)
}

// ScheduledExecution is one at-least-once message telling a worker to
// process a single node of a run. It exists only as a queue entry; the
// dedupe key suppresses the runner side effect on redelivery.
type ScheduledExecution struct {
	RunID     string
	NodeID    string
	DedupeKey string

	// Input is the execution context snapshot the node renders against:
	// the initial context for start nodes, the upstream-merged view for
	// downstream nodes.
	Input map[string]any
}

// NodeExecutor is implemented by engines so queue workers can process
// scheduled node executions directly.
type NodeExecutor interface {
	ExecuteNode(ctx context.Context, exec ScheduledExecution) error
}
