package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/relay/pkg/api"
)

var (
	// ErrDefinitionNotFound is returned when a definition version is not found.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrTriggerNotFound is returned when a trigger is not found.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")

	// ErrPendingUnderflow is returned when an atomic counter update would
	// drive a run's pending count below zero. It indicates a scheduling
	// bug, never a normal outcome.
	ErrPendingUnderflow = errors.New("pending count underflow")
)

// DefinitionStore handles storage of published definition versions.
// Versions are immutable once published.
type DefinitionStore interface {
	// PublishDefinition stores def as the next version of its automation
	// and returns the stored definition with the assigned version number.
	PublishDefinition(def api.Definition) (api.Definition, error)

	GetDefinition(automationID string, version int) (api.Definition, error)
	LatestDefinition(automationID string) (api.Definition, error)
}

// TriggerStore handles storage of trigger bindings.
type TriggerStore interface {
	SaveTrigger(t api.Trigger) error
	DeactivateTrigger(id string) error

	// ActiveTriggers returns all active triggers bound to the given event key.
	ActiveTriggers(eventKey string) ([]api.Trigger, error)
}

// RunFilter is used to select runs from the store.
// Empty string / zero status mean "no filter" for that field.
type RunFilter struct {
	AutomationID string
	Status       api.Status
}

// RunStore handles storage of runs, their dedupe markers, and the pending
// counter protocol.
type RunStore interface {
	CreateRun(ctx context.Context, run *api.Run) error
	GetRun(ctx context.Context, id string) (*api.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error)

	// AdvancePending applies one node completion to the run's counter:
	// decrement by 1 for the completing node and increment by added for
	// the successors about to be scheduled, as a single atomic update.
	// It returns the pending count and run status observed strictly after
	// the update commits.
	//
	// When the count reaches zero the run transitions to StatusCompleted
	// (finished_at set) inside the same atomic operation, so exactly one
	// caller ever observes the transition. Terminal runs are left
	// untouched and reported as-is.
	AdvancePending(ctx context.Context, runID string, added int) (pending int, status api.Status, err error)

	// FailRun transitions a running run to StatusFailed and records the
	// cause. It is a no-op on runs that are already terminal.
	FailRun(ctx context.Context, runID string, cause string) error

	// FailAllRunning marks every StatusRunning run failed with the given
	// cause and returns how many runs it updated. Intended for crash
	// recovery at process startup.
	FailAllRunning(ctx context.Context, cause string) (int, error)

	// MarkScheduled records the dedupe marker for one scheduled node
	// execution. first is false when the marker already existed, i.e. the
	// delivery is a duplicate and the node's side effect must be skipped.
	MarkScheduled(ctx context.Context, runID, nodeID, key string) (first bool, err error)
}

// Persistence groups the stores an engine needs.
type Persistence struct {
	Definitions DefinitionStore
	Triggers    TriggerStore
	Runs        RunStore
	Events      EventStore
}
