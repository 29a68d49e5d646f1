// Package engine implements the automation run engine: trigger dispatch,
// run launching, and the graph walker executing scheduled node executions.
package engine

import (
	"context"
	"errors"
	"net/http"

	"github.com/petrijr/relay/internal/persistence"
	"github.com/petrijr/relay/internal/runners"
	"github.com/petrijr/relay/internal/taskqueue"
	"github.com/petrijr/relay/pkg/api"
)

// recoveredRunCause is recorded on runs failed by RecoverStuckRuns.
const recoveredRunCause = "recovered: engine restarted while run was in flight"

// Config configures an Engine.
type Config struct {
	// Persistence provides the definition, trigger, run, and event stores.
	// Definitions, Triggers, and Runs are required; a nil Events store
	// disables history recording.
	Persistence persistence.Persistence

	// Queue carries scheduled node executions to workers. When nil the
	// engine executes nodes inline, synchronously, on the calling
	// goroutine; Notify then returns only after the runs it started have
	// reached a terminal state.
	Queue taskqueue.Queue

	// Observer receives run and node lifecycle callbacks. Nil means no
	// observation.
	Observer api.Observer

	// HTTPClient is used by the built-in webhook and chat runners. Nil
	// gets a default client with a 10s timeout.
	HTTPClient *http.Client

	// ChatBaseURL overrides the chat runner's bot API endpoint, mainly
	// for tests.
	ChatBaseURL string
}

// Engine is the automation run engine. It implements api.Engine for the
// configuration and event surface, api.NodeExecutor for queue workers, and
// api.HistoryReader when an event store is configured.
type Engine struct {
	store    persistence.Persistence
	queue    taskqueue.Queue
	observer api.Observer
	registry *runnerRegistry
}

var (
	_ api.Engine        = (*Engine)(nil)
	_ api.NodeExecutor  = (*Engine)(nil)
	_ api.HistoryReader = (*Engine)(nil)
)

// New creates an Engine with the built-in runners registered.
func New(cfg Config) (*Engine, error) {
	if cfg.Persistence.Definitions == nil || cfg.Persistence.Triggers == nil || cfg.Persistence.Runs == nil {
		return nil, errors.New("engine: definition, trigger, and run stores are required")
	}
	if cfg.Persistence.Events == nil {
		cfg.Persistence.Events = persistence.NoopEventStore{}
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}

	e := &Engine{
		store:    cfg.Persistence,
		queue:    cfg.Queue,
		observer: cfg.Observer,
		registry: newRunnerRegistry(),
	}

	builtins := map[string]api.Runner{
		runners.TypeWebhook:      runners.NewWebhook(cfg.HTTPClient),
		runners.TypeChatMessage:  runners.NewChat(cfg.HTTPClient, cfg.ChatBaseURL),
		runners.TypeCondition:    runners.NewCondition(),
		runners.TypeEventTrigger: runners.NewEventTrigger(),
		runners.TypeStageEntered: runners.NewStageEnteredTrigger(),
	}
	for typeKey, r := range builtins {
		if err := e.registry.Register(typeKey, r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// RegisterRunner adds a custom runner. Must be called before the engine
// starts accepting events.
func (e *Engine) RegisterRunner(typeKey string, r api.Runner) error {
	return e.registry.Register(typeKey, r)
}

// PublishDefinition validates doc and stores it as the automation's next
// version.
func (e *Engine) PublishDefinition(automationID string, doc []byte) (api.Definition, error) {
	if automationID == "" {
		return api.Definition{}, &api.ValidationError{Reason: "automation id must not be empty"}
	}
	def, err := api.ParseDefinition(doc)
	if err != nil {
		return api.Definition{}, err
	}
	def.AutomationID = automationID
	return e.store.Definitions.PublishDefinition(def)
}

func (e *Engine) LatestDefinition(automationID string) (api.Definition, error) {
	return e.store.Definitions.LatestDefinition(automationID)
}

func (e *Engine) SaveTrigger(t api.Trigger) error {
	if t.ID == "" || t.AutomationID == "" || t.EventKey == "" {
		return &api.ValidationError{Reason: "trigger id, automation id, and event key are required"}
	}
	return e.store.Triggers.SaveTrigger(t)
}

func (e *Engine) DeactivateTrigger(id string) error {
	return e.store.Triggers.DeactivateTrigger(id)
}

func (e *Engine) GetRun(ctx context.Context, id string) (*api.Run, error) {
	return e.store.Runs.GetRun(ctx, id)
}

func (e *Engine) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	return e.store.Runs.ListRuns(ctx, persistence.RunFilter{
		AutomationID: opts.AutomationID,
		Status:       opts.Status,
	})
}

// RecoverStuckRuns fails every run still marked running. Call it on process
// startup before workers consume the queue.
func (e *Engine) RecoverStuckRuns(ctx context.Context) (int, error) {
	return e.store.Runs.FailAllRunning(ctx, recoveredRunCause)
}

// ListEvents returns a run's recorded history in chronological order.
func (e *Engine) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	return e.store.Events.ListEvents(ctx, runID)
}

// appendEvent records a history event. History is best effort: a failing
// event store never fails the run it describes.
func (e *Engine) appendEvent(ctx context.Context, ev api.RunEvent) {
	_ = e.store.Events.AppendEvent(ctx, ev)
}

// schedule hands one node execution off for processing. With a queue it
// enqueues; without one it executes inline on the calling goroutine.
func (e *Engine) schedule(ctx context.Context, exec api.ScheduledExecution) error {
	if e.queue == nil {
		return e.ExecuteNode(ctx, exec)
	}
	return e.queue.Enqueue(ctx, taskqueue.Task{
		RunID:     exec.RunID,
		NodeID:    exec.NodeID,
		DedupeKey: exec.DedupeKey,
		Input:     exec.Input,
	})
}
