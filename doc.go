// Package relay is an embeddable automation run engine: it reacts to
// domain events, matches them against versioned automation definitions,
// and executes a directed graph of typed action and condition nodes,
// producing side effects such as webhooks and chat messages while tracking
// completion of a fan-out/fan-in execution.
//
// # Model
//
// An automation is a published, immutable, versioned Definition: a set of
// typed nodes and directed edges, optionally tagged with a branch outcome
// ("true"/"false" for condition fan-out, "failure" for failure routing). A
// Trigger binds an automation to a domain event key plus an optional
// payload filter. When Notify receives a matching event, the engine
// launches a Run of the automation's latest version, seeds it with the
// nodes downstream of the matched trigger nodes, and walks the graph until
// the run's pending counter reaches zero.
//
// Node configs are rendered against an immutable execution context with
// {{dotted.path}} placeholders before each node's runner is invoked, and
// every node's output becomes addressable to its successors under
// nodes.<id> as well as merged into the top level.
//
// # Execution modes
//
// An engine without a queue executes nodes inline: Notify returns once the
// runs it started are terminal. With a queue (LocalRunner, NewSQLiteBundle)
// node executions travel through the queue to a worker pool; delivery is
// at-least-once and a per-node dedupe marker guarantees at most one side
// effect per scheduling decision.
//
// Runs terminate exactly once: concurrent workers race on an atomic
// pending-counter update and a single one observes the zero crossing.
//
// # Built-in runners
//
// webhook, chat.message, condition, trigger.event, and
// trigger.stage_entered are registered on every engine. Custom node types
// are added with RegisterRunner before the engine accepts events.
package relay
