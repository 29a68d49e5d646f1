// Package api defines the public contract of the relay automation engine:
// definition documents (nodes and edges), triggers, runs, the runner
// capability interface, observers, and run history events.
//
// The package is deliberately free of engine internals so that runner
// implementations and embedding applications depend only on stable types.
//
// # Event payload contract
//
// Inbound domain events are a (eventKey, payload) pair. The payload shape
// is event-specific, but it must carry a "subject" map with "type" and "id"
// fields referencing the triggering domain entity, plus whatever fields
// trigger filters and trigger node configs reference (e.g. "to_stage_id").
// Map-valued payload fields (such as "job" or "contact") are promoted into
// the execution context and become addressable from templates via dotted
// paths like {{job.priority}}.
package api
