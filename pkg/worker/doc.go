// Package worker provides the background worker that drives automation
// runs forward.
//
// Workers consume scheduled node executions from a task queue and hand them
// to a node executor, which performs the dedupe check, renders the node's
// config, invokes its runner, and advances the run's pending counter. They
// are lightweight and easy to embed in existing services, and multiple
// workers can safely consume the same queue to scale processing.
//
// Delivery is at-least-once: a worker crashing mid-task means the queue may
// redeliver it. The executor's dedupe marker makes redelivery safe, so
// workers themselves carry no state and need no coordination.
//
// Most applications construct workers indirectly via the relay package's
// LocalRunner, which wires an engine, a queue, and a worker pool together
// with sensible defaults. Use this package directly when running workers in
// a separate process from the engine that accepts events.
package worker
