// Package taskqueue carries scheduled node executions between the engine
// and its workers. Delivery is at-least-once: the executor's dedupe marker,
// not the queue, is what suppresses duplicate side effects.
package taskqueue

import (
	"context"
	"time"
)

// Task is one scheduled node execution.
type Task struct {
	RunID  string
	NodeID string

	// DedupeKey identifies this scheduling decision. Redelivered copies of
	// the same task carry the same key, so the executor can recognize and
	// skip them.
	DedupeKey string

	// Input is the execution context snapshot the node receives.
	Input map[string]any

	EnqueuedAt time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
