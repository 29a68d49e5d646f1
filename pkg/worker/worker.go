package worker

import (
	"context"

	"github.com/petrijr/relay/internal/taskqueue"
	"github.com/petrijr/relay/pkg/api"
)

// Worker pulls scheduled node executions from a Queue and processes them
// with a NodeExecutor.
type Worker struct {
	executor api.NodeExecutor
	queue    taskqueue.Queue
}

// New creates a new Worker.
func New(executor api.NodeExecutor, queue taskqueue.Queue) *Worker {
	return &Worker{
		executor: executor,
		queue:    queue,
	}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (dequeue error or ctx cancelled)
//   - processed == true: a task was processed; err reports executor trouble.
//
// Per-node failures are part of the run outcome and do not surface here; a
// non-nil error with processed == true means infrastructure trouble the
// caller may want to log or back off on.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	execErr := w.executor.ExecuteNode(ctx, api.ScheduledExecution{
		RunID:     task.RunID,
		NodeID:    task.NodeID,
		DedupeKey: task.DedupeKey,
		Input:     task.Input,
	})
	return true, execErr
}

// Run processes tasks until ctx is cancelled. Dequeue errors other than
// cancellation are returned; executor errors are reported through onError
// when set and processing continues.
func (w *Worker) Run(ctx context.Context, onError func(error)) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if !processed {
				return err
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
