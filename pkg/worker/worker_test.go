package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/relay/internal/taskqueue"
	"github.com/petrijr/relay/pkg/api"
)

type captureExecutor struct {
	execs []api.ScheduledExecution
	err   error
}

func (c *captureExecutor) ExecuteNode(ctx context.Context, exec api.ScheduledExecution) error {
	c.execs = append(c.execs, exec)
	return c.err
}

func TestWorker_ProcessOne(t *testing.T) {
	queue := taskqueue.NewInMemoryQueue(4)
	exec := &captureExecutor{}
	w := New(exec, queue)

	ctx := context.Background()
	err := queue.Enqueue(ctx, taskqueue.Task{
		RunID:     "run-1",
		NodeID:    "n1",
		DedupeKey: "key-1",
		Input:     map[string]any{"job": map[string]any{"priority": "high"}},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("ProcessOne failed: %v", err)
	}
	if !processed {
		t.Fatalf("expected a task to be processed")
	}

	if len(exec.execs) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(exec.execs))
	}
	got := exec.execs[0]
	if got.RunID != "run-1" || got.NodeID != "n1" || got.DedupeKey != "key-1" {
		t.Fatalf("task fields did not carry over: %+v", got)
	}
	if job, ok := got.Input["job"].(map[string]any); !ok || job["priority"] != "high" {
		t.Fatalf("input context did not carry over: %+v", got.Input)
	}
}

func TestWorker_ProcessOneCancelled(t *testing.T) {
	queue := taskqueue.NewInMemoryQueue(4)
	w := New(&captureExecutor{}, queue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processed, err := w.ProcessOne(ctx)
	if processed {
		t.Fatalf("nothing should be processed after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWorker_RunReportsExecutorErrors(t *testing.T) {
	queue := taskqueue.NewInMemoryQueue(4)
	exec := &captureExecutor{err: errors.New("store unavailable")}
	w := New(exec, queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Enqueue(ctx, taskqueue.Task{RunID: "run-1", NodeID: "n1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	errs := make(chan error, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(err error) {
			select {
			case errs <- err:
			default:
			}
		})
	}()

	select {
	case err := <-errs:
		if err == nil || err.Error() != "store unavailable" {
			t.Fatalf("unexpected executor error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for executor error")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancellation")
	}
}
