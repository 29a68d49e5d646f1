package taskqueue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestSQLiteQueue(t *testing.T) *SQLiteQueue {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	q, err := NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("NewSQLiteQueue failed: %v", err)
	}

	return q
}

func TestSQLiteQueue_EnqueueDequeueFIFO(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	first := Task{
		RunID:     "run-1",
		NodeID:    "n1",
		DedupeKey: "key-1",
		Input: map[string]any{
			"job":   map[string]any{"priority": "high"},
			"nodes": map[string]any{},
		},
	}
	second := Task{RunID: "run-1", NodeID: "n2", DedupeKey: "key-2"}

	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if got := q.Len(); got != 2 {
		t.Fatalf("expected Len 2, got %d", got)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.NodeID != "n1" || got.DedupeKey != "key-1" {
		t.Fatalf("expected n1/key-1 first, got %s/%s", got.NodeID, got.DedupeKey)
	}

	job, ok := got.Input["job"].(map[string]any)
	if !ok || job["priority"] != "high" {
		t.Fatalf("input context did not round-trip: %#v", got.Input)
	}

	got, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.NodeID != "n2" {
		t.Fatalf("expected n2 second, got %s", got.NodeID)
	}
	if got.Input != nil {
		t.Fatalf("expected nil input, got %#v", got.Input)
	}

	if got := q.Len(); got != 0 {
		t.Fatalf("expected empty queue, got Len %d", got)
	}
}

func TestSQLiteQueue_DequeueBlocksUntilCancelled(t *testing.T) {
	q := newTestSQLiteQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatalf("expected context error from Dequeue on empty queue")
	}
}

func TestInMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewInMemoryQueue(4)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Task{RunID: "run-1", NodeID: "n1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.RunID != "run-1" || got.NodeID != "n1" {
		t.Fatalf("unexpected task: %#v", got)
	}
}
