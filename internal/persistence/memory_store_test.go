package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/relay/pkg/api"
)

func TestInMemoryStore_DefinitionVersioning(t *testing.T) {
	s := NewInMemoryStore()

	def := api.Definition{
		AutomationID: "auto-1",
		Nodes:        []api.Node{{ID: "t1", Type: "trigger.event"}},
	}

	v1, err := s.PublishDefinition(def)
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)

	v2, err := s.PublishDefinition(def)
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)

	latest, err := s.LatestDefinition("auto-1")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)

	got, err := s.GetDefinition("auto-1", 1)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)

	_, err = s.GetDefinition("auto-1", 3)
	require.ErrorIs(t, err, ErrDefinitionNotFound)

	_, err = s.LatestDefinition("nope")
	require.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestInMemoryStore_Triggers(t *testing.T) {
	s := NewInMemoryStore()

	require.NoError(t, s.SaveTrigger(api.Trigger{
		ID: "tr-1", AutomationID: "auto-1", EventKey: "job.stage_entered", Active: true,
	}))
	require.NoError(t, s.SaveTrigger(api.Trigger{
		ID: "tr-2", AutomationID: "auto-2", EventKey: "invoice.created", Active: true,
	}))

	got, err := s.ActiveTriggers("job.stage_entered")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "tr-1", got[0].ID)

	require.NoError(t, s.DeactivateTrigger("tr-1"))
	got, err = s.ActiveTriggers("job.stage_entered")
	require.NoError(t, err)
	require.Empty(t, got)

	require.ErrorIs(t, s.DeactivateTrigger("missing"), ErrTriggerNotFound)
}

func TestInMemoryStore_AdvancePending(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	run := &api.Run{ID: "run-1", Status: api.StatusRunning, Pending: 1, StartedAt: time.Now()}
	require.NoError(t, s.CreateRun(ctx, run))

	// Completing the only node with two successors: 1 - 1 + 2 = 2.
	pending, status, err := s.AdvancePending(ctx, "run-1", 2)
	require.NoError(t, err)
	require.Equal(t, 2, pending)
	require.Equal(t, api.StatusRunning, status)

	pending, status, err = s.AdvancePending(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Equal(t, 1, pending)
	require.Equal(t, api.StatusRunning, status)

	pending, status, err = s.AdvancePending(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Equal(t, 0, pending)
	require.Equal(t, api.StatusCompleted, status)

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, got.Status)
	require.False(t, got.FinishedAt.IsZero())

	// Terminal runs are reported as-is, not advanced.
	pending, status, err = s.AdvancePending(ctx, "run-1", 5)
	require.NoError(t, err)
	require.Equal(t, 0, pending)
	require.Equal(t, api.StatusCompleted, status)
}

func TestInMemoryStore_AdvancePendingUnderflow(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	run := &api.Run{ID: "run-1", Status: api.StatusRunning, Pending: 0, StartedAt: time.Now()}
	require.NoError(t, s.CreateRun(ctx, run))

	_, _, err := s.AdvancePending(ctx, "run-1", 0)
	require.ErrorIs(t, err, ErrPendingUnderflow)
}

// TestInMemoryStore_ConcurrentCompletion hammers the counter with
// concurrent node completions and checks that exactly one of them observes
// the completion transition and that the count never goes negative.
func TestInMemoryStore_ConcurrentCompletion(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	const workers = 64

	run := &api.Run{ID: "run-1", Status: api.StatusRunning, Pending: workers, StartedAt: time.Now()}
	require.NoError(t, s.CreateRun(ctx, run))

	type result struct {
		pending int
		status  api.Status
		err     error
	}

	var wg sync.WaitGroup
	results := make(chan result, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pending, status, err := s.AdvancePending(ctx, "run-1", 0)
			results <- result{pending, status, err}
		}()
	}
	wg.Wait()
	close(results)

	transitions := 0
	for r := range results {
		require.NoError(t, r.err)
		require.GreaterOrEqual(t, r.pending, 0)
		if r.status == api.StatusCompleted && r.pending == 0 {
			transitions++
		}
	}
	require.Equal(t, 1, transitions, "exactly one worker must observe the zero crossing")

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, got.Status)
	require.Equal(t, 0, got.Pending)
}

func TestInMemoryStore_FailRunIsTerminalAndIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	run := &api.Run{ID: "run-1", Status: api.StatusRunning, Pending: 3, StartedAt: time.Now()}
	require.NoError(t, s.CreateRun(ctx, run))

	require.NoError(t, s.FailRun(ctx, "run-1", "boom"))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusFailed, got.Status)
	require.Equal(t, "boom", got.Error)

	// Second failure and later counter updates leave the run untouched.
	require.NoError(t, s.FailRun(ctx, "run-1", "other"))
	got, _ = s.GetRun(ctx, "run-1")
	require.Equal(t, "boom", got.Error)

	pending, status, err := s.AdvancePending(ctx, "run-1", 1)
	require.NoError(t, err)
	require.Equal(t, 3, pending)
	require.Equal(t, api.StatusFailed, status)
}

func TestInMemoryStore_MarkScheduled(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	first, err := s.MarkScheduled(ctx, "run-1", "n1", "key-1")
	require.NoError(t, err)
	require.True(t, first)

	first, err = s.MarkScheduled(ctx, "run-1", "n1", "key-1")
	require.NoError(t, err)
	require.False(t, first, "duplicate delivery must be detected")

	// A different scheduling decision for the same node is distinct.
	first, err = s.MarkScheduled(ctx, "run-1", "n1", "key-2")
	require.NoError(t, err)
	require.True(t, first)
}

func TestInMemoryStore_FailAllRunning(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, &api.Run{ID: "r1", Status: api.StatusRunning, Pending: 1}))
	require.NoError(t, s.CreateRun(ctx, &api.Run{ID: "r2", Status: api.StatusRunning, Pending: 2}))
	require.NoError(t, s.CreateRun(ctx, &api.Run{ID: "r3", Status: api.StatusCompleted}))

	n, err := s.FailAllRunning(ctx, "process restarted")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, _ := s.GetRun(ctx, "r3")
	require.Equal(t, api.StatusCompleted, got.Status)
}

func TestInMemoryStore_ListRuns(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, &api.Run{ID: "r1", AutomationID: "a1", Status: api.StatusRunning}))
	require.NoError(t, s.CreateRun(ctx, &api.Run{ID: "r2", AutomationID: "a1", Status: api.StatusCompleted}))
	require.NoError(t, s.CreateRun(ctx, &api.Run{ID: "r3", AutomationID: "a2", Status: api.StatusCompleted}))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	byAutomation, err := s.ListRuns(ctx, RunFilter{AutomationID: "a1"})
	require.NoError(t, err)
	require.Len(t, byAutomation, 2)

	completed, err := s.ListRuns(ctx, RunFilter{AutomationID: "a1", Status: api.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, "r2", completed[0].ID)
}
