package relay_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/relay"
)

// TestEndToEndStageAutomation wires the whole engine together: a stage
// trigger, a condition on the job's priority, and two webhook nodes on the
// condition's branches. Firing a high-priority stage event must call
// exactly the "true" branch webhook once and complete the run.
func TestEndToEndStageAutomation(t *testing.T) {
	var highCalls, lowCalls atomic.Int64
	highSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		highCalls.Add(1)
	}))
	defer highSrv.Close()
	lowSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lowCalls.Add(1)
	}))
	defer lowSrv.Close()

	eng, err := relay.NewInMemoryEngineWithOptions(relay.Options{})
	require.NoError(t, err)

	_, err = relay.NewGraph("escalate-hot-jobs").
		Trigger("t1", "trigger.stage_entered", map[string]any{"stage_id": "S2"}).
		Node("c1", "condition", map[string]any{
			"field": "job.priority", "operator": "equals", "value": "high",
		}).
		Node("a1", "webhook", map[string]any{"url": highSrv.URL}).
		Node("a2", "webhook", map[string]any{"url": lowSrv.URL}).
		Edge("t1", "c1").
		BranchEdge("c1", "a1", "true").
		BranchEdge("c1", "a2", "false").
		Publish(eng)
	require.NoError(t, err)

	require.NoError(t, eng.SaveTrigger(relay.Trigger{
		ID:           "tr-1",
		AutomationID: "escalate-hot-jobs",
		EventKey:     "job.stage_entered",
		Active:       true,
	}))

	ctx := context.Background()
	runIDs, err := eng.Notify(ctx, "job.stage_entered", map[string]any{
		"to_stage_id": "S2",
		"subject":     map[string]any{"type": "job", "id": "j-1"},
		"job":         map[string]any{"id": "j-1", "priority": "high"},
	})
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	require.EqualValues(t, 1, highCalls.Load(), "the true branch webhook fires exactly once")
	require.EqualValues(t, 0, lowCalls.Load(), "the false branch webhook never fires")

	run, err := eng.GetRun(ctx, runIDs[0])
	require.NoError(t, err)
	require.Equal(t, relay.StatusCompleted, run.Status)
	require.Equal(t, 0, run.Pending)
	require.False(t, run.FinishedAt.IsZero())

	events, err := relay.ListEvents(ctx, eng, runIDs[0])
	require.NoError(t, err)
	require.NotEmpty(t, events)
	require.Equal(t, relay.EventType("run.started"), events[0].Type)
}

func TestWebhookSeesRenderedContext(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
	}))
	defer srv.Close()

	eng := relay.NewInMemoryEngine()

	_, err := relay.NewGraph("ping-job").
		Trigger("t1", "trigger.event", nil).
		Node("hook", "webhook", map[string]any{
			"url": srv.URL + "/jobs/{{job.id}}",
		}).
		Edge("t1", "hook").
		Publish(eng)
	require.NoError(t, err)
	require.NoError(t, eng.SaveTrigger(relay.Trigger{
		ID: "tr-1", AutomationID: "ping-job", EventKey: "job.updated", Active: true,
	}))

	_, err = eng.Notify(context.Background(), "job.updated", map[string]any{
		"subject": map[string]any{"type": "job", "id": "j-42"},
		"job":     map[string]any{"id": "j-42"},
	})
	require.NoError(t, err)
	require.Equal(t, "/jobs/j-42", gotPath.Load())
}

func TestLocalRunnerProcessesAsynchronously(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	runner, err := relay.NewLocalRunner(relay.Options{})
	require.NoError(t, err)

	_, err = relay.NewGraph("async-hook").
		Trigger("t1", "trigger.event", nil).
		Node("hook", "webhook", map[string]any{"url": srv.URL}).
		Edge("t1", "hook").
		Publish(runner.Engine)
	require.NoError(t, err)
	require.NoError(t, runner.Engine.SaveTrigger(relay.Trigger{
		ID: "tr-1", AutomationID: "async-hook", EventKey: "job.updated", Active: true,
	}))

	ctx := context.Background()
	require.NoError(t, runner.StartWorkers(ctx, 2))
	defer runner.Stop()

	runIDs, err := runner.Engine.Notify(ctx, "job.updated", map[string]any{
		"subject": map[string]any{"type": "job", "id": "j-1"},
	})
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	require.Eventually(t, func() bool {
		run, err := runner.Engine.GetRun(ctx, runIDs[0])
		return err == nil && run.Status == relay.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	require.EqualValues(t, 1, calls.Load())
}
