package relay_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/relay"
)

func newBundleDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One shared connection so every statement sees the same :memory:
	// database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteBundleEndToEnd(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	bundle, err := relay.NewSQLiteBundle(newBundleDB(t), relay.Options{})
	require.NoError(t, err)

	_, err = relay.NewGraph("durable-hook").
		Trigger("t1", "trigger.event", nil).
		Node("hook", "webhook", map[string]any{"url": srv.URL}).
		Edge("t1", "hook").
		Publish(bundle.Engine)
	require.NoError(t, err)
	require.NoError(t, bundle.Engine.SaveTrigger(relay.Trigger{
		ID: "tr-1", AutomationID: "durable-hook", EventKey: "job.updated", Active: true,
	}))

	ctx := context.Background()
	runIDs, err := bundle.Engine.Notify(ctx, "job.updated", map[string]any{
		"subject": map[string]any{"type": "job", "id": "j-1"},
	})
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	// The run is created but not executed until a worker drains the queue.
	run, err := bundle.Engine.GetRun(ctx, runIDs[0])
	require.NoError(t, err)
	require.Equal(t, relay.StatusRunning, run.Status)

	deadline := time.Now().Add(10 * time.Second)
	for {
		run, err = bundle.Engine.GetRun(ctx, runIDs[0])
		require.NoError(t, err)
		if run.Status != relay.StatusRunning {
			break
		}
		require.True(t, time.Now().Before(deadline), "run did not terminate in time")

		stepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		processed, perr := bundle.Worker.ProcessOne(stepCtx)
		cancel()
		if perr != nil {
			require.ErrorIs(t, perr, context.DeadlineExceeded)
			continue
		}
		require.True(t, processed)
	}

	require.Equal(t, relay.StatusCompleted, run.Status)
	require.EqualValues(t, 1, calls.Load())

	// History survived in the same database.
	events, err := relay.ListEvents(ctx, bundle.Engine, runIDs[0])
	require.NoError(t, err)
	require.NotEmpty(t, events)
}

func TestSQLiteBundleRecovery(t *testing.T) {
	db := newBundleDB(t)

	bundle, err := relay.NewSQLiteBundle(db, relay.Options{})
	require.NoError(t, err)

	_, err = relay.NewGraph("stuck").
		Trigger("t1", "trigger.event", nil).
		Node("hook", "webhook", map[string]any{"url": "http://127.0.0.1:1/x"}).
		Edge("t1", "hook").
		Publish(bundle.Engine)
	require.NoError(t, err)
	require.NoError(t, bundle.Engine.SaveTrigger(relay.Trigger{
		ID: "tr-1", AutomationID: "stuck", EventKey: "job.updated", Active: true,
	}))

	ctx := context.Background()
	runIDs, err := bundle.Engine.Notify(ctx, "job.updated", map[string]any{
		"subject": map[string]any{"type": "job", "id": "j-1"},
	})
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	// Simulate a restart before any worker processed the queue: startup
	// recovery fails everything still marked running.
	n, err := relay.RecoverStuckRuns(ctx, bundle.Engine)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	run, err := bundle.Engine.GetRun(ctx, runIDs[0])
	require.NoError(t, err)
	require.Equal(t, relay.StatusFailed, run.Status)
	require.NotEmpty(t, run.Error)
}
