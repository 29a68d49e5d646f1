package runners

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventTrigger_Match(t *testing.T) {
	tr := NewEventTrigger()

	payload := map[string]any{
		"to_stage_id": "S2",
		"workflow_id": "wf-1",
		"subject":     map[string]any{"type": "job", "id": "j-1"},
	}

	require.True(t, tr.Match(map[string]any{}, payload), "empty filter matches any payload")
	require.True(t, tr.Match(map[string]any{"workflow_id": "wf-1"}, payload))
	require.False(t, tr.Match(map[string]any{"workflow_id": "wf-2"}, payload))

	// stage_id reads the payload's to_stage_id.
	require.True(t, tr.Match(map[string]any{"stage_id": "S2"}, payload))
	require.False(t, tr.Match(map[string]any{"stage_id": "S3"}, payload))

	// A key the payload does not carry is a non-match.
	require.False(t, tr.Match(map[string]any{"pipeline_id": "p-1"}, payload))
}

func TestEventTrigger_MatchNumericForms(t *testing.T) {
	tr := NewEventTrigger()

	// Ids decoded from JSON as float64 still match string config literals.
	payload := map[string]any{"to_stage_id": float64(7)}
	require.True(t, tr.Match(map[string]any{"stage_id": "7"}, payload))
}

func TestStageEnteredTrigger_Match(t *testing.T) {
	tr := NewStageEnteredTrigger()

	payload := map[string]any{"to_stage_id": "S2", "workflow_id": "wf-1"}

	require.True(t, tr.Match(map[string]any{"stage_id": "S2"}, payload))
	require.True(t, tr.Match(map[string]any{"stage_id": "S2", "workflow_id": "wf-1"}, payload))
	require.False(t, tr.Match(map[string]any{"stage_id": "S2", "workflow_id": "wf-2"}, payload))
	require.False(t, tr.Match(map[string]any{"stage_id": "S3"}, payload))
	require.False(t, tr.Match(map[string]any{}, payload), "stage_id is required")
}

func TestTriggerRunIsNoop(t *testing.T) {
	res, err := NewEventTrigger().Run(context.Background(), nil, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = NewStageEnteredTrigger().Run(context.Background(), nil, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
}
