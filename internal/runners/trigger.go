package runners

import (
	"context"

	"github.com/petrijr/relay/internal/template"
	"github.com/petrijr/relay/pkg/api"
)

// EventTrigger is the generic trigger node. Match compares every config
// entry against the firing payload by template string form, so numeric ids
// decoded as float64 still match their string config literals. A config key
// absent from the payload is a non-match. An empty config matches any
// payload.
//
// The key "stage_id" is special-cased to the payload's "to_stage_id" field
// so stage definitions read naturally on both sides.
type EventTrigger struct{}

var _ api.TriggerMatcher = (*EventTrigger)(nil)

func NewEventTrigger() *EventTrigger { return &EventTrigger{} }

func (t *EventTrigger) Match(config map[string]any, payload map[string]any) bool {
	for key, want := range config {
		got, ok := payload[key]
		if !ok && key == "stage_id" {
			got, ok = payload["to_stage_id"]
		}
		if !ok {
			return false
		}
		if template.Stringify(want) != template.Stringify(got) {
			return false
		}
	}
	return true
}

// Run is a no-op: a trigger node's work happened when the event matched.
func (t *EventTrigger) Run(ctx context.Context, config map[string]any, execCtx map[string]any) (api.NodeResult, error) {
	return api.NodeResult{Success: true, Output: map[string]any{}}, nil
}

// StageEnteredTrigger matches "subject entered stage" events. It requires
// the config's stage_id to equal the payload's to_stage_id and, when the
// config names a workflow_id, that to match as well.
type StageEnteredTrigger struct{}

var _ api.TriggerMatcher = (*StageEnteredTrigger)(nil)

func NewStageEnteredTrigger() *StageEnteredTrigger { return &StageEnteredTrigger{} }

func (t *StageEnteredTrigger) Match(config map[string]any, payload map[string]any) bool {
	stage := configString(config, "stage_id")
	if stage == "" {
		return false
	}
	if template.Stringify(payload["to_stage_id"]) != stage {
		return false
	}
	if wf := configString(config, "workflow_id"); wf != "" {
		if template.Stringify(payload["workflow_id"]) != wf {
			return false
		}
	}
	return true
}

func (t *StageEnteredTrigger) Run(ctx context.Context, config map[string]any, execCtx map[string]any) (api.NodeResult, error) {
	return api.NodeResult{Success: true, Output: map[string]any{}}, nil
}
