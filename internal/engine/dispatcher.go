package engine

import (
	"context"
	"errors"

	"github.com/petrijr/relay/internal/execctx"
	"github.com/petrijr/relay/internal/persistence"
	"github.com/petrijr/relay/internal/template"
	"github.com/petrijr/relay/pkg/api"
)

// Notify matches the event against active triggers and launches a run per
// applicable trigger. Each trigger launches against its automation's latest
// published version; which definition "latest" is gets resolved at launch
// time, not when the trigger was saved.
func (e *Engine) Notify(ctx context.Context, eventKey string, payload map[string]any) ([]string, error) {
	if eventKey == "" {
		return nil, &api.ValidationError{Reason: "event key must not be empty"}
	}
	if _, _, ok := execctx.SubjectRef(payload); !ok {
		return nil, &api.ValidationError{Reason: `event payload must carry a "subject" object with "type" and "id"`}
	}

	triggers, err := e.store.Triggers.ActiveTriggers(eventKey)
	if err != nil {
		return nil, err
	}

	var runIDs []string
	for _, trigger := range triggers {
		if !filterMatches(trigger.Filter, payload) {
			continue
		}

		def, err := e.store.Definitions.LatestDefinition(trigger.AutomationID)
		if errors.Is(err, persistence.ErrDefinitionNotFound) {
			// A trigger bound to an automation that was never published
			// simply does not apply.
			continue
		}
		if err != nil {
			return runIDs, err
		}

		runID, err := e.launch(ctx, def, payload)
		if err != nil {
			return runIDs, err
		}
		if runID != "" {
			runIDs = append(runIDs, runID)
		}
	}
	return runIDs, nil
}

// filterMatches applies a trigger's event-scoped filter to the payload.
// Values are compared by template string form; the "stage_id" key falls
// back to the payload's "to_stage_id". An empty filter matches everything.
func filterMatches(filter map[string]any, payload map[string]any) bool {
	for key, want := range filter {
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
