package api

// Trigger binds an automation to a domain event key, with optional filter
// criteria matched against the event payload (e.g. a target stage id).
// Triggers are configuration: the engine reads them but never mutates them
// beyond the Active flag.
type Trigger struct {
	ID           string
	AutomationID string

	// EventKey names the domain event this trigger listens for,
	// e.g. "job.stage_entered" or "invoice.created".
	EventKey string

	// Filter holds equality criteria against payload fields. A trigger
	// matches an event when every filter value equals the payload field of
	// the same name. An empty filter matches every event with EventKey.
	Filter map[string]any

	Active bool
}
