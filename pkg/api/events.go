package api

import "time"

// EventType identifies a run history event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventNodeScheduled EventType = "node.scheduled"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"

	// EventNodeSkipped records a duplicate or late delivery that was
	// suppressed (terminal run, or the dedupe marker already existed).
	EventNodeSkipped EventType = "node.skipped"
)

// RunEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type RunEvent struct {
	RunID string
	At    time.Time
	Type  EventType

	// Optional context.
	AutomationID string
	Version      int
	NodeID       string

	// Small, human-oriented details (e.g. node type, error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}
