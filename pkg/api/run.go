package api

import "time"

// Status represents the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status is one of the two terminal states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Run is one execution instance of a definition version, caused by one
// event occurrence.
//
// Pending is the number of node executions outstanding before the run can
// terminate. It is only ever changed through the store's atomic counter
// update; when it reaches zero the run transitions to StatusCompleted in
// the same operation. Both terminal transitions (completed, failed) are
// final.
type Run struct {
	ID           string
	AutomationID string
	Version      int

	// SubjectType and SubjectID reference the domain entity whose event
	// caused this run (e.g. "job", "invoice").
	SubjectType string
	SubjectID   string

	Status  Status
	Pending int

	// Error holds the recorded cause when Status is StatusFailed.
	Error string

	StartedAt  time.Time
	FinishedAt time.Time
}

// RunListOptions controls how runs are listed.
// Zero values mean "no filter" for that field.
type RunListOptions struct {
	// AutomationID, if non-empty, limits results to runs of the given automation.
	AutomationID string

	// Status, if non-empty, limits results to runs with the given status.
	Status Status
}
