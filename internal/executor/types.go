package executor

import (
	"github.com/danieljhkim/mdbook-confluence/internal/planner"
)

// Status is the result of one action.
type Status string

// Status constants
const (
	StatusCreated      Status = "created"
	StatusUpdated      Status = "updated"
	StatusMoved        Status = "moved"
	StatusSkipped      Status = "skipped"
	StatusFailed       Status = "failed"
	StatusNotAttempted Status = "not_attempted"
)

// Failed reports whether the status counts as a failure.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusNotAttempted
}

// Outcome is the result of applying one action.
type Outcome struct {
	Action *planner.Action
	Status Status

	// PageID is the page the action produced or targeted.
	PageID int64

	// Version is the page version after the action.
	Version int

	Err error
}

// Result is returned by Execute.
type Result struct {
	// Outcomes has one entry per plan action, in plan order.
	Outcomes []Outcome

	// Aborted is the cause when the run stopped early.
	Aborted error
}

// Failures returns the outcomes that failed or were not attempted.
func (r *Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Count returns the number of outcomes with the given status.
func (r *Result) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}
