package sync

import (
	"errors"
	"time"

	"github.com/danieljhkim/mdbook-confluence/internal/book"
	"github.com/danieljhkim/mdbook-confluence/internal/executor"
	"github.com/danieljhkim/mdbook-confluence/internal/planner"
	"github.com/danieljhkim/mdbook-confluence/internal/retry"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

// SyncRequest contains parameters for one sync pass.
type SyncRequest struct {
	// Book is the local chapter tree.
	Book *book.Book

	// AnchorID is the page every top-level chapter is placed under.
	AnchorID int64

	// TitlePrefix is prepended to every page title.
	TitlePrefix string

	// QualifyTitles includes ancestor chapter titles in page titles.
	QualifyTitles bool

	// Concurrency bounds in-flight remote calls.
	Concurrency int

	// PreserveOrder creates siblings one at a time, in chapter order.
	PreserveOrder bool

	// Retry is the policy for transient remote failures.
	Retry retry.Policy

	// ServerVersion overrides the version reported by the server. Empty
	// means ask the server.
	ServerVersion string

	// DryRun stops after planning.
	DryRun bool
}

// Failure describes one action that did not succeed.
type Failure struct {
	Identity string
	Action   string

	// PageID is 0 when the page was never created.
	PageID int64

	Status executor.Status
	Err    error
}

// Report summarizes a sync pass.
type Report struct {
	Created int
	Updated int
	Moved   int
	Skipped int
	Failed  int

	// NotAttempted is the subset of Failed that never reached the remote.
	NotAttempted int

	// Failures lists every failed or not attempted action, in plan order.
	Failures []Failure

	Plan     *planner.SyncPlan
	Outcomes []executor.Outcome

	// Aborted is set when execution stopped early.
	Aborted error

	DryRun        bool
	ServerVersion string

	StartedAt time.Time
	Duration  time.Duration
}

// OK reports whether the pass completed without failures.
func (r *Report) OK() bool {
	return r.Failed == 0 && r.Aborted == nil
}

// Total returns the number of planned actions.
func (r *Report) Total() int {
	if r.Plan == nil {
		return 0
	}
	return len(r.Plan.Actions)
}

// IsConflict reports whether a failure was caused by a concurrent remote edit.
func (f *Failure) IsConflict() bool {
	var conflict *syncerr.ConflictError
	return errors.As(f.Err, &conflict)
}
