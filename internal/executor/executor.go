// Package executor applies a SyncPlan to the remote.
//
// Each chapter's action starts only after its parent's action has finished and
// the parent's page id is known. Independent subtrees run concurrently; the
// number of in-flight remote calls is bounded by a weighted semaphore.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/danieljhkim/mdbook-confluence/internal/planner"
	"github.com/danieljhkim/mdbook-confluence/internal/remote"
	"github.com/danieljhkim/mdbook-confluence/internal/retry"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

// DefaultConcurrency is the default bound on in-flight remote calls.
const DefaultConcurrency = 4

// Options configures an Executor.
type Options struct {
	// Concurrency bounds in-flight remote calls.
	Concurrency int

	// PreserveOrder dispatches siblings one at a time, in chapter order, so
	// Confluence lists them in the same order as the book.
	PreserveOrder bool

	Retry retry.Policy
}

// Executor applies plans.
type Executor struct {
	client remote.Client
	opts   Options
	log    *logrus.Entry
}

// New creates an Executor.
func New(client remote.Client, opts Options, log *logrus.Entry) *Executor {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Executor{client: client, opts: opts, log: log}
}

// Execute applies every action in the plan and returns one outcome per action,
// in plan order. Per-action failures are recorded in the outcomes and do not
// stop independent subtrees. An authorization failure aborts the run: actions
// not yet started are reported as not attempted and Result.Aborted is set.
func (e *Executor) Execute(ctx context.Context, plan *planner.SyncPlan) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	r := &run{
		exec:     e,
		plan:     plan,
		ctx:      ctx,
		sem:      semaphore.NewWeighted(int64(e.opts.Concurrency)),
		ids:      newResolver(plan.AnchorID),
		outcomes: make([]Outcome, len(plan.Actions)),
		children: make(map[string][]int),
	}
	r.runCtx, r.abort = context.WithCancelCause(ctx)
	defer r.abort(nil)

	for i := range plan.Actions {
		a := &plan.Actions[i]
		r.outcomes[i] = Outcome{Action: a}
		r.children[a.ParentIdentity] = append(r.children[a.ParentIdentity], i)
		if a.Kind != planner.ActionCreate {
			r.ids.set(a.Identity, a.RemoteID)
		}
	}

	r.dispatch("")
	_ = r.g.Wait()

	result := &Result{Outcomes: r.outcomes}
	if cause := context.Cause(r.runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		result.Aborted = cause
	} else if ctx.Err() != nil {
		result.Aborted = ctx.Err()
	}
	return result, nil
}

// run holds the state of one Execute call.
type run struct {
	exec *Executor
	plan *planner.SyncPlan

	// ctx is used for remote calls so in-flight calls finish after an abort.
	ctx context.Context

	// runCtx is canceled on abort; nothing new starts once it is done.
	runCtx context.Context
	abort  context.CancelCauseFunc

	g   errgroup.Group
	sem *semaphore.Weighted
	ids *resolver

	// outcomes[i] is written only by the goroutine running action i.
	outcomes []Outcome

	// children maps a parent identity to its child action indexes, in plan
	// order. Read-only after setup.
	children map[string][]int
}

// dispatch schedules the children of parent.
func (r *run) dispatch(parent string) {
	kids := r.children[parent]
	if len(kids) == 0 {
		return
	}

	if r.exec.opts.PreserveOrder {
		r.g.Go(func() error {
			for _, i := range kids {
				r.runAndDescend(i)
			}
			return nil
		})
		return
	}

	for _, i := range kids {
		r.g.Go(func() error {
			r.runAndDescend(i)
			return nil
		})
	}
}

// runAndDescend runs action i then schedules its children, or marks them not
// attempted when the chapter's page could not be established.
func (r *run) runAndDescend(i int) {
	out := &r.outcomes[i]
	r.runAction(i)

	a := out.Action
	blocked := out.Status == StatusNotAttempted ||
		(out.Status == StatusFailed && a.Kind == planner.ActionCreate)
	if blocked {
		r.skipDescendants(a.Identity, out)
		return
	}
	r.dispatch(a.Identity)
}

func (r *run) skipDescendants(identity string, cause *Outcome) {
	for _, i := range r.children[identity] {
		out := &r.outcomes[i]
		out.Status = StatusNotAttempted
		if cause.Status == StatusNotAttempted {
			out.Err = cause.Err
		} else {
			out.Err = fmt.Errorf("parent %q was not created: %w", identity, cause.Err)
		}
		r.skipDescendants(out.Action.Identity, cause)
	}
}

func (r *run) runAction(i int) {
	out := &r.outcomes[i]
	a := out.Action
	log := r.exec.log.WithFields(logrus.Fields{
		"action":   string(a.Kind),
		"identity": a.Identity,
	})

	if a.Kind == planner.ActionSkip {
		out.Status = StatusSkipped
		out.PageID = a.RemoteID
		out.Version = a.ExpectedVersion
		log.Debug("page unchanged")
		return
	}

	if err := r.runCtx.Err(); err != nil {
		r.notAttempted(out)
		return
	}

	parentID := a.ParentID
	if a.ParentPending() {
		id, ok := r.ids.get(a.ParentIdentity)
		if !ok || id == 0 {
			out.Status = StatusFailed
			out.Err = &syncerr.RemoteWriteError{
				Identity: a.Identity,
				Action:   string(a.Kind),
				PageID:   a.RemoteID,
				Err:      fmt.Errorf("parent %q has no page id", a.ParentIdentity),
			}
			return
		}
		parentID = id
	}

	if err := r.sem.Acquire(r.runCtx, 1); err != nil {
		r.notAttempted(out)
		return
	}
	defer r.sem.Release(1)

	var err error
	switch a.Kind {
	case planner.ActionCreate:
		err = r.create(out, parentID)
	case planner.ActionUpdate:
		err = r.update(out, a.ExpectedVersion)
	case planner.ActionMove:
		err = r.move(out, parentID)
	default:
		err = fmt.Errorf("unknown action kind %q", a.Kind)
	}

	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		if errors.Is(err, remote.ErrUnauthorized) {
			r.abort(fmt.Errorf("authorization rejected: %w", err))
			log.WithError(err).Error("authorization rejected, aborting")
			return
		}
		log.WithField("page_id", a.RemoteID).WithError(err).Error("action failed")
		return
	}

	log.WithFields(logrus.Fields{
		"page_id": out.PageID,
		"version": out.Version,
	}).Infof("page %s", out.Status)
}

func (r *run) notAttempted(out *Outcome) {
	out.Status = StatusNotAttempted
	out.Err = fmt.Errorf("not attempted: %w", context.Cause(r.runCtx))
}

func (r *run) create(out *Outcome, parentID int64) error {
	a := out.Action
	var ref *remote.PageRef
	err := r.retry("create page", func() error {
		var err error
		ref, err = r.exec.client.CreatePage(r.ctx, parentID, a.Identity, a.Body)
		return err
	})
	if err != nil {
		return &syncerr.RemoteWriteError{Identity: a.Identity, Action: string(a.Kind), Err: err}
	}

	r.ids.set(a.Identity, ref.ID)
	out.Status = StatusCreated
	out.PageID = ref.ID
	out.Version = ref.Version
	return nil
}

func (r *run) update(out *Outcome, expectedVersion int) error {
	a := out.Action
	var version int
	err := r.retry("update page", func() error {
		var err error
		version, err = r.exec.client.UpdatePage(r.ctx, a.RemoteID, expectedVersion, a.Identity, a.Body)
		return err
	})
	if err != nil {
		return writeError(a, expectedVersion, err)
	}

	if out.Status == "" {
		out.Status = StatusUpdated
	}
	out.PageID = a.RemoteID
	out.Version = version
	return nil
}

func (r *run) move(out *Outcome, parentID int64) error {
	a := out.Action
	var version int
	err := r.retry("move page", func() error {
		var err error
		version, err = r.exec.client.MovePage(r.ctx, a.RemoteID, a.ExpectedVersion, parentID)
		return err
	})
	if err != nil {
		return writeError(a, a.ExpectedVersion, err)
	}

	out.Status = StatusMoved
	out.PageID = a.RemoteID
	out.Version = version

	if !a.ContentChanged {
		return nil
	}
	return r.update(out, version)
}

func (r *run) retry(op string, fn func() error) error {
	return retry.Do(r.runCtx, r.exec.opts.Retry, r.exec.log, op, fn)
}

func writeError(a *planner.Action, expectedVersion int, err error) error {
	if errors.Is(err, remote.ErrVersionConflict) {
		return &syncerr.ConflictError{
			Identity:        a.Identity,
			Action:          string(a.Kind),
			PageID:          a.RemoteID,
			ExpectedVersion: expectedVersion,
			Err:             err,
		}
	}
	return &syncerr.RemoteWriteError{Identity: a.Identity, Action: string(a.Kind), PageID: a.RemoteID, Err: err}
}

// resolver is the identity to page id table shared by workers.
type resolver struct {
	mu  sync.Mutex
	ids map[string]int64
}

func newResolver(anchorID int64) *resolver {
	return &resolver{ids: map[string]int64{"": anchorID}}
}

func (r *resolver) set(identity string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[identity] = id
}

func (r *resolver) get(identity string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[identity]
	return id, ok
}
