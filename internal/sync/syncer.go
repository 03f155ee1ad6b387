// Package sync runs one sync pass: it maps chapters to page titles, reads the
// remote tree, plans, executes and reports.
package sync

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/danieljhkim/mdbook-confluence/internal/clock"
	"github.com/danieljhkim/mdbook-confluence/internal/content"
	"github.com/danieljhkim/mdbook-confluence/internal/executor"
	"github.com/danieljhkim/mdbook-confluence/internal/identity"
	"github.com/danieljhkim/mdbook-confluence/internal/planner"
	"github.com/danieljhkim/mdbook-confluence/internal/remote"
	"github.com/danieljhkim/mdbook-confluence/internal/remotetree"
	"github.com/danieljhkim/mdbook-confluence/internal/retry"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

// Syncer orchestrates sync passes against one remote.
type Syncer struct {
	client remote.Client
	clock  clock.Clock
	log    *logrus.Entry
}

// New creates a new Syncer with the specified dependencies.
func New(client remote.Client, clk clock.Clock, log *logrus.Entry) *Syncer {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &Syncer{client: client, clock: clk, log: log}
}

// Sync runs one pass. Fatal errors (configuration, root page, remote read)
// are returned as errors; per-page failures are recorded in the report.
func (s *Syncer) Sync(ctx context.Context, req *SyncRequest) (*Report, error) {
	report := &Report{
		DryRun:    req.DryRun,
		StartedAt: s.clock.Now(),
	}
	defer func() {
		report.Duration = clock.Since(s.clock, report.StartedAt)
	}()

	if req.Book == nil {
		return nil, syncerr.NewConfigurationError("", "no book to sync")
	}
	if req.AnchorID <= 0 {
		return nil, syncerr.NewConfigurationError("root_page", "must be a positive page id, got %d", req.AnchorID)
	}

	entries, err := identity.NewMapper(req.TitlePrefix, req.QualifyTitles).Map(req.Book)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		s.log.Warn("book has no chapters")
	}

	index, err := remotetree.NewReader(s.client, req.Retry, req.Concurrency, s.log).Read(ctx, req.AnchorID)
	if err != nil {
		return nil, err
	}

	report.ServerVersion = s.serverVersion(ctx, req)
	packager := content.NewPackager(report.ServerVersion, s.log)

	plan, err := planner.Reconcile(entries, index, packager)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	report.Plan = plan

	counts := plan.Counts()
	s.log.WithFields(logrus.Fields{
		"create":    counts[planner.ActionCreate],
		"update":    counts[planner.ActionUpdate],
		"move":      counts[planner.ActionMove],
		"skip":      counts[planner.ActionSkip],
		"untouched": len(plan.Untouched),
	}).Info("planned sync")
	if !plan.HasChanges() {
		s.log.Info("remote pages are up to date")
	}

	if req.DryRun {
		report.Created = counts[planner.ActionCreate]
		report.Updated = counts[planner.ActionUpdate]
		report.Moved = counts[planner.ActionMove]
		report.Skipped = counts[planner.ActionSkip]
		return report, nil
	}

	exec := executor.New(s.client, executor.Options{
		Concurrency:   req.Concurrency,
		PreserveOrder: req.PreserveOrder,
		Retry:         req.Retry,
	}, s.log)
	result, err := exec.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	fillReport(report, result)
	return report, nil
}

// serverVersion returns the configured override or asks the server. A failed
// lookup is logged and treated as a current release.
func (s *Syncer) serverVersion(ctx context.Context, req *SyncRequest) string {
	if req.ServerVersion != "" {
		return req.ServerVersion
	}

	var version string
	err := retry.Do(ctx, req.Retry, s.log, "server version", func() error {
		v, err := s.client.ServerVersion(ctx)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		s.log.WithError(err).Warn("could not determine server version, assuming a current release")
		return ""
	}
	s.log.WithField("version", version).Debug("server version")
	return version
}

func fillReport(report *Report, result *executor.Result) {
	report.Outcomes = result.Outcomes
	report.Aborted = result.Aborted

	for _, o := range result.Outcomes {
		switch o.Status {
		case executor.StatusCreated:
			report.Created++
		case executor.StatusUpdated:
			report.Updated++
		case executor.StatusMoved:
			report.Moved++
		case executor.StatusSkipped:
			report.Skipped++
		case executor.StatusFailed:
			report.Failed++
		case executor.StatusNotAttempted:
			report.Failed++
			report.NotAttempted++
		}

		if o.Status.Failed() {
			report.Failures = append(report.Failures, Failure{
				Identity: o.Action.Identity,
				Action:   string(o.Action.Kind),
				PageID:   pageID(o),
				Status:   o.Status,
				Err:      o.Err,
			})
		}
	}
}

func pageID(o executor.Outcome) int64 {
	if o.PageID != 0 {
		return o.PageID
	}
	return o.Action.RemoteID
}
