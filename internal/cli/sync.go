package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/mdbook-confluence/internal/confluence"
	"github.com/danieljhkim/mdbook-confluence/internal/sync"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Publish the book to Confluence",
	Long: `Publish the book to Confluence.

This is what mdBook runs: the render context is read from stdin, the page tree
under root_page is read, and every chapter is created, updated or moved so the
remote matches the book. Pages whose content is unchanged are skipped. Pages
under the root page with no matching chapter are reported and left alone.

A page edited on the server after it was read is reported as a conflict and is
not overwritten. Run again to publish over the newer version.

Examples:
  # Run from mdBook (book.toml has [output.confluence] enabled = true)
  mdbook build

  # Re-run against a saved render context
  mdbook-confluence sync --context render-context.json

  # Only show what would change
  mdbook-confluence sync --context render-context.json --dry-run`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var syncDryRun bool

// errSyncFailed is returned when the pass finished with failures, so the
// process exits non-zero after the report is printed.
var errSyncFailed = errors.New("sync finished with failures")

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Plan without writing to Confluence")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	in, err := loadInputs(cmd)
	if err != nil {
		return err
	}
	if !in.cfg.Enabled {
		logger.Info("confluence output is disabled; set enabled = true in [output.confluence]")
		if jsonOutput {
			return outputJSON(reportJSON{Disabled: true})
		}
		PrintInfo("Confluence output is disabled, nothing to do")
		return nil
	}

	syncer, err := newSyncer(in.cfg)
	if err != nil {
		return err
	}

	report, err := syncer.Sync(ctx, newRequest(in, syncDryRun))
	if err != nil {
		if syncerr.IsFatal(err) {
			logger.WithError(err).Error("sync stopped before any page was written")
		}
		return err
	}
	saveRecord(in, report)

	if jsonOutput {
		if err := outputJSON(newReportJSON(report)); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if !report.OK() {
		if report.Aborted != nil {
			return fmt.Errorf("%w: %v", errSyncFailed, report.Aborted)
		}
		return errSyncFailed
	}
	return nil
}

func printReport(r *sync.Report) {
	if r.DryRun {
		PrintSection("Dry run")
	} else {
		PrintSection("Sync")
	}

	PrintLabelValue("Created", strconv.Itoa(r.Created))
	PrintLabelValue("Updated", strconv.Itoa(r.Updated))
	PrintLabelValue("Moved", strconv.Itoa(r.Moved))
	PrintLabelValue("Unchanged", strconv.Itoa(r.Skipped))
	if r.Failed > 0 {
		PrintLabelValueWithColor("Failed", strconv.Itoa(r.Failed), errorColor)
	}
	if r.Plan != nil && len(r.Plan.Untouched) > 0 {
		PrintLabelValue("Untouched", strconv.Itoa(len(r.Plan.Untouched)))
	}
	if r.ServerVersion != "" {
		PrintLabelValue("Server", r.ServerVersion)
	}
	PrintLabelValue("Duration", r.Duration.Round(time.Millisecond).String())

	if r.Total() == 0 {
		PrintEmptyState("The book has no chapters")
	}
	if r.Plan != nil && len(r.Plan.Untouched) > 0 {
		PrintSection("Pages with no chapter (left unchanged)")
		titles := make([]string, 0, len(r.Plan.Untouched))
		for _, p := range r.Plan.Untouched {
			titles = append(titles, fmt.Sprintf("%s (id %d)", p.Title, p.ID))
		}
		PrintList(titles, 1)
	}

	if len(r.Failures) > 0 {
		PrintSection("Failures")
		rows := make([][]string, 0, len(r.Failures))
		for _, f := range r.Failures {
			page := "-"
			if f.PageID != 0 {
				page = strconv.FormatInt(f.PageID, 10)
			}
			reason := string(f.Status)
			if f.IsConflict() {
				reason = "conflict"
			} else if apiErr, ok := confluence.AsAPIError(f.Err); ok {
				reason += fmt.Sprintf(" (HTTP %d)", apiErr.StatusCode)
			}
			msg := ""
			if f.Err != nil {
				msg = f.Err.Error()
			}
			rows = append(rows, []string{f.Action, f.Identity, page, reason, msg})
		}
		PrintTable([]string{"ACTION", "PAGE", "ID", "STATUS", "ERROR"}, rows)
	}

	_, _ = fmt.Fprintln(out)
	switch {
	case r.Aborted != nil:
		PrintError(fmt.Sprintf("Sync aborted: %v", r.Aborted))
	case r.Failed > 0:
		PrintWarning(fmt.Sprintf("%s of %d did not sync", PrintCount(r.Failed, "page", "pages"), r.Total()))
	case r.DryRun && r.Plan != nil && !r.Plan.HasChanges():
		PrintSuccess(fmt.Sprintf("Up to date: %s unchanged", PrintCount(r.Total(), "page", "pages")))
	case r.DryRun:
		PrintSuccess(fmt.Sprintf("Planned %s", PrintCount(r.Total(), "page", "pages")))
	default:
		PrintSuccess(fmt.Sprintf("Synced %s", PrintCount(r.Total(), "page", "pages")))
	}
}

// reportJSON is the --json form of a sync report.
type reportJSON struct {
	Disabled      bool          `json:"disabled,omitempty"`
	DryRun        bool          `json:"dry_run,omitempty"`
	Created       int           `json:"created"`
	Updated       int           `json:"updated"`
	Moved         int           `json:"moved"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	NotAttempted  int           `json:"not_attempted"`
	Untouched     int           `json:"untouched"`
	Failures      []failureJSON `json:"failures,omitempty"`
	Aborted       string        `json:"aborted,omitempty"`
	ServerVersion string        `json:"server_version,omitempty"`
	DurationMS    int64         `json:"duration_ms"`
}

type failureJSON struct {
	Identity string `json:"page"`
	Action   string `json:"action"`
	PageID   int64  `json:"page_id,omitempty"`
	Status   string `json:"status"`
	Conflict bool   `json:"conflict,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newReportJSON(r *sync.Report) reportJSON {
	j := reportJSON{
		DryRun:        r.DryRun,
		Created:       r.Created,
		Updated:       r.Updated,
		Moved:         r.Moved,
		Skipped:       r.Skipped,
		Failed:        r.Failed,
		NotAttempted:  r.NotAttempted,
		ServerVersion: r.ServerVersion,
		DurationMS:    r.Duration.Milliseconds(),
	}
	if r.Plan != nil {
		j.Untouched = len(r.Plan.Untouched)
	}
	if r.Aborted != nil {
		j.Aborted = r.Aborted.Error()
	}
	for _, f := range r.Failures {
		fj := failureJSON{
			Identity: f.Identity,
			Action:   f.Action,
			PageID:   f.PageID,
			Status:   string(f.Status),
			Conflict: f.IsConflict(),
		}
		if f.Err != nil {
			fj.Error = f.Err.Error()
		}
		j.Failures = append(j.Failures, fj)
	}
	return j
}

// commandContext returns a background context when cobra did not provide one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
