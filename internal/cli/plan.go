package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/mdbook-confluence/internal/hash"
	"github.com/danieljhkim/mdbook-confluence/internal/planner"
	"github.com/danieljhkim/mdbook-confluence/internal/sync"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a sync would change",
	Long: `Show what a sync would change without writing to Confluence.

The remote page tree is read and reconciled against the book exactly as sync
does, and the resulting actions are printed in execution order: parents before
children, each with the page version it expects to find.

Examples:
  # Print the plan for a saved render context
  mdbook-confluence plan --context render-context.json

  # Save the plan as YAML
  mdbook-confluence plan --context render-context.json --format yaml --out plan.yaml`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

var (
	planFormat string
	planOut    string
)

// Plan output formats
const (
	textFormat = "text"
	jsonFormat = "json"
	yamlFormat = "yaml"
)

func init() {
	planCmd.Flags().StringVarP(&planFormat, "format", "f", textFormat, "Output format: text, json or yaml")
	planCmd.Flags().StringVarP(&planOut, "out", "o", "", "Write the plan to a file instead of stdout")
}

func runPlan(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(planFormat)
	if jsonOutput {
		format = jsonFormat
	}
	switch format {
	case textFormat, jsonFormat, yamlFormat:
	default:
		return fmt.Errorf("unknown format %q: expected text, json or yaml", planFormat)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	in, err := loadInputs(cmd)
	if err != nil {
		return err
	}
	if !in.cfg.Enabled {
		PrintInfo("Confluence output is disabled, nothing to plan")
		return nil
	}

	syncer, err := newSyncer(in.cfg)
	if err != nil {
		return err
	}
	report, err := syncer.Sync(ctx, newRequest(in, true))
	if err != nil {
		return err
	}
	doc := newPlanDoc(report)

	if planOut == "" {
		return writePlan(out, doc, format, true)
	}

	var buf bytes.Buffer
	if err := writePlan(&buf, doc, format, false); err != nil {
		return err
	}
	if err := fsys.AtomicWrite(planOut, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Wrote plan for %s to %s", PrintCount(len(doc.Actions), "page", "pages"), planOut))
	return nil
}

// planDoc is the serialized form of a plan.
type planDoc struct {
	RootPage      int64          `json:"root_page" yaml:"root_page"`
	ServerVersion string         `json:"server_version,omitempty" yaml:"server_version,omitempty"`
	Summary       planSummary    `json:"summary" yaml:"summary"`
	Actions       []planAction   `json:"actions" yaml:"actions"`
	Untouched     []untouchedDoc `json:"untouched,omitempty" yaml:"untouched,omitempty"`
}

type planSummary struct {
	Create    int `json:"create" yaml:"create"`
	Update    int `json:"update" yaml:"update"`
	Move      int `json:"move" yaml:"move"`
	Skip      int `json:"skip" yaml:"skip"`
	Untouched int `json:"untouched" yaml:"untouched"`
}

type planAction struct {
	Action          string `json:"action" yaml:"action"`
	Page            string `json:"page" yaml:"page"`
	Parent          string `json:"parent,omitempty" yaml:"parent,omitempty"`
	ParentID        int64  `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	PageID          int64  `json:"page_id,omitempty" yaml:"page_id,omitempty"`
	ExpectedVersion int    `json:"expected_version,omitempty" yaml:"expected_version,omitempty"`
	ContentChanged  bool   `json:"content_changed" yaml:"content_changed"`
	Reason          string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Path            string `json:"path,omitempty" yaml:"path,omitempty"`
	Depth           int    `json:"depth" yaml:"depth"`
	Size            int    `json:"size" yaml:"size"`
	Digest          string `json:"digest" yaml:"digest"`
}

type untouchedDoc struct {
	PageID   int64  `json:"page_id" yaml:"page_id"`
	Title    string `json:"title" yaml:"title"`
	ParentID int64  `json:"parent_id" yaml:"parent_id"`
	Version  int    `json:"version" yaml:"version"`
}

func newPlanDoc(r *sync.Report) *planDoc {
	doc := &planDoc{ServerVersion: r.ServerVersion}
	plan := r.Plan
	if plan == nil {
		return doc
	}

	doc.RootPage = plan.AnchorID
	counts := plan.Counts()
	doc.Summary = planSummary{
		Create:    counts[planner.ActionCreate],
		Update:    counts[planner.ActionUpdate],
		Move:      counts[planner.ActionMove],
		Skip:      counts[planner.ActionSkip],
		Untouched: len(plan.Untouched),
	}

	doc.Actions = make([]planAction, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		doc.Actions = append(doc.Actions, planAction{
			Action:          string(a.Kind),
			Page:            a.Identity,
			Parent:          a.ParentIdentity,
			ParentID:        a.ParentID,
			PageID:          a.RemoteID,
			ExpectedVersion: a.ExpectedVersion,
			ContentChanged:  a.ContentChanged,
			Reason:          a.Reason,
			Path:            a.Path,
			Depth:           a.Depth,
			Size:            len(a.Body),
			Digest:          a.Digest,
		})
	}
	for _, p := range plan.Untouched {
		doc.Untouched = append(doc.Untouched, untouchedDoc{
			PageID:   p.ID,
			Title:    p.Title,
			ParentID: p.ParentID,
			Version:  p.Version,
		})
	}
	return doc
}

func writePlan(w io.Writer, doc *planDoc, format string, colored bool) error {
	switch format {
	case jsonFormat:
		s, err := formatJSON(doc)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, s)
		return err
	case yamlFormat:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		writePlanText(w, doc, colored)
		return nil
	}
}

func writePlanText(w io.Writer, doc *planDoc, colored bool) {
	header := pickColor(headerColor, colored)

	_, _ = header.Fprintf(w, "▸ Plan for root page %d\n\n", doc.RootPage)
	if len(doc.Actions) == 0 {
		_, _ = fmt.Fprintln(w, "  The book has no chapters")
	}

	rows := make([][]string, 0, len(doc.Actions))
	for _, a := range doc.Actions {
		parent := a.Parent
		if parent == "" {
			parent = "(root)"
		}
		id, version := "-", "-"
		if a.PageID != 0 {
			id = strconv.FormatInt(a.PageID, 10)
		}
		if a.ExpectedVersion != 0 {
			version = strconv.Itoa(a.ExpectedVersion)
		}
		action := a.Action
		if a.Action == string(planner.ActionMove) && a.ContentChanged {
			action += "+update"
		}
		rows = append(rows, []string{
			action,
			strings.Repeat("  ", a.Depth) + a.Page,
			parent,
			id,
			version,
			humanize.Bytes(uint64(a.Size)),
			hash.Short(a.Digest),
		})
	}
	fprintTable(w, []string{"ACTION", "PAGE", "PARENT", "ID", "VERSION", "SIZE", "DIGEST"}, rows, colored)

	if len(doc.Untouched) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = header.Fprintln(w, "▸ Pages with no chapter (left unchanged)")
		_, _ = fmt.Fprintln(w)
		for _, p := range doc.Untouched {
			_, _ = fmt.Fprintf(w, "  • %s (id %d, version %d)\n", p.Title, p.PageID, p.Version)
		}
	}

	s := doc.Summary
	_, _ = fmt.Fprintln(w)
	summary := fmt.Sprintf("%d to create, %d to update, %d to move, %d unchanged",
		s.Create, s.Update, s.Move, s.Skip)
	summaryColor := pickColor(infoColor, colored)
	if s.Create+s.Update+s.Move == 0 {
		summaryColor = pickColor(successColor, colored)
		summary = "✓ Up to date: " + summary
	}
	_, _ = summaryColor.Fprintln(w, summary)
}

// pickColor returns c, or a color that prints nothing extra when colored is
// false.
func pickColor(c *color.Color, colored bool) *color.Color {
	if colored {
		return c
	}
	return plain
}
