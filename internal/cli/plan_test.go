package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/mdbook-confluence/internal/content"
	"github.com/danieljhkim/mdbook-confluence/internal/remote"
)

// seedPartial leaves Intro current, Guide stale, Setup missing and one page
// with no chapter.
func seedPartial(h *harness) {
	intro := content.NewPackager(h.client.Version, nil).Package("Intro", "# Intro\n\nHello.\n")
	h.client.AddPage(200, testRootPage, "Intro", intro, 1)
	h.client.AddPage(201, testRootPage, "Guide", "old text", 4)
	h.client.AddPage(900, testRootPage, "Archive", "kept", 2)
	h.writeContext(renderContext(outputTable()))
}

func TestPlan_Text(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))

	if err := h.run(nil, "plan", "--context", contextFile); err != nil {
		t.Fatalf("plan: %v", err)
	}

	output := h.stdout.String()
	for _, want := range []string{"Plan for root page 100", "ACTION", "create", "Intro", "Setup", "(root)", "3 to create"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected plan output to contain %q, got:\n%s", want, output)
		}
	}
	if n := len(h.client.CallsFor(remote.OpCreatePage)); n != 0 {
		t.Errorf("plan must not write, got %d creates", n)
	}
}

func TestPlan_JSON(t *testing.T) {
	h := newHarness(t)
	seedPartial(h)

	if err := h.run(nil, "plan", "--context", contextFile, "--format", "json"); err != nil {
		t.Fatalf("plan: %v", err)
	}

	var doc planDoc
	if err := json.Unmarshal(h.stdout.Bytes(), &doc); err != nil {
		t.Fatalf("decode plan: %v\n%s", err, h.stdout.String())
	}
	if doc.RootPage != testRootPage {
		t.Errorf("expected root page %d, got %d", testRootPage, doc.RootPage)
	}
	want := planSummary{Create: 1, Update: 1, Skip: 1, Untouched: 1}
	if doc.Summary != want {
		t.Errorf("expected summary %+v, got %+v", want, doc.Summary)
	}

	byPage := map[string]planAction{}
	for _, a := range doc.Actions {
		byPage[a.Page] = a
	}
	if a := byPage["Guide"]; a.Action != "update" || a.ExpectedVersion != 4 || !a.ContentChanged {
		t.Errorf("unexpected Guide action %+v", a)
	}
	if a := byPage["Setup"]; a.Action != "create" || a.Parent != "Guide" || a.Size == 0 || len(a.Digest) != 64 {
		t.Errorf("unexpected Setup action %+v", a)
	}
	if a := byPage["Intro"]; a.Action != "skip" || a.Reason != "unchanged" {
		t.Errorf("unexpected Intro action %+v", a)
	}
	if len(doc.Untouched) != 1 || doc.Untouched[0].Title != "Archive" {
		t.Errorf("expected Archive to be untouched, got %+v", doc.Untouched)
	}
}

func TestPlan_GlobalJSONFlag(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))

	if err := h.run(nil, "plan", "--context", contextFile, "--json"); err != nil {
		t.Fatalf("plan: %v", err)
	}
	var doc planDoc
	if err := json.Unmarshal(h.stdout.Bytes(), &doc); err != nil {
		t.Fatalf("--json should select JSON output: %v", err)
	}
	if len(doc.Actions) != 3 {
		t.Errorf("expected 3 actions, got %d", len(doc.Actions))
	}
}

func TestPlan_YAMLToFile(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))

	if err := h.run(nil, "plan", "--context", contextFile, "-f", "yaml", "-o", "/out/plan.yaml"); err != nil {
		t.Fatalf("plan: %v", err)
	}
	data, err := h.fs.ReadFile("/out/plan.yaml")
	if err != nil {
		t.Fatalf("expected plan file: %v", err)
	}

	var doc planDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode yaml: %v\n%s", err, data)
	}
	if doc.Summary.Create != 3 || len(doc.Actions) != 3 {
		t.Errorf("unexpected plan %+v", doc.Summary)
	}
	if doc.Actions[0].Page != "Intro" || doc.Actions[2].Parent != "Guide" {
		t.Errorf("expected book order, got %+v", doc.Actions)
	}
	if !strings.Contains(h.stdout.String(), "Wrote plan for 3 pages") {
		t.Errorf("expected confirmation, got:\n%s", h.stdout.String())
	}
}

func TestPlan_TextToFileHasNoColor(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))

	if err := h.run(nil, "plan", "--context", contextFile, "--out", "/out/plan.txt"); err != nil {
		t.Fatalf("plan: %v", err)
	}
	data, err := h.fs.ReadFile("/out/plan.txt")
	if err != nil {
		t.Fatalf("expected plan file: %v", err)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Error("plan file must not contain color escapes")
	}
	if !strings.Contains(string(data), "3 to create") {
		t.Errorf("unexpected plan file:\n%s", data)
	}
}

func TestPlan_UnknownFormat(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))

	err := h.run(nil, "plan", "--context", contextFile, "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
	if len(h.client.Calls()) != 0 {
		t.Error("expected no remote calls")
	}
}

func TestPlan_UpToDate(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))
	if err := h.run(nil, "--context", contextFile); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if err := h.run(nil, "plan", "--context", contextFile); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "Up to date") {
		t.Errorf("expected up-to-date summary, got:\n%s", h.stdout.String())
	}
}
