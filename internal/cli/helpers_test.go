package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/mdbook-confluence/internal/clock"
	"github.com/danieljhkim/mdbook-confluence/internal/config"
	"github.com/danieljhkim/mdbook-confluence/internal/fsops"
	"github.com/danieljhkim/mdbook-confluence/internal/remote"
)

const (
	testPassword = "hunter2-s3cret"
	testRootPage = 100
	contextFile  = "/book/render-context.json"
)

// fakePrompter returns a fixed answer.
type fakePrompter struct {
	answer string
	err    error
	asked  int
}

func (p *fakePrompter) Password(string) (string, error) {
	p.asked++
	return p.answer, p.err
}

// harness swaps the CLI's dependencies for in-memory ones.
type harness struct {
	t        *testing.T
	client   *remote.FakeClient
	fs       *fsops.MemFS
	env      map[string]string
	prompter *fakePrompter
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer

	// cfg is the configuration the last client was created with.
	cfg *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		client:   remote.NewFakeClient(),
		fs:       fsops.NewMemFS(),
		env:      map[string]string{config.EnvPassword: testPassword},
		prompter: &fakePrompter{err: errors.New("no terminal")},
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
	}
	h.client.AddPage(testRootPage, 0, "Docs", "", 1)

	origOut, origErrOut := out, errOut
	origFS, origLookup, origClock := fsys, lookupEnv, clk
	origClient, origPrompter := newRemoteClient, newPrompter

	out, errOut = h.stdout, h.stderr
	fsys = h.fs
	lookupEnv = func(key string) (string, bool) {
		v, ok := h.env[key]
		return v, ok
	}
	clk = clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	newRemoteClient = func(cfg *config.Config) (remote.Client, error) {
		c := *cfg
		h.cfg = &c
		return h.client, nil
	}
	newPrompter = func() config.Prompter { return h.prompter }
	resetFlags()

	t.Cleanup(func() {
		out, errOut = origOut, origErrOut
		fsys, lookupEnv, clk = origFS, origLookup, origClock
		newRemoteClient, newPrompter = origClient, origPrompter
		resetFlags()
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		closeLogging()
		logger = discardLogger
	})
	return h
}

var discardLogger = logger

func resetFlags() {
	jsonOutput = false
	logLevel = ""
	logFile = ""
	contextPath = ""
	bookConfigPath = ""
	syncDryRun = false
	planFormat = textFormat
	planOut = ""

	// cobra keeps --help set on the command between Execute calls.
	for _, c := range append([]*cobra.Command{rootCmd}, rootCmd.Commands()...) {
		if f := c.Flags().Lookup("help"); f != nil {
			_ = f.Value.Set("false")
			f.Changed = false
		}
	}
}

// run executes the root command with args, reading the render context from
// stdin when stdin is non-nil.
func (h *harness) run(stdin []byte, args ...string) error {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	resetFlags()

	rootCmd.SetArgs(args)
	rootCmd.SetIn(bytes.NewReader(stdin))
	rootCmd.SetOut(h.stdout)
	rootCmd.SetErr(h.stderr)
	err := rootCmd.Execute()
	closeLogging()
	return err
}

// writeContext stores a render context where --context can find it.
func (h *harness) writeContext(rc map[string]any) {
	h.t.Helper()
	h.fs.SetFile(contextFile, mustJSON(h.t, rc))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func chapter(name, content string, subs ...map[string]any) map[string]any {
	items := make([]any, 0, len(subs))
	for _, s := range subs {
		items = append(items, s)
	}
	return map[string]any{
		"Chapter": map[string]any{
			"name":        name,
			"content":     content,
			"sub_items":   items,
			"path":        strings.ToLower(name) + ".md",
			"source_path": strings.ToLower(name) + ".md",
		},
	}
}

// outputTable returns an enabled [output.confluence] table.
func outputTable() map[string]any {
	return map[string]any{
		"enabled":   true,
		"url":       "https://wiki.example.com",
		"username":  "docs-bot",
		"root_page": testRootPage,
	}
}

// renderContext builds the sample book: Intro, Guide { Setup }.
func renderContext(table map[string]any) map[string]any {
	return renderContextWith(table,
		chapter("Intro", "# Intro\n\nHello.\n"),
		"Separator",
		chapter("Guide", "# Guide\n", chapter("Setup", "# Setup\n\nRun it.\n")),
	)
}

func renderContextWith(table map[string]any, sections ...any) map[string]any {
	cfg := map[string]any{"book": map[string]any{"title": "Docs"}}
	if table != nil {
		cfg["output"] = map[string]any{"confluence": table}
	}
	return map[string]any{
		"version":     "0.4.40",
		"root":        "/book",
		"destination": "/book/book/confluence",
		"book":        map[string]any{"sections": sections},
		"config":      cfg,
	}
}
