package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/danieljhkim/mdbook-confluence/internal/confluence"
	"github.com/danieljhkim/mdbook-confluence/internal/remote"
	"github.com/danieljhkim/mdbook-confluence/internal/state"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

func TestSync_FromStdin(t *testing.T) {
	h := newHarness(t)

	// mdBook runs the binary with no arguments.
	if err := h.run(mustJSON(t, renderContext(outputTable()))); err != nil {
		t.Fatalf("sync: %v\nstderr:\n%s", err, h.stderr.String())
	}

	for _, title := range []string{"Intro", "Guide", "Setup"} {
		if _, ok := h.client.FindByTitle(title); !ok {
			t.Errorf("expected page %q to be created", title)
		}
	}
	guide, _ := h.client.FindByTitle("Guide")
	setup, _ := h.client.FindByTitle("Setup")
	if setup.ParentID != guide.ID {
		t.Errorf("expected Setup under Guide (%d), got parent %d", guide.ID, setup.ParentID)
	}
	if !strings.Contains(h.stdout.String(), "Synced 3 pages") {
		t.Errorf("expected summary in output, got:\n%s", h.stdout.String())
	}
	if h.cfg.Password != testPassword {
		t.Error("expected the password from the environment")
	}
}

func TestSync_SecondRunChangesNothing(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))

	if err := h.run(nil, "sync", "--context", contextFile); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := h.run(nil, "sync", "--context", contextFile, "--json"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	var report reportJSON
	if err := json.Unmarshal(h.stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, h.stdout.String())
	}
	if report.Skipped != 3 || report.Created+report.Updated+report.Moved != 0 {
		t.Errorf("expected 3 skips on the second run, got %+v", report)
	}
	if n := len(h.client.CallsFor(remote.OpCreatePage)); n != 3 {
		t.Errorf("expected 3 creates in total, got %d", n)
	}
	if n := len(h.client.CallsFor(remote.OpUpdatePage)); n != 0 {
		t.Errorf("expected no updates, got %d", n)
	}
}

func TestSync_Disabled(t *testing.T) {
	h := newHarness(t)
	table := outputTable()
	table["enabled"] = false
	h.writeContext(renderContext(table))

	if err := h.run(nil, "--context", contextFile); err != nil {
		t.Fatalf("disabled sync should succeed, got %v", err)
	}
	if h.cfg != nil || len(h.client.Calls()) != 0 {
		t.Error("expected no connection when disabled")
	}
	if !strings.Contains(h.stdout.String(), "disabled") {
		t.Errorf("expected a disabled notice, got:\n%s", h.stdout.String())
	}
}

func TestSync_NoOutputTable(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(nil))

	if err := h.run(nil, "--context", contextFile); err != nil {
		t.Fatalf("expected success without [output.confluence], got %v", err)
	}
	if len(h.client.Calls()) != 0 {
		t.Error("expected no remote calls")
	}
}

func TestSync_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(map[string]any)
		field string
	}{
		{"missing url", func(m map[string]any) { delete(m, "url") }, "url"},
		{"bad url", func(m map[string]any) { m["url"] = "ftp://wiki" }, "url"},
		{"missing username", func(m map[string]any) { delete(m, "username") }, "username"},
		{"missing root page", func(m map[string]any) { delete(m, "root_page") }, "root_page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			table := outputTable()
			tt.edit(table)
			h.writeContext(renderContext(table))

			err := h.run(nil, "--context", contextFile)
			var cfgErr *syncerr.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cfgErr.Field)
			}
			if len(h.client.Calls()) != 0 {
				t.Error("expected no remote calls")
			}
		})
	}
}

func TestSync_PromptsForPassword(t *testing.T) {
	h := newHarness(t)
	delete(h.env, "MDBOOK_CONFLUENCE_PASSWORD")
	h.prompter.answer = "typed-secret\n"
	h.prompter.err = nil
	h.writeContext(renderContext(outputTable()))

	if err := h.run(nil, "--context", contextFile); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if h.prompter.asked != 1 {
		t.Errorf("expected one prompt, got %d", h.prompter.asked)
	}
	if h.cfg.Password != "typed-secret" {
		t.Errorf("expected the prompted password, got %q", h.cfg.Password)
	}
}

func TestSync_NoPasswordAnywhere(t *testing.T) {
	h := newHarness(t)
	delete(h.env, "MDBOOK_CONFLUENCE_PASSWORD")
	h.writeContext(renderContext(outputTable()))

	err := h.run(nil, "--context", contextFile)
	var cfgErr *syncerr.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "password" {
		t.Fatalf("expected password ConfigurationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "MDBOOK_CONFLUENCE_PASSWORD") {
		t.Errorf("expected the error to name the environment variable, got %v", err)
	}
}

func TestSync_PasswordNeverPrinted(t *testing.T) {
	h := newHarness(t)
	delete(h.env, "MDBOOK_CONFLUENCE_PASSWORD")
	table := outputTable()
	table["password"] = testPassword
	h.writeContext(renderContext(table))
	h.client.Inject(remote.OpCreatePage, "Intro", errors.New("400 bad request"))

	err := h.run(nil, "--context", contextFile, "--log-level", "debug")
	if !errors.Is(err, errSyncFailed) {
		t.Fatalf("expected errSyncFailed, got %v", err)
	}
	combined := h.stdout.String() + h.stderr.String() + err.Error()
	if strings.Contains(combined, testPassword) {
		t.Fatal("password leaked into output")
	}
	if !strings.Contains(h.stderr.String(), "password is stored in a config file") {
		t.Errorf("expected a warning about the stored password, got:\n%s", h.stderr.String())
	}
}

func TestSync_FailuresExitNonZero(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))
	h.client.Inject(remote.OpCreatePage, "Guide", errors.New("400 bad request"))

	err := h.run(nil, "sync", "--context", contextFile, "--json")
	if !errors.Is(err, errSyncFailed) {
		t.Fatalf("expected errSyncFailed, got %v", err)
	}

	var report reportJSON
	if err := json.Unmarshal(h.stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, h.stdout.String())
	}
	if report.Created != 1 {
		t.Errorf("expected Intro to be created, got %+v", report)
	}
	// Guide failed; Setup was never attempted.
	if report.Failed != 2 || report.NotAttempted != 1 {
		t.Errorf("expected 2 failures with 1 not attempted, got %+v", report)
	}
	statuses := map[string]string{}
	for _, f := range report.Failures {
		statuses[f.Identity] = f.Status
	}
	if statuses["Guide"] != "failed" || statuses["Setup"] != "not_attempted" {
		t.Errorf("unexpected failure statuses %v", statuses)
	}
}

func TestSync_FailureShowsHTTPStatus(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))
	h.client.Inject(remote.OpCreatePage, "Guide", &confluence.APIError{
		Method:     "POST",
		Path:       "/rest/api/content",
		StatusCode: 400,
		Message:    "A page with this title already exists",
	})

	err := h.run(nil, "--context", contextFile)
	if !errors.Is(err, errSyncFailed) {
		t.Fatalf("expected errSyncFailed, got %v", err)
	}
	output := h.stdout.String()
	for _, want := range []string{"failed (HTTP 400)", "already exists"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected failure table to contain %q, got:\n%s", want, output)
		}
	}
}

func TestSync_ConflictReported(t *testing.T) {
	h := newHarness(t)
	h.client.AddPage(200, testRootPage, "Intro", "stale body", 3)
	h.client.Inject(remote.OpUpdatePage, "Intro", remote.ErrVersionConflict)
	h.writeContext(renderContext(outputTable()))

	err := h.run(nil, "--context", contextFile)
	if !errors.Is(err, errSyncFailed) {
		t.Fatalf("expected errSyncFailed, got %v", err)
	}
	output := h.stdout.String()
	if !strings.Contains(output, "conflict") || !strings.Contains(output, "Intro") {
		t.Errorf("expected the conflict in the failure table, got:\n%s", output)
	}
	if p, _ := h.client.Page(200); p.Body != "stale body" {
		t.Error("conflicting page must not be overwritten")
	}
}

func TestSync_DryRun(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))

	if err := h.run(nil, "sync", "--context", contextFile, "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	for _, op := range []remote.Op{remote.OpCreatePage, remote.OpUpdatePage, remote.OpMovePage} {
		if n := len(h.client.CallsFor(op)); n != 0 {
			t.Errorf("expected no %s calls in a dry run, got %d", op, n)
		}
	}
	if !strings.Contains(h.stdout.String(), "Planned 3 pages") {
		t.Errorf("expected dry-run summary, got:\n%s", h.stdout.String())
	}
}

func TestSync_DryRunAfterSyncIsUpToDate(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))
	if err := h.run(nil, "--context", contextFile); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if err := h.run(nil, "sync", "--context", contextFile, "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "Up to date: 3 pages unchanged") {
		t.Errorf("expected up-to-date summary, got:\n%s", h.stdout.String())
	}
}

func TestSync_BookConfigOverridesContext(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))
	h.fs.SetFile("/book/book.toml", []byte(`
[book]
title = "Docs"

[output.confluence]
title_prefix = "Handbook: "
`))

	if err := h.run(nil, "--context", contextFile, "--book-config", "/book/book.toml"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := h.client.FindByTitle("Handbook: Setup"); !ok {
		t.Error("expected prefixed titles from book.toml")
	}
}

func TestSync_EnvOverridesConfig(t *testing.T) {
	h := newHarness(t)
	h.env["MDBOOK_CONFLUENCE_TITLE_PREFIX"] = "Env: "
	h.writeContext(renderContext(outputTable()))

	if err := h.run(nil, "--context", contextFile); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := h.client.FindByTitle("Env: Intro"); !ok {
		t.Error("expected the environment prefix to apply")
	}
}

func TestSync_DuplicateTitlesRejected(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContextWith(outputTable(),
		chapter("Notes", "one"),
		chapter("Notes", "two"),
	))

	err := h.run(nil, "--context", contextFile)
	var cfgErr *syncerr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for duplicate titles, got %v", err)
	}
	if n := len(h.client.CallsFor(remote.OpCreatePage)); n != 0 {
		t.Errorf("expected no writes, got %d creates", n)
	}
}

func TestSync_MissingRootPage(t *testing.T) {
	h := newHarness(t)
	table := outputTable()
	table["root_page"] = 999
	h.writeContext(renderContext(table))

	err := h.run(nil, "--context", contextFile)
	var notFound *syncerr.AnchorNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected AnchorNotFoundError, got %v", err)
	}
	if !strings.Contains(h.stderr.String(), "sync stopped before any page was written") {
		t.Errorf("expected a fatal error log, got:\n%s", h.stderr.String())
	}
}

func TestSync_UnsupportedMdBookWarns(t *testing.T) {
	h := newHarness(t)
	rc := renderContext(outputTable())
	rc["version"] = "0.3.7"
	h.writeContext(rc)

	if err := h.run(nil, "--context", contextFile); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(h.stderr.String(), "not supported") {
		t.Errorf("expected a version warning, got:\n%s", h.stderr.String())
	}
}

func TestSync_BadRenderContext(t *testing.T) {
	h := newHarness(t)

	if err := h.run([]byte("{not json")); err == nil {
		t.Fatal("expected a decode error")
	}
	if err := h.run(nil, "--context", "/missing.json"); err == nil {
		t.Fatal("expected a read error")
	}
}

func TestSync_SavesRecord(t *testing.T) {
	h := newHarness(t)
	h.writeContext(renderContext(outputTable()))
	recordPath := "/book/book/confluence/" + state.RecordFile

	if err := h.run(nil, "sync", "--context", contextFile, "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if ok, _ := h.fs.Exists(recordPath); ok {
		t.Fatal("a dry run must not write a record")
	}

	if err := h.run(nil, "sync", "--context", contextFile); err != nil {
		t.Fatalf("sync: %v", err)
	}
	rec, err := state.NewFileStateStore(h.fs, "/book/book/confluence").Load()
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	intro, _ := h.client.FindByTitle("Intro")
	if got := rec.Pages["Intro"]; got.PageID != intro.ID || got.Status != "created" || got.Digest == "" {
		t.Errorf("unexpected Intro record %+v", got)
	}
	if rec.RootPage != testRootPage || len(rec.Pages) != 3 {
		t.Errorf("unexpected record %+v", rec)
	}
}
