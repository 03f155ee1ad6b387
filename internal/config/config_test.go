package config

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/danieljhkim/mdbook-confluence/internal/fsops"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func validTable() map[string]any {
	return map[string]any{
		"enabled":      true,
		"url":          "https://wiki.example.com/confluence/",
		"username":     "docs-bot",
		"title_prefix": "[Guide] ",
		"root_page":    int64(12345),
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader(fsops.NewMemFS(), env(nil)).Load(Sources{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Defaults()
	if cfg.Enabled {
		t.Error("backend should be disabled by default")
	}
	if cfg.Concurrency != want.Concurrency || cfg.MaxRetries != want.MaxRetries ||
		cfg.RetryInitialInterval != want.RetryInitialInterval || cfg.Timeout != want.Timeout || !cfg.PreserveOrder {
		t.Errorf("unexpected defaults %s", cfg)
	}
}

func TestLoad_RenderContextTable(t *testing.T) {
	cfg, err := NewLoader(fsops.NewMemFS(), env(nil)).Load(Sources{Table: validTable()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "https://wiki.example.com/confluence" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.URL)
	}
	if cfg.RootPage != 12345 || cfg.TitlePrefix != "[Guide] " || cfg.Username != "docs-bot" {
		t.Errorf("unexpected config %s", cfg)
	}
}

func TestLoad_BookConfigOverridesTable(t *testing.T) {
	mfs := fsops.NewMemFS()
	mfs.SetFile("book.toml", []byte(`
[book]
title = "Guide"

[output.confluence]
root_page = "777"
concurrency = 8
retry_initial_interval = "250ms"
timeout = "1m"
qualify_titles = true
preserve_order = false
`))

	cfg, err := NewLoader(mfs, env(nil)).Load(Sources{Table: validTable(), BookConfig: "book.toml"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RootPage != 777 {
		t.Errorf("expected root_page 777, got %d", cfg.RootPage)
	}
	if cfg.Concurrency != 8 || cfg.RetryInitialInterval != 250*time.Millisecond || cfg.Timeout != time.Minute {
		t.Errorf("unexpected tuning %s", cfg)
	}
	if !cfg.QualifyTitles || cfg.PreserveOrder {
		t.Errorf("expected qualify_titles on and preserve_order off, got %s", cfg)
	}
	if cfg.Username != "docs-bot" {
		t.Error("values absent from book.toml should come from the render context")
	}
}

func TestLoad_BookConfigWithoutTable(t *testing.T) {
	mfs := fsops.NewMemFS()
	mfs.SetFile("book.toml", []byte("[book]\ntitle = \"Guide\"\n"))

	cfg, err := NewLoader(mfs, env(nil)).Load(Sources{BookConfig: "book.toml"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Enabled {
		t.Error("expected disabled config")
	}
}

func TestLoad_EnvironmentWins(t *testing.T) {
	table := validTable()
	table["password"] = "from-file"

	cfg, err := NewLoader(fsops.NewMemFS(), env(map[string]string{
		"MDBOOK_CONFLUENCE_ROOT_PAGE": "42",
		"MDBOOK_CONFLUENCE_PASSWORD":  "from-env",
		"MDBOOK_CONFLUENCE_ENABLED":   "true",
	})).Load(Sources{Table: table})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RootPage != 42 {
		t.Errorf("expected root_page from env, got %d", cfg.RootPage)
	}
	if cfg.Password != "from-env" {
		t.Error("expected password from env")
	}
	if cfg.PasswordInFile {
		t.Error("password came from the environment")
	}
}

func TestLoad_PasswordInFileIsFlagged(t *testing.T) {
	table := validTable()
	table["password"] = "hunter2"

	cfg, err := NewLoader(fsops.NewMemFS(), env(nil)).Load(Sources{Table: table})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.PasswordInFile {
		t.Error("expected PasswordInFile")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(map[string]any)
		wantField string
	}{
		{"missing url", func(m map[string]any) { delete(m, "url") }, "url"},
		{"bad scheme", func(m map[string]any) { m["url"] = "ftp://wiki" }, "url"},
		{"credentials in url", func(m map[string]any) { m["url"] = "https://bot:pw@wiki.example.com" }, "url"},
		{"missing username", func(m map[string]any) { delete(m, "username") }, "username"},
		{"missing root page", func(m map[string]any) { delete(m, "root_page") }, "root_page"},
		{"negative root page", func(m map[string]any) { m["root_page"] = -5 }, "root_page"},
		{"zero concurrency", func(m map[string]any) { m["concurrency"] = 0 }, "concurrency"},
		{"negative retries", func(m map[string]any) { m["max_retries"] = -1 }, "max_retries"},
		{"bad server version", func(m map[string]any) { m["server_version"] = "latest" }, "server_version"},
		{"non-numeric root page", func(m map[string]any) { m["root_page"] = "home" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := validTable()
			tt.mutate(table)

			_, err := NewLoader(fsops.NewMemFS(), env(nil)).Load(Sources{Table: table})
			var cfgErr *syncerr.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q (%v)", tt.wantField, cfgErr.Field, err)
			}
			if strings.Contains(err.Error(), "pw@") {
				t.Error("error leaks url credentials")
			}
		})
	}
}

func TestLoad_DisabledSkipsValidation(t *testing.T) {
	_, err := NewLoader(fsops.NewMemFS(), env(nil)).Load(Sources{Table: map[string]any{"enabled": false}})
	if err != nil {
		t.Errorf("disabled config should not be validated: %v", err)
	}
}

func TestLoad_MissingBookConfig(t *testing.T) {
	_, err := NewLoader(fsops.NewMemFS(), env(nil)).Load(Sources{BookConfig: "missing.toml"})
	var cfgErr *syncerr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestLoad_InvalidToml(t *testing.T) {
	mfs := fsops.NewMemFS()
	mfs.SetFile("book.toml", []byte("[output.confluence\nurl = "))

	_, err := NewLoader(mfs, env(nil)).Load(Sources{BookConfig: "book.toml"})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfig_NeverPrintsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Password = "hunter2"

	for _, format := range []string{"%v", "%+v", "%s", "%#v"} {
		if out := fmt.Sprintf(format, cfg); strings.Contains(out, "hunter2") {
			t.Errorf("%s leaks password: %s", format, out)
		}
	}
	if out := fmt.Sprintf("%v", &cfg); strings.Contains(out, "hunter2") {
		t.Errorf("pointer formatting leaks password: %s", out)
	}
	if cfg.Password != "hunter2" {
		t.Error("Redacted must not modify the receiver")
	}
}

func TestConfig_RetryPolicy(t *testing.T) {
	cfg := Defaults()
	cfg.MaxRetries = 5
	cfg.RetryInitialInterval = time.Second

	p := cfg.RetryPolicy()
	if p.MaxRetries != 5 || p.InitialInterval != time.Second {
		t.Errorf("unexpected policy %+v", p)
	}
}
