package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/danieljhkim/mdbook-confluence/internal/fsops"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

// keys lists every option; each gets a default so viper binds its
// environment variable.
var keys = []string{
	"enabled", "url", "username", "password",
	"title_prefix", "root_page", "qualify_titles",
	"concurrency", "max_retries", "retry_initial_interval", "timeout",
	"preserve_order", "server_version",
}

// Loader builds a Config from its sources.
type Loader struct {
	fs     fsops.FS
	lookup func(string) (string, bool)
}

// NewLoader creates a Loader reading files through fs and environment
// variables through lookup (os.LookupEnv when nil).
func NewLoader(fs fsops.FS, lookup func(string) (string, bool)) *Loader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Loader{fs: fs, lookup: lookup}
}

// Sources are the inputs to Load. Both are optional.
type Sources struct {
	// Table is the [output.confluence] table from the render context.
	Table map[string]any

	// BookConfig is a path to a book.toml whose [output.confluence] table
	// overrides Table.
	BookConfig string
}

// Load merges the sources and validates the result.
func (l *Loader) Load(src Sources) (*Config, error) {
	v := viper.New()
	defaults := Defaults()
	setDefaults(v, &defaults)

	passwordInFile := false

	if len(src.Table) > 0 {
		if err := v.MergeConfigMap(src.Table); err != nil {
			return nil, syncerr.NewConfigurationError("", "render context: %v", err)
		}
		_, passwordInFile = src.Table["password"]
	}

	if src.BookConfig != "" {
		table, err := l.readBookConfig(src.BookConfig)
		if err != nil {
			return nil, err
		}
		if table != nil {
			if err := v.MergeConfigMap(table); err != nil {
				return nil, syncerr.NewConfigurationError("", "%s: %v", src.BookConfig, err)
			}
			if _, ok := table["password"]; ok {
				passwordInFile = true
			}
		}
	}

	for _, key := range keys {
		if value, ok := l.lookup(envName(key)); ok {
			v.Set(key, value)
			if key == "password" {
				passwordInFile = false
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, syncerr.NewConfigurationError("", "%v", err)
	}
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	cfg.PasswordInFile = passwordInFile && cfg.Password != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) readBookConfig(path string) (map[string]any, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, syncerr.NewConfigurationError("", "failed to read %s: %v", path, err)
	}

	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, syncerr.NewConfigurationError("", "failed to parse %s: %v", path, err)
	}

	output, ok := doc["output"].(map[string]any)
	if !ok {
		return nil, nil
	}
	table, ok := output[OutputName].(map[string]any)
	if !ok {
		return nil, nil
	}
	return table, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("enabled", d.Enabled)
	v.SetDefault("url", d.URL)
	v.SetDefault("username", d.Username)
	v.SetDefault("password", d.Password)
	v.SetDefault("title_prefix", d.TitlePrefix)
	v.SetDefault("root_page", d.RootPage)
	v.SetDefault("qualify_titles", d.QualifyTitles)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("retry_initial_interval", d.RetryInitialInterval)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("preserve_order", d.PreserveOrder)
	v.SetDefault("server_version", d.ServerVersion)
}

func envName(key string) string {
	return fmt.Sprintf("%s_%s", EnvPrefix, strings.ToUpper(key))
}
