// Package config loads the [output.confluence] settings.
//
// Settings are layered, lowest precedence first: built-in defaults, the table
// mdBook passes in the render context, an optional book.toml, and
// MDBOOK_CONFLUENCE_* environment variables. The password may be left out of
// every file and supplied through the environment or an interactive prompt.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/danieljhkim/mdbook-confluence/internal/executor"
	"github.com/danieljhkim/mdbook-confluence/internal/retry"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

const (
	// OutputName is the mdBook backend name, [output.confluence].
	OutputName = "confluence"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MDBOOK_CONFLUENCE"

	// EnvPassword holds the password.
	EnvPassword = EnvPrefix + "_PASSWORD"

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	redacted = "[REDACTED]"
)

// Config holds the backend settings.
type Config struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	URL      string `mapstructure:"url" json:"url"`
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"-"`

	TitlePrefix   string `mapstructure:"title_prefix" json:"title_prefix"`
	RootPage      int64  `mapstructure:"root_page" json:"root_page"`
	QualifyTitles bool   `mapstructure:"qualify_titles" json:"qualify_titles"`

	Concurrency          int           `mapstructure:"concurrency" json:"concurrency"`
	MaxRetries           int           `mapstructure:"max_retries" json:"max_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" json:"retry_initial_interval"`
	Timeout              time.Duration `mapstructure:"timeout" json:"timeout"`
	PreserveOrder        bool          `mapstructure:"preserve_order" json:"preserve_order"`

	// ServerVersion overrides the version reported by the server.
	ServerVersion string `mapstructure:"server_version" json:"server_version,omitempty"`

	// PasswordInFile is set when the password came from book.toml or the
	// render context rather than the environment.
	PasswordInFile bool `mapstructure:"-" json:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Enabled:              false,
		Concurrency:          executor.DefaultConcurrency,
		MaxRetries:           retry.DefaultMaxRetries,
		RetryInitialInterval: retry.DefaultInitialInterval,
		Timeout:              DefaultTimeout,
		PreserveOrder:        true,
	}
}

// Validate checks an enabled configuration. The password is not checked; it
// may still be prompted for.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.URL == "" {
		return syncerr.NewConfigurationError("url", "is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return syncerr.NewConfigurationError("url", "must be an http or https URL")
	}
	if u.User != nil {
		return syncerr.NewConfigurationError("url", "must not contain credentials")
	}
	if c.Username == "" {
		return syncerr.NewConfigurationError("username", "is required")
	}
	if c.RootPage <= 0 {
		return syncerr.NewConfigurationError("root_page", "must be a positive page id, got %d", c.RootPage)
	}
	if c.Concurrency < 1 {
		return syncerr.NewConfigurationError("concurrency", "must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxRetries < 0 {
		return syncerr.NewConfigurationError("max_retries", "must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryInitialInterval <= 0 {
		return syncerr.NewConfigurationError("retry_initial_interval", "must be positive, got %s", c.RetryInitialInterval)
	}
	if c.Timeout < 0 {
		return syncerr.NewConfigurationError("timeout", "must not be negative, got %s", c.Timeout)
	}
	if c.ServerVersion != "" {
		if _, err := semver.NewVersion(c.ServerVersion); err != nil {
			return syncerr.NewConfigurationError("server_version", "%q is not a version", c.ServerVersion)
		}
	}
	return nil
}

// RetryPolicy returns the retry policy for remote calls.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = c.MaxRetries
	p.InitialInterval = c.RetryInitialInterval
	return p
}

// Redacted returns a copy safe to log or print.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = redacted
	}
	return c
}

// String formats the configuration without the password.
func (c Config) String() string {
	r := c.Redacted()
	return fmt.Sprintf("{enabled:%v url:%s username:%s password:%s title_prefix:%q root_page:%d "+
		"qualify_titles:%v concurrency:%d max_retries:%d retry_initial_interval:%s timeout:%s preserve_order:%v}",
		r.Enabled, r.URL, r.Username, r.Password, r.TitlePrefix, r.RootPage,
		r.QualifyTitles, r.Concurrency, r.MaxRetries, r.RetryInitialInterval, r.Timeout, r.PreserveOrder)
}

// GoString keeps %#v from printing the password.
func (c Config) GoString() string {
	return "config.Config" + c.String()
}
