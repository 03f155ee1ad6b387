package confluence

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	username   string
	password   string
	httpClient *http.Client
	timeout    time.Duration
	pageSize   int
	userAgent  string
}

const (
	// DefaultTimeout applies to each HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the number of children requested per listing page.
	DefaultPageSize = 50

	defaultUserAgent = "mdbook-confluence"
)

func defaultConfig() clientConfig {
	return clientConfig{
		timeout:   DefaultTimeout,
		pageSize:  DefaultPageSize,
		userAgent: defaultUserAgent,
	}
}

// WithBasicAuth sets the credentials sent with every request.
func WithBasicAuth(username, password string) Option {
	return func(c *clientConfig) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient replaces the HTTP client. Its Timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		if timeout >= 0 {
			c.timeout = timeout
		}
	}
}

// WithPageSize sets how many children are requested per listing call.
func WithPageSize(size int) Option {
	return func(c *clientConfig) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}
