// Package confluence implements remote.Client against the Confluence Server
// and Data Center REST API.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/danieljhkim/mdbook-confluence/internal/remote"
)

const (
	contentPath  = "/rest/api/content"
	manifestPath = "/rest/applinks/1.0/manifest"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 64 << 20

	// maxErrorMessage caps server messages copied into errors.
	maxErrorMessage = 200
)

// APIError is a non-success response that does not map to one of the remote
// sentinel errors.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.kind }

// Client talks to one Confluence instance. It is safe for concurrent use.
type Client struct {
	base *url.URL
	cfg  clientConfig
	hc   *http.Client

	mu     sync.Mutex
	spaces map[int64]string
}

var _ remote.Client = (*Client)(nil)

// New creates a Client for the instance at baseURL (including any context
// path, e.g. https://wiki.example.com/confluence).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https", u.Redacted())
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", u.Redacted())
	}
	if u.User != nil {
		return nil, fmt.Errorf("invalid url %q: credentials must not be part of the url", u.Redacted())
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		base:   u,
		cfg:    cfg,
		hc:     hc,
		spaces: make(map[int64]string),
	}, nil
}

// BaseURL returns the instance URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// GetPage reads a page with its storage body.
func (c *Client) GetPage(ctx context.Context, id int64) (*remote.Page, error) {
	var entity content
	q := url.Values{"expand": {expandPage}}
	if err := c.do(ctx, http.MethodGet, contentPath+"/"+formatID(id), q, nil, &entity); err != nil {
		return nil, err
	}

	page, err := entity.toPage(0)
	if err != nil {
		return nil, err
	}
	if entity.Space != nil && entity.Space.Key != "" {
		c.rememberSpace(page.ID, entity.Space.Key)
	}
	return &page, nil
}

// ListChildren drains every listing page of a page's children.
func (c *Client) ListChildren(ctx context.Context, id int64) ([]remote.Page, error) {
	path := contentPath + "/" + formatID(id) + "/child/page"

	var pages []remote.Page
	start := 0
	for {
		q := url.Values{
			"expand": {expandChild},
			"start":  {strconv.Itoa(start)},
			"limit":  {strconv.Itoa(c.cfg.pageSize)},
		}
		var list contentList
		if err := c.do(ctx, http.MethodGet, path, q, nil, &list); err != nil {
			return nil, err
		}
		if list.Size != len(list.Results) {
			return nil, fmt.Errorf("children of page %d: partial listing at offset %d (size %d, got %d results)",
				id, start, list.Size, len(list.Results))
		}

		for i := range list.Results {
			p, err := list.Results[i].toPage(id)
			if err != nil {
				return nil, fmt.Errorf("children of page %d: %w", id, err)
			}
			pages = append(pages, p)
		}

		if list.Links.Next == "" {
			return pages, nil
		}
		if len(list.Results) == 0 {
			return nil, fmt.Errorf("children of page %d: listing made no progress at offset %d", id, start)
		}
		start += len(list.Results)
	}
}

// CreatePage creates a page in the parent's space.
func (c *Client) CreatePage(ctx context.Context, parentID int64, title, body string) (*remote.PageRef, error) {
	space, err := c.spaceOf(ctx, parentID)
	if err != nil {
		return nil, err
	}

	req := content{
		Type:      contentTypePage,
		Title:     title,
		Space:     &spaceRef{Key: space},
		Ancestors: []idRef{{ID: formatID(parentID)}},
		Body:      newStorageBody(body),
	}
	var created content
	if err := c.do(ctx, http.MethodPost, contentPath, nil, &req, &created); err != nil {
		return nil, err
	}

	id, err := parseID(created.ID)
	if err != nil {
		return nil, err
	}
	c.rememberSpace(id, space)

	ref := &remote.PageRef{ID: id, Version: 1}
	if created.Version != nil {
		ref.Version = created.Version.Number
	}
	return ref, nil
}

// UpdatePage replaces a page's title and body. Confluence rejects the write
// with 409 unless the new version is exactly one past the current one.
func (c *Client) UpdatePage(ctx context.Context, id int64, expectedVersion int, title, body string) (int, error) {
	req := content{
		ID:      formatID(id),
		Type:    contentTypePage,
		Title:   title,
		Version: &versionRef{Number: expectedVersion + 1},
		Body:    newStorageBody(body),
	}
	return c.put(ctx, id, &req)
}

// MovePage changes a page's parent, keeping its title and body.
func (c *Client) MovePage(ctx context.Context, id int64, expectedVersion int, newParentID int64) (int, error) {
	current, err := c.GetPage(ctx, id)
	if err != nil {
		return 0, err
	}
	if current.Version != expectedVersion {
		return 0, fmt.Errorf("page %d is at version %d, not %d: %w", id, current.Version, expectedVersion, remote.ErrVersionConflict)
	}

	req := content{
		ID:        formatID(id),
		Type:      contentTypePage,
		Title:     current.Title,
		Version:   &versionRef{Number: expectedVersion + 1},
		Ancestors: []idRef{{ID: formatID(newParentID)}},
		Body:      newStorageBody(current.Body),
	}
	return c.put(ctx, id, &req)
}

// ServerVersion returns the instance version from the application links
// manifest.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	var m manifest
	if err := c.do(ctx, http.MethodGet, manifestPath, nil, nil, &m); err != nil {
		return "", err
	}
	if m.Version == "" {
		return "", fmt.Errorf("server manifest has no version")
	}
	return m.Version, nil
}

func (c *Client) put(ctx context.Context, id int64, req *content) (int, error) {
	var updated content
	if err := c.do(ctx, http.MethodPut, contentPath+"/"+formatID(id), nil, req, &updated); err != nil {
		return 0, err
	}
	if updated.Version == nil {
		return req.Version.Number, nil
	}
	return updated.Version.Number, nil
}

func (c *Client) rememberSpace(id int64, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spaces[id] = key
}

func (c *Client) spaceOf(ctx context.Context, id int64) (string, error) {
	c.mu.Lock()
	key, ok := c.spaces[id]
	c.mu.Unlock()
	if ok {
		return key, nil
	}

	if _, err := c.GetPage(ctx, id); err != nil {
		return "", fmt.Errorf("looking up space of page %d: %w", id, err)
	}
	c.mu.Lock()
	key, ok = c.spaces[id]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("page %d has no space", id)
	}
	return key, nil
}

// do sends a request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: failed to encode request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.username != "" || c.cfg.password != "" {
		req.SetBasicAuth(c.cfg.username, c.cfg.password)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, path, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

func newAPIError(method, path string, status int, data []byte) error {
	e := &APIError{Method: method, Path: path, StatusCode: status}

	var body apiErrorBody
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		e.Message = body.Message
		if r := []rune(e.Message); len(r) > maxErrorMessage {
			e.Message = string(r[:maxErrorMessage]) + "..."
		}
	}

	switch {
	case status == http.StatusNotFound:
		e.kind = remote.ErrNotFound
	case status == http.StatusConflict:
		e.kind = remote.ErrVersionConflict
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.kind = remote.ErrUnauthorized
	case status == http.StatusTooManyRequests || status >= 500:
		e.kind = remote.ErrTransient
	}
	return e
}

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
