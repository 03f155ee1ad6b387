// Package remote defines the page-tree capability the sync engine runs
// against, and an in-memory implementation used by tests.
//
// Every mutation is guarded by the page's optimistic-concurrency version:
// UpdatePage and MovePage take the version the caller last read and fail with
// ErrVersionConflict if the page has changed since.
package remote

import (
	"context"
)

// Page is a remote page as read from the server.
type Page struct {
	ID       int64
	Title    string
	Version  int
	ParentID int64
	Body     string
	Children []int64
}

// PageRef identifies a page after a mutation.
type PageRef struct {
	ID      int64
	Version int
}

// Client is the remote capability. Implementations must be safe for
// concurrent use.
type Client interface {
	// GetPage returns the page with its body, or ErrNotFound.
	GetPage(ctx context.Context, id int64) (*Page, error)

	// ListChildren returns all direct children of a page, with bodies,
	// draining every result page. A partially read listing is an error.
	ListChildren(ctx context.Context, id int64) ([]Page, error)

	// CreatePage creates a page under parentID.
	CreatePage(ctx context.Context, parentID int64, title, body string) (*PageRef, error)

	// UpdatePage replaces title and body. Returns the new version.
	UpdatePage(ctx context.Context, id int64, expectedVersion int, title, body string) (int, error)

	// MovePage reparents the page under newParentID. Returns the new version.
	MovePage(ctx context.Context, id int64, expectedVersion int, newParentID int64) (int, error)

	// ServerVersion returns the server's product version, e.g. "7.13.0".
	ServerVersion(ctx context.Context) (string, error)
}
