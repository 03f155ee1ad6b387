// Package syncerr defines the error categories reported by a sync pass.
//
// Fatal categories (ConfigurationError, AnchorNotFoundError, RemoteReadError)
// abort the pass before any page is written. Per-action categories
// (RemoteWriteError, ConflictError) are collected into the final report and do
// not stop independent branches.
package syncerr

import (
	"errors"
	"fmt"
)

// ConfigurationError is a pre-flight failure: a missing or invalid option, or
// two chapters that map to the same page title.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// AnchorNotFoundError indicates the configured root page does not exist or
// cannot be read with the supplied credentials.
type AnchorNotFoundError struct {
	PageID int64
	Err    error
}

func (e *AnchorNotFoundError) Error() string {
	return fmt.Sprintf("root page %d not found or not accessible: %v", e.PageID, e.Err)
}

func (e *AnchorNotFoundError) Unwrap() error { return e.Err }

// RemoteReadError indicates the remote subtree could not be enumerated
// completely, so there is no trustworthy baseline to plan against.
type RemoteReadError struct {
	PageID int64
	Err    error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("failed to read remote page tree at page %d: %v", e.PageID, e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }

// RemoteWriteError indicates a single create, update or move failed after
// retries.
type RemoteWriteError struct {
	Identity string
	Action   string
	PageID   int64
	Err      error
}

func (e *RemoteWriteError) Error() string {
	if e.PageID != 0 {
		return fmt.Sprintf("%s %q (page %d) failed: %v", e.Action, e.Identity, e.PageID, e.Err)
	}
	return fmt.Sprintf("%s %q failed: %v", e.Action, e.Identity, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// ConflictError indicates the page was modified remotely after it was read.
// It is never retried.
type ConflictError struct {
	Identity        string
	Action          string
	PageID          int64
	ExpectedVersion int
	Err             error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q (page %d) rejected: page changed remotely since version %d",
		e.Action, e.Identity, e.PageID, e.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// IsFatal reports whether err belongs to a category that aborts the whole pass.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	var anchorErr *AnchorNotFoundError
	var readErr *RemoteReadError
	return errors.As(err, &cfgErr) || errors.As(err, &anchorErr) || errors.As(err, &readErr)
}
