package remote

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrNotFound is returned when a page does not exist.
	ErrNotFound = errors.New("page not found")

	// ErrVersionConflict is returned when a mutation supplies a version that
	// is no longer the page's current version.
	ErrVersionConflict = errors.New("page version conflict")

	// ErrUnauthorized is returned when the credentials are rejected or lack
	// permission for the page.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient marks failures that may succeed on retry (timeouts,
	// throttling, server errors).
	ErrTransient = errors.New("transient remote failure")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
