// Package retry runs remote calls with bounded exponential backoff.
//
// Only failures classified as transient by remote.IsTransient are retried.
// Version conflicts, authorization failures and other client errors are
// returned immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/danieljhkim/mdbook-confluence/internal/clock"
	"github.com/danieljhkim/mdbook-confluence/internal/remote"
)

const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
)

// Policy configures retries.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Clock drives the backoff's elapsed-time accounting. Defaults to the
	// system clock.
	Clock clock.Clock

	// NewBackOff overrides the backoff schedule. Tests use it to avoid sleeping.
	NewBackOff func() backoff.BackOff
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.NewBackOff != nil {
		b = p.NewBackOff()
	} else {
		exp := backoff.NewExponentialBackOff()
		if p.InitialInterval > 0 {
			exp.InitialInterval = p.InitialInterval
		}
		if p.MaxInterval > 0 {
			exp.MaxInterval = p.MaxInterval
		}
		exp.MaxElapsedTime = 0
		if p.Clock != nil {
			exp.Clock = p.Clock
		}
		exp.Reset()
		b = exp
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// Do calls fn until it succeeds, fails permanently, the retry budget is spent,
// or ctx is done. It returns fn's last error.
func Do(ctx context.Context, p Policy, log *logrus.Entry, op string, fn func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !remote.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if log != nil {
			log.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
				"wait":    wait.String(),
			}).WithError(err).Warn("transient failure, retrying")
		}
	}

	return backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
}
