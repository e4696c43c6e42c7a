// Package retry implements a small bounded retry policy for transient
// upstream failures, honoring server-specified backoff (Retry-After style)
// when one is given.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds the retry loop. Zero values fall back to sane defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches what webhook registration and the search provider use.
var DefaultPolicy = Policy{MaxAttempts: 4, BaseDelay: 2 * time.Second}

// Transient marks an error as retryable. RetryAfter is the server-specified
// backoff, zero when the server gave none.
type Transient struct {
	RetryAfter time.Duration
	Err        error
}

func (t *Transient) Error() string {
	return fmt.Sprintf("transient: %v", t.Err)
}

func (t *Transient) Unwrap() error { return t.Err }

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// fn signals a retryable failure by returning *Transient; any other error
// stops the loop immediately.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		transient, ok := err.(*Transient)
		if !ok {
			return err
		}
		lastErr = transient.Err

		if attempt == p.MaxAttempts {
			break
		}

		delay := transient.RetryAfter
		if delay <= 0 {
			delay = p.BaseDelay * time.Duration(attempt)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, lastErr)
}
