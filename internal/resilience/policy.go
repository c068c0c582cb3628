// Package resilience wraps calls to remote collaborators in a per-attempt
// timeout and bounded exponential retry.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/DreamCats/briefly/internal/config"
)

const jitter = 50 * time.Millisecond

// Policy bounds one collaborator call.
type Policy struct {
	Attempts   int           // total tries, at least 1
	Backoff    time.Duration // first delay
	MaxBackoff time.Duration // cap on the whole retry window, 0 for none
	Timeout    time.Duration // per attempt, 0 for none
}

// FromConfig builds a policy from the retry section and a call timeout.
func FromConfig(r config.RetryConfig, timeout time.Duration) Policy {
	return Policy{
		Attempts:   r.Attempts,
		Backoff:    r.Backoff,
		MaxBackoff: r.MaxBackoff,
		Timeout:    timeout,
	}
}

// Do runs fn until it succeeds, returns a permanent error, the parent
// context ends, or attempts run out. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	var b retry.Backoff = retry.NewExponential(base)
	if p.MaxBackoff > 0 {
		b = retry.WithMaxDuration(p.MaxBackoff, b)
	}
	b = retry.WithMaxRetries(uint64(attempts-1), retry.WithJitter(jitter, b)) // #nosec G115 -- attempts >= 1

	return retry.Do(ctx, b, func(ctx context.Context) error {
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || IsPermanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. a 4xx response.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
