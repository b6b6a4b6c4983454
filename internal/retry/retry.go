// Package retry runs remote calls with exponential backoff and jitter.
// Only transient remote failures (an HTTP-style retryable status) are
// retried; everything else propagates on the first occurrence.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"google.golang.org/api/googleapi"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
)

// ErrAttemptsExhausted is only returned when the attempt budget ran out
// without a single observed error, which should not happen in practice.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// retryableStatus lists remote statuses worth retrying: timeouts, rate
// limits and server-side failures.
var retryableStatus = map[int]bool{
	408: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

type Options struct {
	// MaxAttempts is the total invocation budget, first try included
	// (default: 5).
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt (default: 500ms).
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff (default: 10s).
	MaxDelay time.Duration
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	return o
}

// Do invokes run, retrying transient failures up to opts.MaxAttempts. Between
// attempts it sleeps min(MaxDelay, BaseDelay*2^attempt) scaled by a jitter
// factor drawn uniformly from [0.5, 1.0], so parallel clients do not retry in
// lockstep. When the budget is exhausted the last observed error is returned,
// never a generic one. The calling goroutine is suspended during backoff.
func Do(ctx context.Context, run func(ctx context.Context) error, opts Options) error {
	opts = opts.withDefaults()

	var last error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		err := run(ctx)
		if err == nil {
			return nil
		}
		last = err

		if !Retryable(err) {
			return err
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(attempt, opts)
		slog.DebugContext(ctx, "Transient remote failure, backing off",
			"attempt", attempt+1,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if last != nil {
		return last
	}
	return ErrAttemptsExhausted
}

func backoffDelay(attempt int, opts Options) time.Duration {
	delay := opts.BaseDelay << uint(attempt)
	if delay <= 0 || delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}
	// Uniform jitter in [0.5, 1.0]
	factor := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(delay) * factor)
}

// Retryable reports whether err carries a retryable remote status. It
// understands googleapi errors and anything exposing an HTTP status or
// status-like code.
func Retryable(err error) bool {
	status, ok := statusOf(err)
	return ok && retryableStatus[status]
}

func statusOf(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	var hs interface{ HTTPStatusCode() int }
	if errors.As(err, &hs) {
		return hs.HTTPStatusCode(), true
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	var c interface{ Code() int }
	if errors.As(err, &c) {
		return c.Code(), true
	}
	return 0, false
}
