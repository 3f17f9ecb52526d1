package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Bounded exponential backoff. The zero value is not valid; use
// [DefaultPolicy] or construct all fields explicitly.
type Policy struct {
	MaxAttempts     uint64        // Total tries, including the first.
	InitialInterval time.Duration // Wait before the second try.
	MaxInterval     time.Duration // Ceiling for a single wait.
	Multiplier      float64       // Growth factor between waits.
}

// The pipeline-wide default: four attempts starting at half a second,
// growing 1.5x per try with up to 50% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      1.5,
	}
}

// Runs op, retrying failures under the policy until the attempt ceiling.
// Errors wrapped with [Permanent] and context cancellation stop retrying
// immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	return p.DoNotify(ctx, op, nil)
}

// Like [Policy.Do] with a callback invoked before each wait, carrying the
// failure and the upcoming delay. Used for retry logging.
func (p Policy) DoNotify(ctx context.Context, op func() error, notify func(err error, next time.Duration)) error {
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = 0 // Attempts bound the retry loop, not wall clock.

	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxAttempts-1), ctx)
}

// Marks an error as non-retryable: [Policy.Do] returns it without
// further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
