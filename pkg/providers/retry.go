package providers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a single upstream operation is attempted.
type RetryPolicy struct {
	// MaxAttempts caps total attempts, the first call included.
	MaxAttempts int

	// BaseDelay is the backoff before the first retry; it doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the standard budget for provider calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// Do runs fn under the policy. Transient failures are retried with jittered
// exponential backoff until the attempt budget is spent. A malformed upstream
// response is retried once. Bad requests surface immediately, as does any
// failure once ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	malformedRetried := false

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}

		switch {
		case IsBadRequest(err):
			return err
		case IsMalformed(err):
			if malformedRetried {
				return err
			}
			malformedRetried = true
		}

		if attempt >= p.MaxAttempts {
			return fmt.Errorf("%s: %d attempts exhausted: %w", op, p.MaxAttempts, lastErr)
		}

		backoff := p.backoff(attempt)
		slog.WarnContext(ctx, "Upstream call failed, backing off",
			"operation", op,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return lastErr
		}
	}
}

// backoff returns the jittered delay before the retry following the given
// attempt. The exponential base delay is halved and a random share of the
// other half added back, so concurrent workers spread out.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}
