package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// maybeRetryLimit caps retries of errors classified RetryClassMaybe,
// whatever the policy allows.
const maybeRetryLimit = 2

// RetryPolicy configures transport retries of one generation call.
type RetryPolicy struct {
	MaxRetries   int           // retries after the first call; 0 disables retrying
	InitialDelay time.Duration // wait before the first retry
	MaxDelay     time.Duration // cap for backoff and Retry-After
	Multiplier   float64       // backoff growth per retry
	Jitter       bool          // add up to 20% random delay
}

// Backoff returns the wait before retry number retry (0-based). A
// Retry-After carried by err wins over exponential backoff; both are capped
// at MaxDelay.
func (p RetryPolicy) Backoff(retry int, err error) time.Duration {
	if after := ExtractRetryAfter(err); after > 0 {
		return min(after, p.MaxDelay)
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retry))
	delay = math.Min(delay, float64(p.MaxDelay))
	if p.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}
	return time.Duration(delay)
}

// RetryEvent describes a retry about to happen.
type RetryEvent struct {
	Attempt int // 1 for the first retry
	Delay   time.Duration
	Class   RetryClass
	Err     error
}

// RetryWithPolicy calls fn until it succeeds, returns a non-retryable error
// or the policy is used up; the last case yields a *RetryExhaustedError.
// notify, when set, runs with the caller's ctx before every wait.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn func(ctx context.Context) (T, error),
	classify func(error) RetryClass,
	notify func(ctx context.Context, ev RetryEvent),
) (T, error) {
	var zero T
	for retry := 0; ; retry++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		class := classify(err)
		switch {
		case class == RetryClassNonRetryable:
			return zero, err
		case retry >= policy.MaxRetries:
			return zero, NewRetryExhaustedError(err, retry, policy.MaxRetries, false)
		case class == RetryClassMaybe && retry >= maybeRetryLimit:
			return zero, NewRetryExhaustedError(err, retry, maybeRetryLimit, true)
		}

		ev := RetryEvent{Attempt: retry + 1, Delay: policy.Backoff(retry, err), Class: class, Err: err}
		if notify != nil {
			notify(ctx, ev)
		}
		if err := sleep(ctx, ev.Delay); err != nil {
			return zero, fmt.Errorf("context cancelled during retry: %w", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
