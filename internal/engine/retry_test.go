package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetryWithPolicy(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		class       RetryClass
		maxRetries  int
		wantCalls   int
		wantErr     bool
		wantExhaust bool
	}{
		{name: "success first try", failures: 0, class: RetryClassRetryable, maxRetries: 3, wantCalls: 1},
		{name: "recovers after two failures", failures: 2, class: RetryClassRetryable, maxRetries: 3, wantCalls: 3},
		{name: "non retryable stops immediately", failures: 5, class: RetryClassNonRetryable, maxRetries: 3, wantCalls: 1, wantErr: true},
		{name: "exhausts retries", failures: 10, class: RetryClassRetryable, maxRetries: 2, wantCalls: 3, wantErr: true, wantExhaust: true},
		{name: "maybe class is guarded", failures: 10, class: RetryClassMaybe, maxRetries: 5, wantCalls: 3, wantErr: true, wantExhaust: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			var events []RetryEvent
			got, err := RetryWithPolicy(
				context.Background(),
				fastPolicy(tt.maxRetries),
				func(ctx context.Context) (string, error) {
					calls++
					if calls <= tt.failures {
						return "", errors.New("boom")
					}
					return "ok", nil
				},
				func(error) RetryClass { return tt.class },
				func(_ context.Context, ev RetryEvent) { events = append(events, ev) },
			)

			assert.Equal(t, tt.wantCalls, calls)
			require.Len(t, events, tt.wantCalls-1)
			for i, ev := range events {
				assert.Equal(t, i+1, ev.Attempt)
				assert.Equal(t, tt.class, ev.Class)
				assert.EqualError(t, ev.Err, "boom")
			}
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantExhaust, IsRetryExhausted(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", got)
		})
	}
}

func TestRetryWithPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	_, err := RetryWithPolicy(ctx, policy,
		func(ctx context.Context) (int, error) { return 0, errors.New("503 service unavailable") },
		ClassifyLLMError,
		func(context.Context, RetryEvent) { cancel() },
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type ctxKey struct{}

func TestRetryWithPolicy_NotifiesWithCallerContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "run-7")
	var seen []any

	_, err := RetryWithPolicy(ctx, fastPolicy(1),
		func(ctx context.Context) (int, error) { return 0, errors.New("503 service unavailable") },
		ClassifyLLMError,
		func(ctx context.Context, ev RetryEvent) { seen = append(seen, ctx.Value(ctxKey{})) },
	)

	require.Error(t, err)
	assert.True(t, IsRetryExhausted(err))
	assert.Equal(t, []any{"run-7"}, seen)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, policy.Backoff(0, errors.New("x")))
	assert.Equal(t, 400*time.Millisecond, policy.Backoff(2, errors.New("x")))
	assert.Equal(t, time.Second, policy.Backoff(10, errors.New("x")))

	withHeader := &EngineError{Err: errors.New("429"), Class: RetryClassRetryable, RetryAfter: "3"}
	assert.Equal(t, time.Second, policy.Backoff(0, withHeader), "retry-after is capped at MaxDelay")

	policy.Jitter = true
	d := policy.Backoff(0, errors.New("x"))
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.LessOrEqual(t, d, 120*time.Millisecond)
}
