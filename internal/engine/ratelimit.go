package engine

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles Chat calls across every request sharing it.
type RateLimitedClient struct {
	inner   LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with a token bucket of rps requests per
// second and the given burst. A non-positive rps disables limiting.
func NewRateLimitedClient(inner LLMClient, rps float64, burst int) LLMClient {
	if rps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Chat implements LLMClient.
func (c *RateLimitedClient) Chat(ctx context.Context, model string, messages []ChatMessage, opts ChatOptions) (LLMResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return LLMResponse{}, fmt.Errorf("rate limiter: %w", err)
	}
	return c.inner.Chat(ctx, model, messages, opts)
}
