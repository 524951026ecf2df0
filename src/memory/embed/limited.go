package embed

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles calls to a hosted provider.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

func NewRateLimitedEmbedder(inner Embedder, rps float64, burst int) *RateLimitedEmbedder {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Embed waits for a token; a cancelled context aborts the wait.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

func (r *RateLimitedEmbedder) Close() error { return closeInner(r.inner) }

func closeInner(e Embedder) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
