package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/agrodocs/consulta/internal/domain"
)

// RateLimitedEmbedder throttles calls to the inner embedder. One token is
// taken per API request, so a batch costs the same as a single embed.
type RateLimitedEmbedder struct {
	inner   domain.Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps an embedder with a QPS cap. qps <= 0 returns
// the inner embedder unchanged.
func NewRateLimitedEmbedder(inner domain.Embedder, qps float64, burst int) domain.Embedder {
	if qps <= 0 {
		return inner
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

// Embed waits for a limiter token, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("rate limiter: %w", err)
	}
	result, err := r.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return result, nil
}

// BatchEmbed waits for a limiter token, then delegates. Falls back to
// sequential Embed calls when the inner embedder has no batch support;
// each fallback call takes its own token via Embed.
func (r *RateLimitedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	be, ok := r.inner.(domain.BatchEmbedder)
	if !ok {
		res, err := domain.BatchFallback(ctx, r, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch fallback: %w", err)
		}
		return res, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("rate limiter: %w", err)
	}
	res, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return res, nil
}
