package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/metrics"
)

// DefaultMaxAPIBatchSize caps how many texts go into a single API request.
// Ingest batches can exceed this; they are re-sliced transparently.
const DefaultMaxAPIBatchSize = 256

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedEmbedder wraps Embedder with budget enforcement and logging.
// Transport metrics (requests, duration, tokens) live in transport/openai;
// this layer owns budget tracking and the budget gauge only.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with budget and observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// Embed checks the budget, delegates to the inner embedder, and records usage.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if err := p.checkBudget(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.recordUsage(result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed checks the budget, re-slices the input to the API cap, and
// delegates slice by slice.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	if err := p.checkBudget(ctx, len(texts)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()

	var all [][]float32
	var totalPrompt, totalTokens int

	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		// Re-check between slices: a long batch must not ride through a
		// budget that ran out mid-way.
		if offset > 0 {
			if err := p.checkBudget(ctx, len(texts)-offset); err != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("at offset %d: %w", offset, err)
			}
		}

		end := min(offset+DefaultMaxAPIBatchSize, len(texts))
		slice := texts[offset:end]

		res, err := p.embedSlice(ctx, slice)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("offset", offset),
				zap.Int("slice_size", len(slice)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}

		all = append(all, res.Embeddings...)
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	p.recordUsage(totalTokens)

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", totalPrompt),
		zap.Int("total_tokens", totalTokens),
	)

	return domain.BatchEmbeddingResult{
		Embeddings:   all,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// embedSlice uses the inner batch API when available, otherwise falls back to
// one call per text.
func (p *InstrumentedEmbedder) embedSlice(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, p.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch fallback: %w", err)
	}
	return res, nil
}

// checkBudget rejects before spending when the checker says the budget is
// gone. batchSize only flavors the log line.
func (p *InstrumentedEmbedder) checkBudget(ctx context.Context, batchSize int) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("Embedding blocked by token budget",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Int("batch_size", batchSize),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

// recordUsage feeds consumed tokens into the budget and refreshes the
// remaining-tokens gauge.
func (p *InstrumentedEmbedder) recordUsage(totalTokens int) {
	if p.budget == nil || totalTokens <= 0 {
		return
	}
	p.budget.Record(int64(totalTokens))
	remaining := metrics.EmbeddingBudgetTokensRemaining
	remaining.WithLabelValues(p.provider, "daily").Set(float64(p.budget.RemainingDaily()))
	remaining.WithLabelValues(p.provider, "monthly").Set(float64(p.budget.RemainingMonthly()))
}
