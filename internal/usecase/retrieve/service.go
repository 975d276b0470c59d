// Package retrieve answers "which chunks matter for this question":
// query planning, vectorization and a filter relaxation ladder over
// the chunk index.
package retrieve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// DefaultTopK is how many passages a retrieval returns when the caller
// does not say otherwise.
const DefaultTopK = 6

// Service retrieves the passages most relevant to a question.
type Service struct {
	index    Index
	embedder Embedder
	planner  *Planner
	topK     int
	logger   *zap.Logger
}

// New creates a retrieval service.
func New(index Index, embedder Embedder, planner *Planner) *Service {
	return &Service{
		index:    index,
		embedder: embedder,
		planner:  planner,
		topK:     DefaultTopK,
		logger:   zap.NewNop(),
	}
}

// WithTopK overrides the default passage count.
func (s *Service) WithTopK(k int) *Service {
	if k > 0 {
		s.topK = k
	}
	return s
}

// WithLogger sets the service logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Retrieve embeds the question once, then walks the planned filter and
// its relaxations until an attempt returns passages. Result order is
// the index ranking. An empty final result is a valid outcome, not an
// error.
func (s *Service) Retrieve(ctx context.Context, question string, topK int) ([]result.Result, error) {
	if topK <= 0 {
		topK = s.topK
	}

	res, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	planned := s.planner.Plan(question)
	for _, attempt := range planned.Relaxations() {
		hits, err := s.index.Query(ctx, res.Embedding, attempt, topK)
		if err != nil {
			return nil, fmt.Errorf("query index: %w", err)
		}
		if len(hits) > 0 {
			return hits, nil
		}
		s.logger.Debug("retrieval attempt empty, relaxing filter",
			zap.String("filename", attempt.Filename()),
			zap.String("contains", attempt.Contains()),
		)
	}

	return nil, nil
}
