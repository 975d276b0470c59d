package retrieve

import (
	"context"

	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/domain/search/filter"
	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// Index is the search contract against the chunk index.
type Index interface {
	Query(ctx context.Context, vector []float32, f filter.Filter, topK int) ([]result.Result, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
