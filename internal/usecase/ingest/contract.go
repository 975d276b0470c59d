package ingest

import (
	"context"

	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/domain/chunk"
)

// Index is the storage contract for chunk writes.
type Index interface {
	Ensure(ctx context.Context) error
	Upsert(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) error
}

// BatchEmbedder vectorizes a batch of texts.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
