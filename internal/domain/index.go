package domain

import (
	"context"

	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/search/filter"
	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// IndexStats describes the state of a chunk index backend.
type IndexStats struct {
	Collection string
	Exists     bool
	Chunks     int
}

// ChunkIndex is the full surface of a vector index backend: lifecycle,
// writes, KNN search and introspection. The composition root switches
// backends behind this facade; consumers depend on narrow sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type ChunkIndex interface {
	Ensure(ctx context.Context) error
	Upsert(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, f filter.Filter, topK int) ([]result.Result, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (IndexStats, error)
	Drop(ctx context.Context) error
	Ping(ctx context.Context) error
}
