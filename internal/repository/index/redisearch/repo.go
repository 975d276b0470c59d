// Package redisearch stores chunks as Redis hashes with a binary vector
// field and answers similarity queries through a RediSearch index.
package redisearch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agrodocs/consulta/internal/db"
	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/search/filter"
	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// store is the consumer interface for chunk index operations (ISP).
//
//nolint:interfacebloat // index repo needs hash, key and FT operations
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Config holds the key layout and index build parameters.
type Config struct {
	KeyPrefix       string // defaults to domain.KeyPrefix
	Collection      string
	VectorDim       int
	Algorithm       string // "hnsw" (default) or "flat"
	HNSWM           int
	HNSWEFConstruct int
}

// Repo implements the chunk index on RediSearch.
type Repo struct {
	store store
	cfg   Config
}

// New creates a chunk index repository.
func New(s store, cfg Config) *Repo {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = domain.KeyPrefix
	}
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = 16
	}
	if cfg.HNSWEFConstruct <= 0 {
		cfg.HNSWEFConstruct = 200
	}
	return &Repo{store: s, cfg: cfg}
}

func (r *Repo) indexName() string {
	return fmt.Sprintf("%s%s:idx", r.cfg.KeyPrefix, r.cfg.Collection)
}

func (r *Repo) chunkPrefix() string {
	return fmt.Sprintf("%s%s:", r.cfg.KeyPrefix, r.cfg.Collection)
}

func (r *Repo) chunkKey(id string) string {
	return r.chunkPrefix() + id
}

// Ensure creates the chunk index. An existing index is left untouched.
func (r *Repo) Ensure(ctx context.Context) error {
	def, err := r.buildIndex()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return nil
}

// buildIndex assembles the fixed chunk schema: filename TAG for exact file
// filters, page and chunk_index NUMERIC for citations, __content TEXT so
// keyword filters can pre-filter the KNN search, and the vector field.
func (r *Repo) buildIndex() (*db.IndexDefinition, error) {
	b := db.NewIndex(r.indexName()).
		Prefix(r.chunkPrefix()).
		Tag("filename").
		Numeric("page").
		Numeric("chunk_index").
		Text("__content")

	if r.cfg.Algorithm == "flat" {
		b = b.VectorFlat("__vector", r.cfg.VectorDim, db.DistanceCosine, 0).As("vector")
	} else {
		b = b.VectorHNSW(
			"__vector", r.cfg.VectorDim, db.DistanceCosine,
			r.cfg.HNSWM, r.cfg.HNSWEFConstruct,
		).As("vector")
	}

	return b.Build()
}

// Upsert writes chunks with their vectors. A chunk that already exists at
// the same position is overwritten, so re-running an ingest replaces stale
// content instead of duplicating it.
func (r *Repo) Upsert(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(chunks))
	for i, c := range chunks {
		items[i] = db.HashSetItem{
			Key:    r.chunkKey(c.ID()),
			Fields: buildHashFields(c, vectors[i]),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d chunks: %w", len(items), err)
	}
	return nil
}

// Query runs a filtered KNN search and maps the hits to results.
func (r *Repo) Query(
	ctx context.Context, vector []float32, f filter.Filter, topK int,
) ([]result.Result, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Filter:       f,
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{"__content", "filename", "page", "chunk_index"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.cfg.Collection, err)
	}

	return r.parseResults(sr), nil
}

// Count returns the number of indexed chunks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.cfg.Collection, err)
	}
	return n, nil
}

// Stats reports whether the index exists and how many chunks it holds.
func (r *Repo) Stats(ctx context.Context) (domain.IndexStats, error) {
	stats := domain.IndexStats{Collection: r.cfg.Collection}

	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return stats, fmt.Errorf("index exists %s: %w", r.cfg.Collection, err)
	}
	stats.Exists = exists
	if !exists {
		return stats, nil
	}

	stats.Chunks, err = r.Count(ctx)
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// Drop deletes all chunk hashes and the index itself. A missing index is
// not an error, so Drop is safe to call on a fresh backend.
func (r *Repo) Drop(ctx context.Context) error {
	keys, err := r.store.Scan(ctx, r.chunkPrefix()+"*")
	if err != nil {
		return fmt.Errorf("scan chunks: %w", err)
	}
	if len(keys) > 0 {
		if err := r.store.Del(ctx, keys...); err != nil {
			return fmt.Errorf("delete %d chunks: %w", len(keys), err)
		}
	}

	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// Ping reports backend reachability.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (r *Repo) parseResults(sr *db.SearchResult) []result.Result {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	prefix := r.chunkPrefix()
	results := make([]result.Result, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, prefix)
		results = append(results, parseEntry(id, entry))
	}
	return results
}
