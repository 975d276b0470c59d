package redisearch

import (
	"context"
	"testing"

	"github.com/agrodocs/consulta/internal/db"
	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/record"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingFn        func(ctx context.Context) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	delFn         func(ctx context.Context, keys ...string) error
	scanFn        func(ctx context.Context, pattern string) ([]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, index, query string) (int, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, query)
	}
	return 0, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, Config{Collection: "pdf_chunks", VectorDim: 4})
	return repo, ms
}

func testChunk(t *testing.T, filename string, page, idx int) chunk.Chunk {
	t.Helper()
	c, err := chunk.New("No aplicar el producto con viento fuerte.", chunk.Meta{
		Meta: record.Meta{
			Source:     "/data/" + filename,
			Filename:   filename,
			Page:       page,
			TotalPages: 10,
		},
		ChunkIndex:  idx,
		StartOffset: idx * 1800,
		EndOffset:   idx*1800 + 2000,
		ChunkSize:   2000,
		Overlap:     200,
	})
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}
	return c
}

func testVector() []float32 {
	return []float32{0.1, 0.2, 0.3, 0.4}
}
