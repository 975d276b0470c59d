package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/domain/search/filter"
	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// --- Mocks ---

type mockIndex struct {
	queryFn func(f filter.Filter, topK int) ([]result.Result, error)
	filters []filter.Filter
	topKs   []int
}

func (m *mockIndex) Query(_ context.Context, _ []float32, f filter.Filter, topK int) ([]result.Result, error) {
	m.filters = append(m.filters, f)
	m.topKs = append(m.topKs, topK)
	if m.queryFn != nil {
		return m.queryFn(f, topK)
	}
	return nil, nil
}

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{
		Embedding:   []float32{0.1, 0.2, 0.3, 0.4},
		TotalTokens: 7,
	}, nil
}

func testHits(n int) []result.Result {
	hits := make([]result.Result, n)
	for i := range hits {
		hits[i] = result.New("id", 0.9, "texto", "acelepryn.pdf", 1, i)
	}
	return hits
}

func newTestService(t *testing.T) (*Service, *mockIndex, *mockEmbedder) {
	t.Helper()
	idx := &mockIndex{}
	emb := &mockEmbedder{}
	svc := New(idx, emb, testPlanner())
	return svc, idx, emb
}

// --- Retrieve ---

func TestRetrieve_FirstAttemptWins(t *testing.T) {
	svc, idx, emb := newTestService(t)

	idx.queryFn = func(_ filter.Filter, _ int) ([]result.Result, error) {
		return testHits(2), nil
	}

	hits, err := svc.Retrieve(context.Background(), "el acelepryn afecta a las abejas?", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if len(idx.filters) != 1 {
		t.Fatalf("expected a single query, got %d", len(idx.filters))
	}
	if idx.filters[0].Filename() != "acelepryn.pdf" || idx.filters[0].Contains() != "abejas" {
		t.Errorf("expected both clauses planned, got %+v", idx.filters[0])
	}
	if emb.calls != 1 {
		t.Errorf("expected one embed call, got %d", emb.calls)
	}
}

func TestRetrieve_RelaxesContainsFirst(t *testing.T) {
	svc, idx, _ := newTestService(t)

	idx.queryFn = func(f filter.Filter, _ int) ([]result.Result, error) {
		if f.HasContains() {
			return nil, nil
		}
		return testHits(1), nil
	}

	hits, err := svc.Retrieve(context.Background(), "el acelepryn afecta a las abejas?", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if len(idx.filters) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(idx.filters))
	}
	if !idx.filters[0].HasContains() {
		t.Error("first attempt must carry the contains clause")
	}
	second := idx.filters[1]
	if second.HasContains() || second.Filename() != "acelepryn.pdf" {
		t.Errorf("second attempt must keep only the filename, got %+v", second)
	}
}

func TestRetrieve_RelaxesToUnfiltered(t *testing.T) {
	svc, idx, _ := newTestService(t)

	idx.queryFn = func(f filter.Filter, _ int) ([]result.Result, error) {
		if !f.IsEmpty() {
			return nil, nil
		}
		return testHits(3), nil
	}

	hits, err := svc.Retrieve(context.Background(), "el acelepryn afecta a las abejas?", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if len(idx.filters) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(idx.filters))
	}
	if !idx.filters[2].IsEmpty() {
		t.Errorf("final attempt must be unfiltered, got %+v", idx.filters[2])
	}
}

func TestRetrieve_UnplannedQuestionQueriesOnce(t *testing.T) {
	svc, idx, _ := newTestService(t)

	hits, err := svc.Retrieve(context.Background(), "cuanto hay que regar el cesped", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != nil {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
	if len(idx.filters) != 1 {
		t.Fatalf("an unfiltered plan must query exactly once, got %d", len(idx.filters))
	}
}

func TestRetrieve_EmptyIsNotAnError(t *testing.T) {
	svc, _, _ := newTestService(t)

	hits, err := svc.Retrieve(context.Background(), "el acelepryn afecta a las abejas?", 6)
	if err != nil {
		t.Fatalf("empty retrieval must not error, got %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestRetrieve_TopK(t *testing.T) {
	svc, idx, _ := newTestService(t)

	if _, err := svc.Retrieve(context.Background(), "pregunta", 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.topKs[0] != 4 {
		t.Errorf("expected topK 4 passed through, got %d", idx.topKs[0])
	}

	if _, err := svc.Retrieve(context.Background(), "pregunta", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.topKs[1] != DefaultTopK {
		t.Errorf("expected default topK %d, got %d", DefaultTopK, idx.topKs[1])
	}
}

func TestRetrieve_RecordsTokenUsage(t *testing.T) {
	svc, _, _ := newTestService(t)

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := svc.Retrieve(ctx, "pregunta", 6); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.TotalTokens != 7 {
		t.Errorf("expected 7 tokens recorded, got %d", usage.TotalTokens)
	}
}

func TestRetrieve_EmbedError(t *testing.T) {
	svc, idx, emb := newTestService(t)
	emb.err = errors.New("embed down")

	if _, err := svc.Retrieve(context.Background(), "pregunta", 6); err == nil {
		t.Fatal("expected error")
	}
	if len(idx.filters) != 0 {
		t.Error("index must not be queried when embedding fails")
	}
}

func TestRetrieve_QueryError(t *testing.T) {
	svc, idx, _ := newTestService(t)
	idx.queryFn = func(_ filter.Filter, _ int) ([]result.Result, error) {
		return nil, errors.New("index down")
	}

	if _, err := svc.Retrieve(context.Background(), "pregunta", 6); err == nil {
		t.Fatal("expected error")
	}
}
