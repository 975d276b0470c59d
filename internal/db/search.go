package db

import "github.com/agrodocs/consulta/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search. The filter becomes
// an FT.SEARCH pre-filter, so K nearest neighbors are picked among the
// chunks that match it.
type KNNQuery struct {
	IndexName    string
	Filter       filter.Filter
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
