package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage collects embedding token consumption for one unit of work:
// an HTTP request in the server, a single batch in the ingest worker pool.
// Not goroutine-safe; each unit gets its own collector via NewContextWithUsage
// and the owner reads it after the work finishes.
type EmbeddingUsage struct {
	TotalTokens int
	Used        bool // embedding was invoked, even on a cache hit with 0 tokens
}

// NewContextWithUsage returns a context carrying a fresh usage collector and
// the collector itself for reading back.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector, nil if the context carries
// none. AddTokens on a nil collector is a no-op, so callers chain them freely.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records consumed tokens.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u != nil {
		u.TotalTokens += n
		u.Used = true
	}
}
