package answer

import (
	"context"

	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// Retriever fetches the passages grounding an answer.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) ([]result.Result, error)
}

// Generator is one LLM backend. Request and response shape differences
// stay inside each adapter.
type Generator interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
}
