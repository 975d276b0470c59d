package chi

import (
	domanswer "github.com/agrodocs/consulta/internal/domain/answer"
	"github.com/agrodocs/consulta/internal/interchange"
)

// queryRequest is the body of POST /api/v1/query and /api/v1/answer.
type queryRequest struct {
	Question     string `json:"question"`
	TopK         *int   `json:"top_k,omitempty"`
	OnlyRetrieve bool   `json:"only_retrieve,omitempty"`
	MaxContext   *int   `json:"max_context,omitempty"`
}

// queryResponse mirrors the answer shape: null answer/provider when nothing
// was synthesized, sources always present.
type queryResponse struct {
	Answer   *string          `json:"answer"`
	Provider *string          `json:"provider"`
	Sources  []sourceResponse `json:"sources"`
}

type sourceResponse struct {
	Filename   string `json:"filename"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Preview    string `json:"preview"`
}

type statsResponse struct {
	Collection string                `json:"collection"`
	Chunks     int                   `json:"chunks"`
	LastIngest *interchange.Manifest `json:"last_ingest,omitempty"`
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type errorCode string

const (
	codeBadRequest          errorCode = "bad_request"
	codeValidationFailed    errorCode = "validation_failed"
	codeUnauthorized        errorCode = "unauthorized"
	codeProviderUnavailable errorCode = "provider_unavailable"
	codeProviderError       errorCode = "provider_error"
	codeUnknownProvider     errorCode = "unknown_provider"
	codeRateLimited         errorCode = "rate_limited"
	codeEmbeddingQuota      errorCode = "embedding_quota_exceeded"
	codeEmbeddingProvider   errorCode = "embedding_provider_error"
	codeInternal            errorCode = "internal_error"
)

// answerToResponse converts a domain answer to the wire shape.
func answerToResponse(ans domanswer.Answer) queryResponse {
	resp := queryResponse{
		Sources: make([]sourceResponse, 0, len(ans.Citations())),
	}
	for _, c := range ans.Citations() {
		resp.Sources = append(resp.Sources, sourceResponse{
			Filename:   c.Filename(),
			Page:       c.Page(),
			ChunkIndex: c.ChunkIndex(),
			Preview:    c.Preview(),
		})
	}
	if ans.Text() != "" {
		text := ans.Text()
		resp.Answer = &text
	}
	if ans.Provider() != "" {
		provider := ans.Provider()
		resp.Provider = &provider
	}
	return resp
}
