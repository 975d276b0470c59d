// Package client provides a typed Go client for the consulta HTTP API.
//
//	c := client.New("http://localhost:8080", client.WithAPIKey(key))
//	resp, err := c.Query(ctx, client.QueryRequest{Question: "¿Qué dosis lleva?"})
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// defaultTimeout covers retrieval plus a slow generation round-trip.
const defaultTimeout = 120 * time.Second

// QueryRequest asks one question. TopK and MaxContext are pointers so
// zero can be sent explicitly; nil leaves the server defaults in place.
type QueryRequest struct {
	Question     string `json:"question"`
	TopK         *int   `json:"top_k,omitempty"`
	OnlyRetrieve bool   `json:"only_retrieve,omitempty"`
	MaxContext   *int   `json:"max_context,omitempty"`
}

// Source is one cited passage.
type Source struct {
	Filename   string `json:"filename"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Preview    string `json:"preview"`
}

// QueryResponse is the grounded answer. Answer and Provider are nil when
// retrieval found nothing or the request asked for retrieval only.
type QueryResponse struct {
	Answer   *string  `json:"answer"`
	Provider *string  `json:"provider"`
	Sources  []Source `json:"sources"`
}

// HealthStatus is the aggregated service health.
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("consulta: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("consulta: status %d", e.StatusCode)
}

// Client talks to a consulta server.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// Query posts a question and returns the answer with its citations.
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	body, err := c.post(ctx, "/api/v1/query", req)
	if err != nil {
		return QueryResponse{}, err
	}

	var out QueryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return QueryResponse{}, fmt.Errorf("decode query response: %w", err)
	}
	return out, nil
}

// Answer posts a question and returns the plain-text answer.
func (c *Client) Answer(ctx context.Context, req QueryRequest) (string, error) {
	body, err := c.post(ctx, "/api/v1/answer", req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Health reports the aggregated service health. A degraded or failing
// service still returns its report; only transport and decode problems
// are errors.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return HealthStatus{}, fmt.Errorf("read health response: %w", err)
	}

	// The endpoint answers 503 for degraded and failing states but the
	// body still carries the report.
	var out HealthStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return HealthStatus{}, apiError(resp.StatusCode, body)
	}
	return out, nil
}

// post sends a JSON body and returns the raw response body on 2xx.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

// apiError builds an APIError from an error response body. The service
// answers errors as {"code", "message"}; anything else keeps a raw
// snippet as the message.
func apiError(status int, body []byte) error {
	var wire struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Code != "" {
		return &APIError{StatusCode: status, Code: wire.Code, Message: wire.Message}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &APIError{StatusCode: status, Message: msg}
}
