// Package ollama implements answer generation against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/metrics"
)

// DefaultEndpoint is the standard local Ollama address.
const DefaultEndpoint = "http://localhost:11434"

// DefaultSystemMessage primes the model to answer in Spanish.
const DefaultSystemMessage = "Eres un asistente útil en español."

// DefaultTemperature keeps answers close to the retrieved context.
const DefaultTemperature float32 = 0.2

const maxResponseBytes = 1 << 20

// Generator produces answers through the Ollama chat API.
type Generator struct {
	endpoint    string
	system      string
	temperature float32
	client      *http.Client
	logger      *zap.Logger
}

// Config holds the Ollama transport settings.
type Config struct {
	Endpoint    string
	System      string
	Temperature float32
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// chatRequest is the Ollama /api/chat request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float32 `json:"temperature"`
}

// chatResponse is the Ollama /api/chat response body.
type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// NewGenerator creates an Ollama chat generator.
func NewGenerator(cfg *Config) *Generator {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	system := cfg.System
	if system == "" {
		system = DefaultSystemMessage
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		endpoint:    endpoint,
		system:      system,
		temperature: temperature,
		client:      client,
		logger:      logger,
	}
}

// Generate sends the prompt to the Ollama chat endpoint and returns the
// model's answer text.
func (g *Generator) Generate(ctx context.Context, prompt, model string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: g.system},
			{Role: "user", Content: prompt},
		},
		Stream:  false,
		Options: chatOptions{Temperature: g.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("ollama", model, "error").Inc()
		metrics.GenerationErrorsTotal.WithLabelValues("ollama", "transport_error").Inc()
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		metrics.GenerationRequestsTotal.WithLabelValues("ollama", model, "error").Inc()
		metrics.GenerationErrorsTotal.WithLabelValues("ollama", "api_error").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, string(detail))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.GenerationErrorsTotal.WithLabelValues("ollama", "read_error").Inc()
		return "", fmt.Errorf("read ollama response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.GenerationErrorsTotal.WithLabelValues("ollama", "decode_error").Inc()
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	metrics.GenerationRequestsTotal.WithLabelValues("ollama", model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues("ollama", model).Observe(duration.Seconds())

	g.logger.Debug("ollama chat completion",
		zap.String("model", model),
		zap.Duration("duration", duration),
	)

	return strings.TrimSpace(parsed.Message.Content), nil
}
