// Package openaichat implements answer generation over the OpenAI-compatible
// chat completions API. Groq and xAI expose the same wire format, so one
// transport serves all three providers through the BaseURL setting.
package openaichat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/metrics"
)

// Base URLs for the OpenAI-compatible providers.
const (
	GroqBaseURL = "https://api.groq.com/openai/v1"
	XAIBaseURL  = "https://api.x.ai/v1"
)

// DefaultSystemMessage primes the model to answer in Spanish.
const DefaultSystemMessage = "Eres un asistente útil en español."

// GroqSystemMessage additionally pins the answer to the indexed documents.
// Groq's smaller models drift off-context without it.
const GroqSystemMessage = "Eres un asistente útil en español. " +
	"Solo contesta con lo que hay en los PDF de documentacion , solo si la informacion esta en los documentos."

// DefaultTemperature keeps answers close to the retrieved context.
const DefaultTemperature float32 = 0.2

// Generator produces answers through a chat completions endpoint.
type Generator struct {
	client      *openai.Client
	provider    string
	system      string
	temperature float32
	logger      *zap.Logger
}

// Config holds the chat provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Provider    string
	System      string
	Temperature float32
	Logger      *zap.Logger
}

// NewGenerator creates a chat completion generator. Provider names the
// backend for logs and metrics ("openai", "groq", "xai").
func NewGenerator(cfg *Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	system := cfg.System
	if system == "" {
		system = DefaultSystemMessage
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		provider:    cfg.Provider,
		system:      system,
		temperature: temperature,
		logger:      logger,
	}
}

// Generate sends the prompt to the chat completions endpoint and returns the
// model's answer text.
func (g *Generator) Generate(ctx context.Context, prompt, model string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.provider, model, "error").Inc()
		metrics.GenerationErrorsTotal.WithLabelValues(g.provider, "api_error").Inc()
		return "", parseAPIError(g.provider, err)
	}

	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.provider, model, "error").Inc()
		metrics.GenerationErrorsTotal.WithLabelValues(g.provider, "empty_response").Inc()
		return "", fmt.Errorf("%s chat completion returned no choices", g.provider)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.provider, model).Observe(duration.Seconds())

	g.logger.Debug("chat completion",
		zap.String("provider", g.provider),
		zap.String("model", model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", duration),
	)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// parseAPIError extracts a human-readable error from the API response.
func parseAPIError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s chat API error %d: %s", provider, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s chat API error %d: %s", provider, reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	return fmt.Errorf("%s chat request failed: %w", provider, err)
}
