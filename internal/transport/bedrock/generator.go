// Package bedrock implements answer generation against Anthropic models on
// AWS Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/metrics"
)

// anthropicVersion is the Bedrock API version for Anthropic models.
const anthropicVersion = "bedrock-2023-05-31"

// DefaultMaxTokens bounds the answer length.
const DefaultMaxTokens = 700

// DefaultTemperature keeps answers close to the retrieved context.
const DefaultTemperature float32 = 0.2

// ModelInvoker is the Bedrock runtime surface the generator consumes.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Generator produces answers by invoking Anthropic models on Bedrock.
type Generator struct {
	client      ModelInvoker
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// Config holds the Bedrock transport settings.
type Config struct {
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// anthropicRequest is the InvokeModel body for Anthropic models.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float32            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicResponse is the InvokeModel response body for Anthropic models.
type anthropicResponse struct {
	Content []contentBlock `json:"content"`
}

// NewClient loads the ambient AWS configuration and builds a Bedrock runtime
// client for the region.
func NewClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// New creates a Bedrock generator over an existing runtime client.
func New(client ModelInvoker, cfg Config) *Generator {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
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
		client:      client,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Generate invokes the model with the prompt and returns the answer text.
func (g *Generator) Generate(ctx context.Context, prompt, model string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        g.maxTokens,
		Temperature:      g.temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: []contentBlock{{Type: "text", Text: prompt}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal invoke body: %w", err)
	}

	start := time.Now()

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("bedrock", model, "error").Inc()
		metrics.GenerationErrorsTotal.WithLabelValues("bedrock", "api_error").Inc()
		return "", fmt.Errorf("bedrock invoke failed: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		metrics.GenerationErrorsTotal.WithLabelValues("bedrock", "decode_error").Inc()
		return "", fmt.Errorf("decode bedrock response: %w", err)
	}

	metrics.GenerationRequestsTotal.WithLabelValues("bedrock", model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues("bedrock", model).Observe(duration.Seconds())

	g.logger.Debug("bedrock invocation",
		zap.String("model", model),
		zap.Duration("duration", duration),
	)

	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}

	metrics.GenerationErrorsTotal.WithLabelValues("bedrock", "empty_response").Inc()
	return "", fmt.Errorf("bedrock response for %s has no text content", model)
}
