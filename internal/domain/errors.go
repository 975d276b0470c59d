package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChunking signals invalid segmentation parameters (chunk size / overlap).
	ErrInvalidChunking = errors.New("invalid chunking parameters")
	// ErrEmptyCorpus signals that no extractable records were found for ingestion.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrProviderUnavailable signals that no generation provider is configured or reachable.
	ErrProviderUnavailable = errors.New("no generation provider available")
	// ErrProviderCall signals a failed call to a selected generation provider.
	ErrProviderCall = errors.New("provider call failed")
	// ErrUnknownProvider signals a configured provider name with no registered adapter.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ProviderCallError wraps ErrProviderCall with the identity of the provider that failed.
type ProviderCallError struct {
	Provider string
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return ErrProviderCall }

// NewProviderCallError creates a provider call failure carrying the provider identity.
func NewProviderCallError(provider string, err error) error {
	return &ProviderCallError{Provider: provider, Err: err}
}
