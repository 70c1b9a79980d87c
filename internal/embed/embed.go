// Package embed produces dense vectors for document chunks and queries.
//
// A Provider wraps one remote embedding API. The Batcher splits an input
// list into fixed-size batches, calls the provider once per batch in order,
// and merges the replies into a single globally indexed result. Failed
// batches are reported explicitly instead of being dropped.
package embed

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrProviderFailed   = errors.New("embedding provider failed")
	ErrPartialEmbedding = errors.New("some embedding batches failed")
	ErrBadResponse      = errors.New("malformed provider response")
)

// Dimension is the vector width produced by the configured models and
// expected by the vector store.
const Dimension = 1536

// DefaultBatchSize is the largest batch DashScope accepts per call.
const DefaultBatchSize = 25

// ProviderEmbedding is one vector as returned by a provider. TextIndex is
// local to the batch that was sent.
type ProviderEmbedding struct {
	Vector    []float32
	TextIndex int
}

// ProviderResponse is the provider-neutral reply to one batch.
type ProviderResponse struct {
	Embeddings  []ProviderEmbedding
	TotalTokens int
}

// Provider embeds one batch of texts with one remote call.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) (*ProviderResponse, error)
	Name() string
}

// ProviderError is a non-success reply from a provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s embedding error (status %d, code %s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s embedding error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrProviderFailed }

// Retryable reports whether the call may succeed when repeated.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500 || e.StatusCode == 0
}

// ValidateTexts rejects empty input lists and blank texts.
func ValidateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
