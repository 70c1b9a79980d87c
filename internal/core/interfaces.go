package core

import "context"

// EmbedService turns text into dense vectors.
type EmbedService interface {
	// EmbedQuery embeds a single text as a one-element batch.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds texts in order. When some batches fail the partial
	// result is returned together with a non-nil error.
	EmbedTexts(ctx context.Context, texts []string) (*EmbeddingResult, error)
}
