package embed

import (
	"context"
	"fmt"

	"github.com/hunterwarburton/agentgo/internal/core"
	"github.com/hunterwarburton/agentgo/internal/logger"
)

// Batcher implements core.EmbedService on top of a Provider.
type Batcher struct {
	provider  Provider
	batchSize int
	retry     RetryConfig
}

var _ core.EmbedService = (*Batcher)(nil)

// NewBatcher creates a Batcher. A non-positive batchSize falls back to
// DefaultBatchSize.
func NewBatcher(provider Provider, batchSize int, retry RetryConfig) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{provider: provider, batchSize: batchSize, retry: retry}
}

// BatchSize returns the configured batch size.
func (b *Batcher) BatchSize() int { return b.batchSize }

// EmbedTexts embeds texts batch by batch, strictly in order. Local indices
// in each reply are shifted by the number of texts already sent, so
// SourceTextIndex always refers to the position in texts.
//
// When a batch fails after retries it is recorded in Failed and the
// remaining batches still run; the partial result is returned with an error
// wrapping ErrPartialEmbedding. Context cancellation aborts immediately.
func (b *Batcher) EmbedTexts(ctx context.Context, texts []string) (*core.EmbeddingResult, error) {
	result := &core.EmbeddingResult{Records: make([]core.EmbeddingRecord, 0, len(texts))}
	if len(texts) == 0 {
		return result, nil
	}

	batches := (len(texts) + b.batchSize - 1) / b.batchSize
	for offset := 0; offset < len(texts); offset += b.batchSize {
		end := min(offset+b.batchSize, len(texts))
		batch := texts[offset:end]

		logger.Debug("Embedding batch %d-%d of %d texts via %s", offset, end-1, len(texts), b.provider.Name())
		resp, err := retryWithBackoff(ctx, b.retry, func() (*ProviderResponse, error) {
			return b.provider.EmbedBatch(ctx, batch)
		})
		var ordered [][]float32
		if err == nil {
			ordered, err = orderByIndex(resp, len(batch))
		}
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logger.Warn("Embedding batch %d-%d failed: %v", offset, end-1, err)
			result.Failed = append(result.Failed, core.FailedBatch{Offset: offset, Size: len(batch), Err: err})
			continue
		}

		for i, vec := range ordered {
			result.Records = append(result.Records, core.EmbeddingRecord{
				Vector:          vec,
				SourceTextIndex: offset + i,
				Text:            batch[i],
			})
		}
		result.TotalTokens += resp.TotalTokens
	}

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: %d of %d batches failed, first at offset %d: %v",
			ErrPartialEmbedding, len(result.Failed), batches, result.Failed[0].Offset, result.Failed[0].Err)
	}
	logger.Debug("Embedded %d texts in %d batches (%d tokens)", len(texts), batches, result.TotalTokens)
	return result, nil
}

// EmbedQuery embeds a single text.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}
	result, err := b.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return result.Records[0].Vector, nil
}

// orderByIndex places each returned vector at its local index and checks
// that the reply covers the batch exactly once.
func orderByIndex(resp *ProviderResponse, size int) ([][]float32, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrBadResponse)
	}
	if len(resp.Embeddings) != size {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrBadResponse, len(resp.Embeddings), size)
	}
	ordered := make([][]float32, size)
	for _, emb := range resp.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= size {
			return nil, fmt.Errorf("%w: text_index %d out of range [0,%d)", ErrBadResponse, emb.TextIndex, size)
		}
		if ordered[emb.TextIndex] != nil {
			return nil, fmt.Errorf("%w: duplicate text_index %d", ErrBadResponse, emb.TextIndex)
		}
		if len(emb.Vector) == 0 {
			return nil, fmt.Errorf("%w: empty vector at text_index %d", ErrBadResponse, emb.TextIndex)
		}
		ordered[emb.TextIndex] = emb.Vector
	}
	return ordered, nil
}
