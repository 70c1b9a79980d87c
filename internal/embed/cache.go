package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hunterwarburton/agentgo/internal/core"
)

// CachedEmbedder memoizes query embeddings. Document batches pass through
// uncached since each upload embeds new text.
type CachedEmbedder struct {
	inner core.EmbedService
	cache *lru.Cache[string, []float32]
}

var _ core.EmbedService = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU of maxLen query vectors.
func NewCachedEmbedder(inner core.EmbedService, maxLen int) *CachedEmbedder {
	if maxLen <= 0 {
		maxLen = 1000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](1000)
	}
	return &CachedEmbedder{inner: inner, cache: cache}
}

// EmbedQuery returns a cached copy when available.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := ComputeHash(text)
	if vec, ok := c.cache.Get(key); ok {
		return append([]float32(nil), vec...), nil
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]float32(nil), vec...))
	return vec, nil
}

// EmbedTexts delegates to the wrapped service.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) (*core.EmbeddingResult, error) {
	return c.inner.EmbedTexts(ctx, texts)
}

// Len returns the number of cached queries.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// ComputeHash computes the SHA-256 hex digest used as cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
