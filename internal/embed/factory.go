package embed

import (
	"fmt"
	"time"

	"github.com/hunterwarburton/agentgo/internal/config"
)

// NewFromConfig builds the cached batcher described by cfg.
func NewFromConfig(cfg config.EmbeddingConfig) (*CachedEmbedder, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries
	batcher := NewBatcher(provider, cfg.BatchSize, retry)
	return NewCachedEmbedder(batcher, cfg.CacheSize), nil
}

// NewProvider selects the provider named in cfg.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	switch cfg.Provider {
	case config.ProviderDashScope, "":
		return NewDashScopeProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, timeout), nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, Dimension, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}
