// Package app builds the shared services every entry point runs on.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hunterwarburton/agentgo/internal/charts"
	"github.com/hunterwarburton/agentgo/internal/config"
	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/embed"
	"github.com/hunterwarburton/agentgo/internal/history"
	"github.com/hunterwarburton/agentgo/internal/ingest"
	"github.com/hunterwarburton/agentgo/internal/llm"
	"github.com/hunterwarburton/agentgo/internal/logger"
	"github.com/hunterwarburton/agentgo/internal/query"
	"github.com/hunterwarburton/agentgo/internal/rag"
	"github.com/hunterwarburton/agentgo/internal/tools"
)

// App holds the wired services.
type App struct {
	Config       *config.Config
	Gateway      rag.Gateway
	Embedder     *embed.CachedEmbedder
	Chat         *llm.Client
	Datasets     *dataset.Store
	Charts       *charts.Renderer
	History      *history.Store
	Dispatcher   *tools.Dispatcher
	Orchestrator *query.Orchestrator
	Ingestor     *ingest.Ingestor
}

// New wires every service from cfg. The caller owns the result and must
// Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	for _, dir := range []string{cfg.DataDir, cfg.UploadsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	gateway, err := NewGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Gateway: gateway}

	if err := a.init(ctx); err != nil {
		if cerr := a.Close(ctx); cerr != nil {
			logger.Warn("Cleanup after failed startup: %v", cerr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	var err error

	a.Embedder, err = embed.NewFromConfig(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.Chat = llm.NewClient(cfg.Chat.BaseURL, cfg.Chat.APIKey, time.Duration(cfg.Chat.TimeoutSecs)*time.Second)

	if a.Datasets, err = dataset.NewStore(cfg.TablesDir()); err != nil {
		return err
	}
	if a.Charts, err = charts.NewRenderer(cfg.ChartsDir()); err != nil {
		return err
	}
	if a.History, err = history.Open(ctx, cfg.HistoryPath()); err != nil {
		return err
	}

	a.Dispatcher = tools.NewDispatcher(a.Chat, cfg.Chat.ToolModel, a.Charts)
	a.Orchestrator = query.New(query.Config{
		Datasets:    a.Datasets,
		Dispatcher:  a.Dispatcher,
		Gateway:     a.Gateway,
		Embedder:    a.Embedder,
		Model:       a.Chat,
		AnswerModel: cfg.Chat.AnswerModel,
		DefaultDB:   cfg.Ingest.DefaultDB,
		TopK:        cfg.Ingest.TopK,
		History:     a.History,
	})
	a.Ingestor = ingest.New(ingest.Config{
		Gateway:        a.Gateway,
		Embedder:       a.Embedder,
		Datasets:       a.Datasets,
		TempDir:        cfg.UploadsDir(),
		DefaultDB:      cfg.Ingest.DefaultDB,
		ChunkSize:      cfg.Ingest.ChunkSize,
		ChunkOverlap:   cfg.Ingest.ChunkOverlap,
		ExtractTimeout: time.Duration(cfg.Ingest.ExtractTimeoutSecs) * time.Second,
	})

	logger.Info("Services ready (vector store: %s, tool model: %s, answer model: %s)",
		cfg.VectorStore.Type, cfg.Chat.ToolModel, cfg.Chat.AnswerModel)
	return nil
}

// NewGateway opens the vector store backend named in cfg.
func NewGateway(ctx context.Context, cfg *config.Config) (rag.Gateway, error) {
	switch cfg.VectorStore.Type {
	case config.StoreMilvus:
		m := cfg.VectorStore.Milvus
		gw, err := rag.NewMilvusGateway(ctx, rag.MilvusConfig{Address: m.Address, Token: m.Token, DBPrefix: m.DBPrefix})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Milvus at %s: %w", m.Address, err)
		}
		return gw, nil
	case config.StoreSQLite:
		return rag.NewSQLiteGateway(cfg.VectorsDir())
	case config.StoreMemory:
		return rag.NewMemoryGateway(), nil
	}
	return nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore.Type)
}

// Tables lists the stored tables.
func (a *App) Tables() ([]string, error) {
	return a.Datasets.List()
}

// Documents lists the collections of db, or of the default database when
// db is empty.
func (a *App) Documents(ctx context.Context, db string) ([]string, error) {
	if db == "" {
		db = a.Config.Ingest.DefaultDB
	}
	client, err := a.Gateway.Client(ctx, db)
	if err != nil {
		return nil, err
	}
	return client.ListCollections(ctx)
}

// Close releases the history database and the vector store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close history: %w", err))
		}
	}
	if a.Gateway != nil {
		if err := a.Gateway.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close vector store: %w", err))
		}
	}
	return errors.Join(errs...)
}
