package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/hunterwarburton/agentgo/internal/logger"
)

// Default constants reused across packages
const (
	DefaultMaxVarCharLength = 65535
	DefaultSubjectMaxLength = 255
)

// MilvusConfig holds connection settings for a Milvus server.
type MilvusConfig struct {
	Address  string
	Token    string
	DBPrefix string
}

// MilvusGateway maps each logical database onto a Milvus database named
// DBPrefix+dbName. One milvusclient.Client is kept per database.
type MilvusGateway struct {
	cfg   MilvusConfig
	admin *milvusclient.Client

	mu      sync.Mutex
	clients map[string]*MilvusClient
}

// NewMilvusGateway connects to the default database for administration.
func NewMilvusGateway(ctx context.Context, cfg MilvusConfig) (*MilvusGateway, error) {
	logger.StoreInfo("Connecting to Milvus at %s", cfg.Address)
	admin, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: cfg.Address,
		APIKey:  cfg.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}
	return &MilvusGateway{cfg: cfg, admin: admin, clients: make(map[string]*MilvusClient)}, nil
}

func (g *MilvusGateway) physicalName(dbName string) string {
	return g.cfg.DBPrefix + dbName
}

// Client implements Gateway. The Milvus database is created if missing.
func (g *MilvusGateway) Client(ctx context.Context, dbName string) (Client, error) {
	if err := validateDBName(dbName); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[dbName]; ok {
		return c, nil
	}

	physical := g.physicalName(dbName)
	dbs, err := g.admin.ListDatabase(ctx, milvusclient.NewListDatabaseOption())
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	exists := false
	for _, name := range dbs {
		if name == physical {
			exists = true
			break
		}
	}
	if !exists {
		logger.StoreInfo("Creating Milvus database %s", physical)
		if err := g.admin.CreateDatabase(ctx, milvusclient.NewCreateDatabaseOption(physical)); err != nil {
			return nil, fmt.Errorf("failed to create database %s: %w", physical, err)
		}
	}

	raw, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: g.cfg.Address,
		APIKey:  g.cfg.Token,
		DBName:  physical,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", physical, err)
	}
	c := &MilvusClient{client: raw, dbName: physical}
	g.clients[dbName] = c
	return c, nil
}

// Purge drops every database carrying the configured prefix, together with
// its collections.
func (g *MilvusGateway) Purge(ctx context.Context) error {
	if g.cfg.DBPrefix == "" {
		return errors.New("refusing to purge Milvus without a database prefix")
	}
	dbs, err := g.admin.ListDatabase(ctx, milvusclient.NewListDatabaseOption())
	if err != nil {
		return fmt.Errorf("failed to list databases: %w", err)
	}

	g.mu.Lock()
	for name, c := range g.clients {
		_ = c.client.Close(ctx)
		delete(g.clients, name)
	}
	g.mu.Unlock()

	for _, db := range dbs {
		if !strings.HasPrefix(db, g.cfg.DBPrefix) {
			continue
		}
		if err := g.dropDatabase(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

func (g *MilvusGateway) dropDatabase(ctx context.Context, db string) error {
	raw, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: g.cfg.Address,
		APIKey:  g.cfg.Token,
		DBName:  db,
	})
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", db, err)
	}
	defer raw.Close(ctx)

	collections, err := raw.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return fmt.Errorf("failed to list collections in %s: %w", db, err)
	}
	for _, collName := range collections {
		logger.StoreDebug("Dropping collection %s.%s", db, collName)
		if err := raw.DropCollection(ctx, milvusclient.NewDropCollectionOption(collName)); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", collName, err)
		}
	}
	if err := g.admin.DropDatabase(ctx, milvusclient.NewDropDatabaseOption(db)); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", db, err)
	}
	logger.StoreInfo("Dropped Milvus database %s", db)
	return nil
}

// Close implements Gateway.
func (g *MilvusGateway) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for name, c := range g.clients {
		if err := c.client.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(g.clients, name)
	}
	if err := g.admin.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MilvusClient operates on one Milvus database.
type MilvusClient struct {
	client *milvusclient.Client
	dbName string
}

func collectionSchema(name string) *entity.Schema {
	return entity.NewSchema().
		WithName(name).
		WithDescription("Document chunks with dense embeddings").
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true).WithIsAutoID(false)).
		WithField(entity.NewField().WithName(FieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(DefaultEmbeddingDim)).
		WithField(entity.NewField().WithName(FieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(DefaultMaxVarCharLength)).
		WithField(entity.NewField().WithName(FieldSubject).WithDataType(entity.FieldTypeVarChar).WithMaxLength(DefaultSubjectMaxLength))
}

// CreateCollection creates, indexes and loads the collection. It is a no-op
// when the collection already exists.
func (c *MilvusClient) CreateCollection(ctx context.Context, name string) error {
	exists, err := c.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	createOpt := milvusclient.NewCreateCollectionOption(name, collectionSchema(name))
	if err := c.client.CreateCollection(ctx, createOpt); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	idx := index.NewHNSWIndex(entity.L2, 16, 200)
	task, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, FieldVector, idx))
	if err != nil {
		return fmt.Errorf("failed to create index on %s: %w", name, err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed waiting for index on %s: %w", name, err)
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection %s into memory: %w", name, err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed waiting for collection %s to load: %w", name, err)
	}

	logger.StoreInfo("Created and loaded collection %s.%s", c.dbName, name)
	return nil
}

func (c *MilvusClient) HasCollection(ctx context.Context, name string) (bool, error) {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("failed to check if collection exists: %w", err)
	}
	return exists, nil
}

func (c *MilvusClient) Insert(ctx context.Context, collection string, texts []string, vectors [][]float32) error {
	if err := validateInsert(texts, vectors); err != nil {
		return err
	}
	if err := c.requireCollection(ctx, collection); err != nil {
		return err
	}

	ids := make([]int64, len(texts))
	subjects := make([]string, len(texts))
	for i := range texts {
		ids[i] = int64(i)
		subjects[i] = DefaultSubject
	}

	opt := milvusclient.NewColumnBasedInsertOption(collection).
		WithInt64Column(FieldID, ids).
		WithFloatVectorColumn(FieldVector, DefaultEmbeddingDim, vectors).
		WithVarcharColumn(FieldText, texts).
		WithVarcharColumn(FieldSubject, subjects)
	if _, err := c.client.Insert(ctx, opt); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	logger.StoreDebug("Inserted %d records into %s.%s", len(texts), c.dbName, collection)
	return nil
}

func (c *MilvusClient) Search(ctx context.Context, collection string, query []float32, topK int) ([]Hit, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	if err := c.requireCollection(ctx, collection); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Hit{}, nil
	}

	opt := milvusclient.NewSearchOption(collection, topK, []entity.Vector{entity.FloatVector(query)}).
		WithANNSField(FieldVector).
		WithOutputFields(FieldText)
	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	hits := make([]Hit, 0, topK)
	for _, rs := range results {
		textCol := rs.GetColumn(FieldText)
		if textCol == nil {
			logger.StoreWarn("text column not found in search result for %s", collection)
			continue
		}
		for i := 0; i < rs.ResultCount; i++ {
			text, err := textCol.GetAsString(i)
			if err != nil {
				logger.StoreWarn("Error getting text from column at %d: %v", i, err)
				continue
			}
			hits = append(hits, Hit{Text: text, Distance: rs.Scores[i]})
		}
	}
	return topHits(hits, topK), nil
}

func (c *MilvusClient) ListCollections(ctx context.Context) ([]string, error) {
	names, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

func (c *MilvusClient) requireCollection(ctx context.Context, name string) error {
	exists, err := c.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s.%s", ErrCollectionNotFound, c.dbName, name)
	}
	return nil
}
