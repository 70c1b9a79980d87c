package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hunterwarburton/agentgo/internal/logger"
)

type memRecord struct {
	id      int64
	vector  []float32
	text    string
	subject string
}

// MemoryGateway keeps every database in process memory.
type MemoryGateway struct {
	mu  sync.RWMutex
	dbs map[string]*MemoryClient
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	logger.StoreDebug("Initializing in-memory vector store")
	return &MemoryGateway{dbs: make(map[string]*MemoryClient)}
}

// Client implements Gateway.
func (g *MemoryGateway) Client(_ context.Context, dbName string) (Client, error) {
	if err := validateDBName(dbName); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.dbs[dbName]
	if !ok {
		c = &MemoryClient{collections: make(map[string][]memRecord)}
		g.dbs[dbName] = c
	}
	return c, nil
}

// Databases lists the databases created so far.
func (g *MemoryGateway) Databases() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.dbs))
	for name := range g.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Purge implements Gateway.
func (g *MemoryGateway) Purge(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dbs = make(map[string]*MemoryClient)
	return nil
}

// Close implements Gateway.
func (g *MemoryGateway) Close(_ context.Context) error { return nil }

// MemoryClient is one in-memory database.
type MemoryClient struct {
	mu          sync.RWMutex
	collections map[string][]memRecord
}

func (c *MemoryClient) CreateCollection(_ context.Context, name string) error {
	if !isValidIdentifier(name) {
		return fmt.Errorf("%w: collection %q", ErrInvalidName, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collections[name]; !ok {
		c.collections[name] = []memRecord{}
	}
	return nil
}

func (c *MemoryClient) HasCollection(_ context.Context, name string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.collections[name]
	return ok, nil
}

func (c *MemoryClient) Insert(_ context.Context, collection string, texts []string, vectors [][]float32) error {
	if err := validateInsert(texts, vectors); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	records, ok := c.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for i := range texts {
		records = append(records, memRecord{
			id:      int64(i),
			vector:  append([]float32(nil), vectors[i]...),
			text:    texts[i],
			subject: DefaultSubject,
		})
	}
	c.collections[collection] = records
	return nil
}

func (c *MemoryClient) Search(_ context.Context, collection string, query []float32, topK int) ([]Hit, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	records, ok := c.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	hits := make([]Hit, 0, len(records))
	for _, r := range records {
		hits = append(hits, Hit{Text: r.text, Distance: l2Distance(query, r.vector)})
	}
	return topHits(hits, topK), nil
}

func (c *MemoryClient) ListCollections(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.collections))
	for name := range c.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
