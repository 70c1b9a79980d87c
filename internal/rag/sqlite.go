package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/hunterwarburton/agentgo/internal/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	dim  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	id         INTEGER NOT NULL,
	vector     BLOB NOT NULL,
	text       TEXT NOT NULL,
	subject    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
`

// SQLiteGateway stores each database as <dir>/<db>.db and searches with an
// exact L2 scan.
type SQLiteGateway struct {
	dir     string
	mu      sync.Mutex
	clients map[string]*SQLiteClient
}

// NewSQLiteGateway creates the directory if needed.
func NewSQLiteGateway(dir string) (*SQLiteGateway, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vector dir: %w", err)
	}
	logger.StoreInfo("Using SQLite vector store in %s", dir)
	return &SQLiteGateway{dir: dir, clients: make(map[string]*SQLiteClient)}, nil
}

// Client implements Gateway.
func (g *SQLiteGateway) Client(ctx context.Context, dbName string) (Client, error) {
	if err := validateDBName(dbName); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[dbName]; ok {
		return c, nil
	}

	db, err := openDatabase(filepath.Join(g.dir, dbName+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbName, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", dbName, err)
	}
	c := &SQLiteClient{db: db}
	g.clients[dbName] = c
	logger.StoreDebug("Opened database %s", dbName)
	return c, nil
}

// Purge closes every client and removes all database files in the directory.
func (g *SQLiteGateway) Purge(ctx context.Context) error {
	if err := g.Close(ctx); err != nil {
		return err
	}
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return fmt.Errorf("failed to list vector dir: %w", err)
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".db") || strings.HasSuffix(name, ".db-wal") || strings.HasSuffix(name, ".db-shm")) {
			continue
		}
		if err := os.Remove(filepath.Join(g.dir, name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	logger.StoreInfo("Purged SQLite vector store in %s", g.dir)
	return errors.Join(errs...)
}

// Close implements Gateway.
func (g *SQLiteGateway) Close(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for name, c := range g.clients {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(g.clients, name)
	}
	return errors.Join(errs...)
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// SQLiteClient is one database file.
type SQLiteClient struct {
	db *sql.DB
}

func (c *SQLiteClient) CreateCollection(ctx context.Context, name string) error {
	if !isValidIdentifier(name) {
		return fmt.Errorf("%w: collection %q", ErrInvalidName, name)
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO collections (name, dim) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, DefaultEmbeddingDim)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

func (c *SQLiteClient) HasCollection(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM collections WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	return n > 0, nil
}

func (c *SQLiteClient) Insert(ctx context.Context, collection string, texts []string, vectors [][]float32) error {
	if err := validateInsert(texts, vectors); err != nil {
		return err
	}
	ok, err := c.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (collection, id, vector, text, subject) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range texts {
		if _, err := stmt.ExecContext(ctx, collection, int64(i), serializeVector(vectors[i]), texts[i], DefaultSubject); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	logger.StoreDebug("Inserted %d records into %s", len(texts), collection)
	return nil
}

func (c *SQLiteClient) Search(ctx context.Context, collection string, query []float32, topK int) ([]Hit, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	ok, err := c.HasCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	rows, err := c.db.QueryContext(ctx, `SELECT vector, text FROM records WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var blob []byte
		var text string
		if err := rows.Scan(&blob, &text); err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		vec := deserializeVector(blob)
		if len(vec) != len(query) {
			logger.StoreWarn("Skipping record with %d dims in %s", len(vec), collection)
			continue
		}
		hits = append(hits, Hit{Text: text, Distance: l2Distance(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topHits(hits, topK), nil
}

func (c *SQLiteClient) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}
