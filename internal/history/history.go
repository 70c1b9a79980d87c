// Package history keeps an append-only log of answered queries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hunterwarburton/agentgo/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	query      TEXT NOT NULL,
	table_name TEXT NOT NULL DEFAULT '',
	document   TEXT NOT NULL DEFAULT '',
	answer     TEXT NOT NULL DEFAULT '',
	image      INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, created_at);
`

// Entry is one answered query.
type Entry struct {
	ID        string
	User      string
	Query     string
	Table     string
	Document  string
	Answer    string
	Image     bool
	CreatedAt time.Time
}

// Store is a SQLite-backed history log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}
	logger.StoreInfo("History log at %s", path)
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends e. ID and CreatedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, user_id, query, table_name, document, answer, image, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.User, e.Query, e.Table, e.Document, e.Answer, e.Image, e.CreatedAt.UnixNano())
	if err != nil {
		return e, fmt.Errorf("failed to record interaction: %w", err)
	}
	logger.StoreDebug("Recorded interaction %s for user %s", e.ID, e.User)
	return e, nil
}

// Recent returns up to limit entries for user, newest first.
func (s *Store) Recent(ctx context.Context, user string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, query, table_name, document, answer, image, created_at
		 FROM interactions WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.User, &e.Query, &e.Table, &e.Document, &e.Answer, &e.Image, &created); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
