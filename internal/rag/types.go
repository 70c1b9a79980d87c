package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/core"
)

// DefaultEmbeddingDim is the dimension of every stored vector.
const DefaultEmbeddingDim = 1536

// DefaultSubject is the tag written to the subject field of every record.
const DefaultSubject = "history"

// Field names shared by every backend.
const (
	FieldID      = "id"
	FieldVector  = "vector"
	FieldText    = "text"
	FieldSubject = "subject"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrLengthMismatch     = errors.New("texts and vectors have different lengths")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrInvalidName        = errors.New("invalid name")
)

// Hit is one search match.
type Hit = core.SearchHit

// Gateway hands out per-database clients. The database is created on first
// use and clients are cached, so repeated calls return the same handle.
type Gateway interface {
	Client(ctx context.Context, dbName string) (Client, error)
	// Purge removes every database owned by this gateway.
	Purge(ctx context.Context) error
	Close(ctx context.Context) error
}

// Client operates on the collections of a single logical database.
type Client interface {
	CreateCollection(ctx context.Context, name string) error
	HasCollection(ctx context.Context, name string) (bool, error)
	Insert(ctx context.Context, collection string, texts []string, vectors [][]float32) error
	// Search returns at most topK hits by ascending distance. The result
	// is never nil; topK <= 0 or an empty collection gives no hits.
	Search(ctx context.Context, collection string, query []float32, topK int) ([]Hit, error)
	ListCollections(ctx context.Context) ([]string, error)
}

// CollectionName maps an arbitrary document name to a valid collection
// identifier. Names that are already valid are returned unchanged; others
// have invalid runes replaced by '_' and get an 8 hex digit hash suffix so
// that distinct inputs stay distinct.
func CollectionName(docName string) string {
	if isValidIdentifier(docName) {
		return docName
	}
	var b strings.Builder
	for _, r := range docName {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	sum := sha256.Sum256([]byte(docName))
	base := strings.Trim(b.String(), "_")
	if base == "" || (base[0] >= '0' && base[0] <= '9') {
		base = "doc_" + base
	}
	return fmt.Sprintf("%s_%s", base, hex.EncodeToString(sum[:4]))
}

func isValidIdentifier(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func validateInsert(texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("%w: %d texts, %d vectors", ErrLengthMismatch, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != DefaultEmbeddingDim {
			return fmt.Errorf("%w: vector %d has %d dims, want %d", ErrDimensionMismatch, i, len(v), DefaultEmbeddingDim)
		}
	}
	return nil
}

func validateQuery(query []float32) error {
	if len(query) != DefaultEmbeddingDim {
		return fmt.Errorf("%w: query has %d dims, want %d", ErrDimensionMismatch, len(query), DefaultEmbeddingDim)
	}
	return nil
}

func validateDBName(name string) error {
	if !isValidIdentifier(name) {
		return fmt.Errorf("%w: database %q", ErrInvalidName, name)
	}
	return nil
}

// l2Distance returns the squared Euclidean distance, which is what Milvus
// reports for the L2 metric.
func l2Distance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	if math.IsNaN(sum) {
		return float32(math.Inf(1))
	}
	return float32(sum)
}

// topHits sorts hits by ascending distance and keeps at most k.
func topHits(hits []Hit, k int) []Hit {
	if k <= 0 || len(hits) == 0 {
		return []Hit{}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
