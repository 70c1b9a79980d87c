// Package ingest turns uploaded files into vector collections and stored
// tables.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hunterwarburton/agentgo/internal/core"
	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/logger"
	"github.com/hunterwarburton/agentgo/internal/rag"
	"github.com/hunterwarburton/agentgo/internal/splitter"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyDocument   = errors.New("no text extracted")
)

// File is one uploaded file. Name carries the original file name.
type File struct {
	Name   string
	Reader io.Reader
}

// UploadRequest describes a batch of document uploads. Zero sizes and an
// empty DBName fall back to the ingestor defaults.
type UploadRequest struct {
	DBName       string
	ChunkSize    int
	ChunkOverlap int
	Files        []File
}

// FileResult reports what happened to one uploaded file.
type FileResult struct {
	Name       string
	Collection string
	Chunks     int
	Tokens     int
	Err        error
}

// DatasetStore persists parsed tables.
type DatasetStore interface {
	Save(ds *dataset.Dataset) error
	Purge() error
}

// Config holds the ingestor's collaborators and defaults. OCR and
// Progress are optional.
type Config struct {
	Gateway      rag.Gateway
	Embedder     core.EmbedService
	Datasets     DatasetStore
	TempDir      string
	DefaultDB    string
	ChunkSize    int
	ChunkOverlap int
	OCR          Extractor
	Progress     func(FileResult)
	// ExtractTimeout bounds PDF extraction. Zero means DefaultExtractTimeout.
	ExtractTimeout time.Duration
}

// Ingestor handles document and table uploads.
type Ingestor struct {
	cfg        Config
	extractors map[string]Extractor
}

// New creates an Ingestor.
func New(cfg Config) *Ingestor {
	if cfg.DefaultDB == "" {
		cfg.DefaultDB = "test"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 250
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	ex := map[string]Extractor{
		".docx": DocxExtractor{},
		".pdf":  PDFExtractor{Timeout: cfg.ExtractTimeout},
		".txt":  TextExtractor{},
		".md":   TextExtractor{},
	}
	if cfg.OCR != nil {
		for _, ext := range []string{".png", ".jpg", ".jpeg"} {
			ex[ext] = cfg.OCR
		}
	}
	return &Ingestor{cfg: cfg, extractors: ex}
}

// SetProgress replaces the per-file progress callback.
func (in *Ingestor) SetProgress(fn func(FileResult)) {
	in.cfg.Progress = fn
}

// Supported reports whether name has an extension UploadDocuments accepts.
func (in *Ingestor) Supported(name string) bool {
	_, ok := in.extractors[strings.ToLower(filepath.Ext(name))]
	return ok
}

// UploadDocuments extracts, splits, embeds and stores each file in its own
// collection of req.DBName. Files are processed in order; a failure is
// recorded on that file's result and the rest continue. The returned
// error joins every per-file error.
func (in *Ingestor) UploadDocuments(ctx context.Context, req UploadRequest) ([]FileResult, error) {
	db := req.DBName
	if db == "" {
		db = in.cfg.DefaultDB
	}
	size, overlap := req.ChunkSize, req.ChunkOverlap
	if size <= 0 {
		size, overlap = in.cfg.ChunkSize, in.cfg.ChunkOverlap
	}
	split, err := splitter.New(size, overlap)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(req.Files))
	var errs []error
	for _, f := range req.Files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := in.uploadDocument(ctx, db, split, f)
		if res.Err != nil {
			logger.IngestError("Failed to ingest %s: %v", f.Name, res.Err)
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, res.Err))
		} else {
			logger.IngestInfo("Ingested %s into %s/%s (%d chunks, %d tokens)", f.Name, db, res.Collection, res.Chunks, res.Tokens)
		}
		results = append(results, res)
		if in.cfg.Progress != nil {
			in.cfg.Progress(res)
		}
	}
	return results, errors.Join(errs...)
}

func (in *Ingestor) uploadDocument(ctx context.Context, db string, split *splitter.Splitter, f File) FileResult {
	res := FileResult{Name: f.Name, Collection: rag.CollectionName(f.Name)}
	ext := strings.ToLower(filepath.Ext(f.Name))
	extractor, ok := in.extractors[ext]
	if !ok {
		res.Err = fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
		return res
	}

	path, cleanup, err := in.spool(f)
	if err != nil {
		res.Err = err
		return res
	}
	defer cleanup()

	text, err := extractor.Extract(ctx, path)
	if err != nil {
		res.Err = err
		return res
	}

	isDocx := ext == ".docx"
	if isDocx {
		text = CleanText(text)
	}
	chunks := split.SplitDocument(f.Name, text, isDocx)
	if len(chunks) == 0 {
		res.Err = ErrEmptyDocument
		return res
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	emb, err := in.cfg.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		res.Err = fmt.Errorf("embedding failed, nothing inserted: %w", err)
		return res
	}

	client, err := in.cfg.Gateway.Client(ctx, db)
	if err != nil {
		res.Err = err
		return res
	}
	if err := client.CreateCollection(ctx, res.Collection); err != nil {
		res.Err = err
		return res
	}
	if err := client.Insert(ctx, res.Collection, texts, emb.Vectors()); err != nil {
		res.Err = err
		return res
	}
	res.Chunks = len(texts)
	res.Tokens = emb.TotalTokens
	return res
}

// UploadTable parses a CSV or XLSX upload and stores it under the file's
// base name without extension.
func (in *Ingestor) UploadTable(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".csv", ".xlsx":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(f.Name))
	}

	path, cleanup, err := in.spool(f)
	if err != nil {
		return "", err
	}
	defer cleanup()

	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	ds, err := dataset.LoadFile(f.Name, fh)
	if err != nil {
		return "", err
	}
	if err := in.cfg.Datasets.Save(ds); err != nil {
		return "", err
	}
	logger.IngestInfo("Stored table %s (%d rows, %d columns)", ds.Name, ds.NumRows(), len(ds.Columns))
	return ds.Name, nil
}

// Purge removes every stored table and every vector database.
func (in *Ingestor) Purge(ctx context.Context) error {
	var errs []error
	if err := in.cfg.Datasets.Purge(); err != nil {
		errs = append(errs, fmt.Errorf("failed to purge tables: %w", err))
	}
	if err := in.cfg.Gateway.Purge(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to purge vectors: %w", err))
	}
	if len(errs) == 0 {
		logger.IngestInfo("Purged all tables and vector databases")
	}
	return errors.Join(errs...)
}

// spool copies the upload to a temp file. cleanup removes it and is safe
// to call on every exit path.
func (in *Ingestor) spool(f File) (string, func(), error) {
	if in.cfg.TempDir != "" {
		if err := os.MkdirAll(in.cfg.TempDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(in.cfg.TempDir, "upload-*"+strings.ToLower(filepath.Ext(f.Name)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.IngestWarn("Failed to remove temp file %s: %v", tmp.Name(), err)
		}
	}
	if _, err := io.Copy(tmp, f.Reader); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to spool %s: %w", f.Name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}
