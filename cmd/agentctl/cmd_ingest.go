package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/ingest"
)

func runIngest(ctx context.Context, args []string) error {
	var g globalFlags
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	g.register(fs)
	db := fs.String("db", "", "Vector database for documents (default from config)")
	chunkSize := fs.Int("chunk-size", 0, "Chunk size in characters (default from config)")
	chunkOverlap := fs.Int("chunk-overlap", 0, "Chunk overlap in characters")
	noProgress := fs.Bool("no-progress", false, "Disable the progress bar")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    agentctl ingest [options] files...

DESCRIPTION:
    .csv and .xlsx files are stored as tables named after the file.
    .docx, .pdf, .txt and .md files are split, embedded and indexed,
    one collection per file.

OPTIONS:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no files given")
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	var tables, docs []string
	for _, path := range fs.Args() {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".xlsx":
			tables = append(tables, path)
		default:
			docs = append(docs, path)
		}
	}

	var failed int
	for _, path := range tables {
		name, err := uploadTable(ctx, a.Ingestor, path)
		if err != nil {
			failed++
			errorColor.Printf("✗ %s: %v\n", path, err)
			continue
		}
		successColor.Printf("✓ %s → table %s\n", path, name)
	}

	if len(docs) > 0 {
		n, err := uploadDocuments(ctx, a.Ingestor, ingest.UploadRequest{
			DBName:       *db,
			ChunkSize:    *chunkSize,
			ChunkOverlap: *chunkOverlap,
		}, docs, !*noProgress && DefaultProgressEnabled())
		failed += n
		if err != nil && n == 0 {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, fs.NArg())
	}
	return nil
}

func uploadTable(ctx context.Context, in *ingest.Ingestor, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return in.UploadTable(ctx, ingest.File{Name: filepath.Base(path), Reader: f})
}

// uploadDocuments indexes paths in one request and prints a line per
// file. It returns the number of failed files.
func uploadDocuments(ctx context.Context, in *ingest.Ingestor, req ingest.UploadRequest, paths []string, progress bool) (int, error) {
	var failed int
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			failed++
			errorColor.Printf("✗ %s: %v\n", path, err)
			continue
		}
		defer f.Close()
		req.Files = append(req.Files, ingest.File{Name: filepath.Base(path), Reader: f})
	}
	if len(req.Files) == 0 {
		return failed, nil
	}

	bar := NewIndexProgress(progress)
	if bar != nil {
		bar.Start(len(req.Files))
		in.SetProgress(func(ingest.FileResult) { bar.Increment() })
	}

	results, err := in.UploadDocuments(ctx, req)
	if bar != nil {
		bar.Finish()
	}
	for _, r := range results {
		if r.Err != nil {
			failed++
			errorColor.Printf("✗ %s: %v\n", r.Name, r.Err)
			continue
		}
		successColor.Printf("✓ %s → %s ", r.Name, r.Collection)
		dimColor.Printf("(%d chunks, %d tokens)\n", r.Chunks, r.Tokens)
	}
	if len(results) < len(req.Files) {
		failed += len(req.Files) - len(results)
	}
	return failed, err
}
