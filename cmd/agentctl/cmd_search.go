package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/query"
	"github.com/hunterwarburton/agentgo/internal/rag"
)

func runSearch(ctx context.Context, args []string) error {
	var g globalFlags
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	g.register(fs)
	doc := fs.String("doc", "", "Indexed document to search (required)")
	db := fs.String("db", "", "Vector database holding the document (default from config)")
	k := fs.Int("k", query.DocumentTopK, "Number of chunks to return")
	asJSON := fs.Bool("json", false, "Print hits as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "USAGE:\n    agentctl search -doc <name> [options] query...\n\nOPTIONS:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	q := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if q == "" || *doc == "" {
		fs.Usage()
		return errors.New("a query and -doc are required")
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	hits, err := a.Orchestrator.Search(ctx, *db, *doc, q, *k)
	if err != nil {
		return err
	}
	if *asJSON {
		fmt.Println(rag.FormatHitsAsJSON(hits))
		return nil
	}
	headingColor.Printf("%d hits in %s\n", len(hits), *doc)
	fmt.Println(rag.FormatHitsAsText(hits))
	return nil
}
