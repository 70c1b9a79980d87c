package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/query"
)

func runAsk(ctx context.Context, args []string) error {
	var g globalFlags
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	g.register(fs)
	table := fs.String("table", "", "Stored table to query")
	doc := fs.String("doc", "", "Indexed document to search")
	db := fs.String("db", "", "Vector database holding the document (default from config)")
	out := fs.String("out", "chart.png", "Where to write a chart answer")
	verbose := fs.Bool("v", false, "Print the retrieved results")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    agentctl ask [options] question...

EXAMPLES:
    agentctl ask -table sales "What is the average of sales?"
    agentctl ask -doc handbook.pdf "How many vacation days do I get?"
    agentctl ask -table sales "Plot a histogram of sales" -out hist.png

OPTIONS:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fs.Usage()
		return errors.New("no question given")
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	stop := StartSpinner(DefaultProgressEnabled(), "thinking")
	resp, err := a.Orchestrator.Answer(ctx, query.Request{
		Query:    question,
		DBName:   *db,
		Table:    *table,
		Document: *doc,
		User:     "cli",
	})
	stop()
	if err != nil {
		return err
	}

	if resp.Image != nil {
		data, err := base64.StdEncoding.DecodeString(*resp.Image)
		if err != nil {
			return fmt.Errorf("bad chart encoding: %w", err)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return err
		}
		successColor.Printf("Chart written to %s\n", *out)
		return nil
	}

	if resp.Answer != nil {
		fmt.Println(*resp.Answer)
	}
	if *verbose && resp.Results != nil {
		b, err := json.MarshalIndent(resp.Results, "", "  ")
		if err != nil {
			return err
		}
		headingColor.Println("\nResults:")
		dimColor.Println(string(b))
	}
	return nil
}
