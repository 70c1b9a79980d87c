package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

func runPurge(ctx context.Context, args []string) error {
	var g globalFlags
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	g.register(fs)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		if !DefaultProgressEnabled() {
			return errors.New("refusing to purge without -yes when not attached to a terminal")
		}
		headingColor.Fprint(os.Stderr, "Delete every stored table and vector database? Type 'yes' to continue: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(line) != "yes" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.Ingestor.Purge(ctx); err != nil {
		return err
	}
	successColor.Println("All tables and vector databases deleted.")
	return nil
}
