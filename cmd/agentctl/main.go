package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/hunterwarburton/agentgo/internal/app"
	"github.com/hunterwarburton/agentgo/internal/config"
	"github.com/hunterwarburton/agentgo/internal/logger"
)

// Version is the agentctl release.
const Version = "0.1.0"

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen)
	headingColor = color.New(color.FgCyan, color.Bold)
	dimColor     = color.New(color.Faint)
)

type command struct {
	run   func(ctx context.Context, args []string) error
	usage string
}

var commands = map[string]command{
	"ingest": {runIngest, "Index documents and store tables"},
	"ask":    {runAsk, "Ask a question about a table and/or a document"},
	"search": {runSearch, "Show the document chunks closest to a query"},
	"purge":  {runPurge, "Delete every stored table and vector database"},
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `agentctl - query tables and documents from the command line

USAGE:
    agentctl <command> [options] [arguments]

COMMANDS:
    ingest    %s
    ask       %s
    search    %s
    purge     %s

Run 'agentctl <command> -h' for command options.
`, commands["ingest"].usage, commands["ask"].usage, commands["search"].usage, commands["purge"].usage)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	case "-v", "-version", "--version", "version":
		fmt.Printf("agentctl version %s\n", Version)
		return
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		errorColor.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, os.Args[2:]); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are accepted by every command.
type globalFlags struct {
	configPath string
	debug      bool
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "config.yaml", "Path to the YAML config file")
	fs.BoolVar(&g.debug, "debug", false, "Enable debug logging")
}

// open loads the config and wires the services. Logs go to stderr so
// command output stays clean.
func (g *globalFlags) open(ctx context.Context) (*app.App, error) {
	logger.SetOutput(os.Stderr)
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(g.debug || logger.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		logger.Warn("Error during shutdown: %v", err)
	}
}
