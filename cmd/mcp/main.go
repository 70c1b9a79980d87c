package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hunterwarburton/agentgo/internal/app"
	"github.com/hunterwarburton/agentgo/internal/config"
	"github.com/hunterwarburton/agentgo/internal/logger"
	"github.com/hunterwarburton/agentgo/internal/mcpserver"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	// stdout carries the protocol.
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.Init(*debug || logger.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize services: %v", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := services.Close(shutdownCtx); err != nil {
			logger.Error("Error during shutdown: %v", err)
		}
	}()

	logger.Info("Serving %s %s on stdio", mcpserver.ServerName, mcpserver.ServerVersion)
	srv := mcpserver.NewServer(services.Orchestrator, services.Datasets)
	if err := srv.Serve(ctx); err != nil {
		logger.Error("MCP server stopped: %v", err)
	}
}
