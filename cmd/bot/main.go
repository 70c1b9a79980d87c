package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hunterwarburton/agentgo/internal/app"
	"github.com/hunterwarburton/agentgo/internal/auth"
	"github.com/hunterwarburton/agentgo/internal/config"
	"github.com/hunterwarburton/agentgo/internal/logger"
	"github.com/hunterwarburton/agentgo/internal/telegram"
)

func main() {
	// Parse command line flags
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(*debug || logger.ParseLevel(cfg.LogLevel))
	logger.Info("Starting bot...")

	if logger.IsDebugEnabled() {
		logger.Debug("Configuration loaded: TelegramToken=%v, VectorStore=%s, ToolModel=%s, AnswerModel=%s, DataDir=%s",
			cfg.Telegram.Token != "", cfg.VectorStore.Type, cfg.Chat.ToolModel, cfg.Chat.AnswerModel, cfg.DataDir)
	}

	// Validate required settings
	if cfg.Telegram.Token == "" {
		logger.Error("TG_BOT_TOKEN environment variable is required")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Initializing services...")
	services, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize services: %v", err)
		os.Exit(1)
	}

	policyService := auth.NewPolicyService(cfg.Telegram.AdminUserIDs, cfg.Telegram.AllowedUserIDs)

	bot, err := telegram.NewBot(cfg.Telegram.Token, telegram.Deps{
		Answerer:  services.Orchestrator,
		Uploader:  services.Ingestor,
		Catalog:   services,
		History:   services.History,
		Policy:    policyService,
		DefaultDB: cfg.Ingest.DefaultDB,
		TempDir:   cfg.ChartsDir(),
		Workers:   cfg.Telegram.Workers,
	})
	if err != nil {
		logger.Error("Failed to initialize Telegram bot: %v", err)
		os.Exit(1)
	}

	// Start the bot
	go bot.Start(ctx)
	logger.Info("Bot is running")

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-quit
	logger.Info("Shutting down bot...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := services.Close(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}

	logger.Info("Bot has been shut down")
}
