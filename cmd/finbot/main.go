package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"finbot/internal/api"
	"finbot/internal/api/handlers"
	"finbot/internal/repository"
	"finbot/internal/service"
	"finbot/pkg/config"
	"finbot/pkg/logger"
	"finbot/pkg/postgres"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting finbot service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	docRepo := repository.NewDocumentRepository(db, appLogger)
	chatRepo := repository.NewChatRepository(db, appLogger)

	// Initialize services
	extractor := service.NewExtractor(&cfg.Extract, appLogger)
	embedder := service.NewOpenAIEmbedder(&cfg.Embedding, appLogger)
	batcher := service.NewBatcher(embedder, &cfg.Embedding, appLogger)
	modelClient := service.NewOpenAIChatClient(&cfg.LLM, appLogger)

	retrieval := service.NewRetrievalService(docRepo, batcher, &cfg.Retrieval, appLogger)
	ingestor := service.NewIngestor(extractor, batcher, docRepo, &cfg.Ingest, appLogger)
	orchestrator := service.NewOrchestrator(modelClient, retrieval, extractor, docRepo, chatRepo, &cfg.Chat, appLogger)

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(orchestrator, chatRepo, appLogger)
	ingestHandler := handlers.NewIngestHandler(ingestor, appLogger)
	adminHandler := handlers.NewAdminHandler(docRepo, appLogger)

	// Setup router
	app := api.SetupRouter(chatHandler, ingestHandler, adminHandler)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
