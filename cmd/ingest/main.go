package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"finbot/internal/dto"
	"finbot/internal/repository"
	"finbot/internal/service"
	"finbot/pkg/config"
	"finbot/pkg/logger"
	"finbot/pkg/postgres"

	"go.uber.org/zap"
)

// Batch ingestion entry point. Reads scraped source records from a
// JSON file and runs the full pipeline against the configured store.
func main() {
	filePath := flag.String("file", "records.json", "Path to a JSON file with source records")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	records, err := loadRecords(*filePath)
	if err != nil {
		appLogger.Fatal("Failed to load source records", zap.Error(err))
	}
	if len(records) == 0 {
		appLogger.Fatal("No source records found", zap.String("file", *filePath))
	}

	// Connect to database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	docRepo := repository.NewDocumentRepository(db, appLogger)

	extractor := service.NewExtractor(&cfg.Extract, appLogger)
	embedder := service.NewOpenAIEmbedder(&cfg.Embedding, appLogger)
	batcher := service.NewBatcher(embedder, &cfg.Embedding, appLogger)
	ingestor := service.NewIngestor(extractor, batcher, docRepo, &cfg.Ingest, appLogger)

	appLogger.Info("Starting ingestion",
		zap.String("file", *filePath),
		zap.Int("records", len(records)),
	)

	summary := ingestor.IngestAll(ctx, records)

	for _, failure := range summary.Failures {
		appLogger.Warn("Record not fully indexed",
			zap.String("gr_no", failure.GRNo),
			zap.String("stage", failure.Stage),
			zap.String("reason", failure.Reason),
		)
	}

	appLogger.Info("Ingestion finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
	)

	if summary.Failed == summary.Total {
		os.Exit(1)
	}
}

func loadRecords(path string) ([]dto.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var records []dto.SourceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// Also accept the API request envelope.
		var req dto.IngestRequest
		if err2 := json.Unmarshal(data, &req); err2 != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		records = req.Records
	}
	return records, nil
}
