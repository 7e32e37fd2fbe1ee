package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Extract   ExtractConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig
	Logger    LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

type EmbeddingConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Dimension    int
	BatchSize    int
	Concurrency  int
	BatchTimeout time.Duration
	MaxRetries   int
}

type ExtractConfig struct {
	// Minimum ratio of alphabetic runes for structural extraction to be
	// accepted before falling back to OCR. Tunable, validate empirically.
	MinAlphaRatio   float64
	OCRLanguages    string
	OCRDPI          float64
	DownloadTimeout time.Duration
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Concurrency  int
}

type RetrievalConfig struct {
	SimilarityThreshold float64
	TopK                int
}

type ChatConfig struct {
	MaxToolCalls int
	HistoryLimit int
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	// No .env file is fine, environment variables still apply (Docker/K8s)

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	llmTimeout, _ := strconv.Atoi(getEnv("LLM_TIMEOUT", "120"))
	llmTemp, _ := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.3"), 64)
	embedDim, _ := strconv.Atoi(getEnv("EMBEDDING_DIMENSION", "1536"))
	embedBatch, _ := strconv.Atoi(getEnv("EMBEDDING_BATCH_SIZE", "64"))
	embedConc, _ := strconv.Atoi(getEnv("EMBEDDING_CONCURRENCY", "4"))
	embedTimeout, _ := strconv.Atoi(getEnv("EMBEDDING_BATCH_TIMEOUT", "60"))
	embedRetries, _ := strconv.Atoi(getEnv("EMBEDDING_MAX_RETRIES", "3"))
	alphaRatio, _ := strconv.ParseFloat(getEnv("EXTRACT_MIN_ALPHA_RATIO", "0.45"), 64)
	ocrDPI, _ := strconv.ParseFloat(getEnv("EXTRACT_OCR_DPI", "200"), 64)
	downloadTimeout, _ := strconv.Atoi(getEnv("EXTRACT_DOWNLOAD_TIMEOUT", "60"))
	chunkSize, _ := strconv.Atoi(getEnv("INGEST_CHUNK_SIZE", "400"))
	chunkOverlap, _ := strconv.Atoi(getEnv("INGEST_CHUNK_OVERLAP", "40"))
	ingestConc, _ := strconv.Atoi(getEnv("INGEST_CONCURRENCY", "4"))
	simThreshold, _ := strconv.ParseFloat(getEnv("RETRIEVAL_SIMILARITY_THRESHOLD", "0.78"), 64)
	topK, _ := strconv.Atoi(getEnv("RETRIEVAL_TOP_K", "10"))
	maxToolCalls, _ := strconv.Atoi(getEnv("CHAT_MAX_TOOL_CALLS", "8"))
	historyLimit, _ := strconv.Atoi(getEnv("CHAT_HISTORY_LIMIT", "10"))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "finbot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout:     time.Duration(llmTimeout) * time.Second,
			Temperature: llmTemp,
		},
		Embedding: EmbeddingConfig{
			BaseURL:      getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
			APIKey:       getEnv("EMBEDDING_API_KEY", getEnv("LLM_API_KEY", "")),
			Model:        getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension:    embedDim,
			BatchSize:    embedBatch,
			Concurrency:  embedConc,
			BatchTimeout: time.Duration(embedTimeout) * time.Second,
			MaxRetries:   embedRetries,
		},
		Extract: ExtractConfig{
			MinAlphaRatio:   alphaRatio,
			OCRLanguages:    getEnv("EXTRACT_OCR_LANGUAGES", "eng+guj+hin"),
			OCRDPI:          ocrDPI,
			DownloadTimeout: time.Duration(downloadTimeout) * time.Second,
		},
		Ingest: IngestConfig{
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
			Concurrency:  ingestConc,
		},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: simThreshold,
			TopK:                topK,
		},
		Chat: ChatConfig{
			MaxToolCalls: maxToolCalls,
			HistoryLimit: historyLimit,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
