package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Qdrant    QdrantConfig
	Ollama    OllamaConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// MCP enables the stdio MCP server alongside the HTTP server.
	MCP bool
}

type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	VectorSize uint64
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type LLMConfig struct {
	// OpenRouterAPIKey may be empty at startup; chat requests fail fast
	// with a configuration error until it is set.
	OpenRouterAPIKey string
	Model            string
}

type StorageConfig struct {
	DataDir string
	// Bucket names the local object-store directory for uploaded files.
	// Empty disables durable upload storage (uploads still index).
	Bucket string
}

type RetrievalConfig struct {
	TopK int
}

type IngestConfig struct {
	Concurrency  int
	PollInterval time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
			MCP:  false,
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "document_chunks",
			VectorSize: 768,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		LLM: LLMConfig{
			Model: "openai/gpt-4o-mini",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Bucket:  "uploads",
		},
		Retrieval: RetrievalConfig{
			TopK: 2,
		},
		Ingest: IngestConfig{
			Concurrency:  1,
			PollInterval: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults overridden by ONEDOC_*
// environment variables. It never fails on a missing API key; operations
// that need one report the gap themselves.
func Load() (Config, error) {
	cfg := defaults()

	envStr("ONEDOC_QDRANT_HOST", &cfg.Qdrant.Host)
	envInt("ONEDOC_QDRANT_PORT", &cfg.Qdrant.Port)
	envStr("ONEDOC_QDRANT_COLLECTION", &cfg.Qdrant.Collection)
	envUint64("ONEDOC_VECTOR_SIZE", &cfg.Qdrant.VectorSize)
	envStr("ONEDOC_OLLAMA_URL", &cfg.Ollama.BaseURL)
	envStr("ONEDOC_EMBED_MODEL", &cfg.Ollama.EmbedModel)
	envStr("ONEDOC_OPENROUTER_API_KEY", &cfg.LLM.OpenRouterAPIKey)
	envStr("ONEDOC_MODEL", &cfg.LLM.Model)
	envStr("ONEDOC_DATA_DIR", &cfg.Storage.DataDir)
	envStr("ONEDOC_BUCKET", &cfg.Storage.Bucket)
	envInt("ONEDOC_PORT", &cfg.Server.Port)
	envBool("ONEDOC_MCP", &cfg.Server.MCP)
	envInt("ONEDOC_TOP_K", &cfg.Retrieval.TopK)
	envInt("ONEDOC_INGEST_CONCURRENCY", &cfg.Ingest.Concurrency)
	envDuration("ONEDOC_INGEST_POLL", &cfg.Ingest.PollInterval)
	envStr("ONEDOC_LOG_LEVEL", &cfg.Log.Level)

	if cfg.Qdrant.VectorSize == 0 {
		return Config{}, fmt.Errorf("vector size must be positive")
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = defaults().Retrieval.TopK
	}
	if cfg.Ingest.Concurrency <= 0 {
		cfg.Ingest.Concurrency = 1
	}

	return cfg, nil
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "onedoc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./onedoc-data"
	}
	return filepath.Join(home, ".local", "share", "onedoc")
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", key, raw, err)
		return
	}
	*dst = v
}

func envUint64(key string, dst *uint64) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", key, raw, err)
		return
	}
	*dst = v
}

func envBool(key string, dst *bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", key, raw, err)
		return
	}
	*dst = v
}

func envDuration(key string, dst *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", key, raw, err)
		return
	}
	*dst = v
}
