package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Qdrant.Collection != "document_chunks" {
		t.Errorf("Qdrant.Collection = %q, want document_chunks", cfg.Qdrant.Collection)
	}
	if cfg.Qdrant.VectorSize != 768 {
		t.Errorf("Qdrant.VectorSize = %d, want 768", cfg.Qdrant.VectorSize)
	}
	if cfg.Retrieval.TopK != 2 {
		t.Errorf("Retrieval.TopK = %d, want 2", cfg.Retrieval.TopK)
	}
	if cfg.Ingest.Concurrency != 1 {
		t.Errorf("Ingest.Concurrency = %d, want 1", cfg.Ingest.Concurrency)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ONEDOC_PORT", "9090")
	t.Setenv("ONEDOC_QDRANT_HOST", "qdrant.internal")
	t.Setenv("ONEDOC_VECTOR_SIZE", "1536")
	t.Setenv("ONEDOC_TOP_K", "5")
	t.Setenv("ONEDOC_INGEST_POLL", "2s")
	t.Setenv("ONEDOC_MCP", "true")
	t.Setenv("ONEDOC_OPENROUTER_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Qdrant.Host != "qdrant.internal" {
		t.Errorf("Qdrant.Host = %q", cfg.Qdrant.Host)
	}
	if cfg.Qdrant.VectorSize != 1536 {
		t.Errorf("Qdrant.VectorSize = %d, want 1536", cfg.Qdrant.VectorSize)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want 5", cfg.Retrieval.TopK)
	}
	if cfg.Ingest.PollInterval != 2*time.Second {
		t.Errorf("Ingest.PollInterval = %v, want 2s", cfg.Ingest.PollInterval)
	}
	if !cfg.Server.MCP {
		t.Error("Server.MCP = false, want true")
	}
	if cfg.LLM.OpenRouterAPIKey != "sk-test" {
		t.Errorf("LLM.OpenRouterAPIKey = %q", cfg.LLM.OpenRouterAPIKey)
	}
}

func TestLoad_BadEnvValuesKeepDefaults(t *testing.T) {
	t.Setenv("ONEDOC_PORT", "not-a-number")
	t.Setenv("ONEDOC_INGEST_POLL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want default 8000", cfg.Server.Port)
	}
	if cfg.Ingest.PollInterval != 500*time.Millisecond {
		t.Errorf("Ingest.PollInterval = %v, want default 500ms", cfg.Ingest.PollInterval)
	}
}

func TestLoad_MissingAPIKeyIsNotFatal(t *testing.T) {
	t.Setenv("ONEDOC_OPENROUTER_API_KEY", "")

	if _, err := Load(); err != nil {
		t.Fatalf("Load should not fail without an API key, got: %v", err)
	}
}
