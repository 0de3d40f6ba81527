package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/onedoc/internal/api"
	"github.com/kalambet/onedoc/internal/blob"
	"github.com/kalambet/onedoc/internal/chat"
	"github.com/kalambet/onedoc/internal/config"
	"github.com/kalambet/onedoc/internal/ingest"
	"github.com/kalambet/onedoc/internal/llm"
	"github.com/kalambet/onedoc/internal/ollama"
	"github.com/kalambet/onedoc/internal/pdfload"
	"github.com/kalambet/onedoc/internal/retrieval"
	"github.com/kalambet/onedoc/internal/retrieval/qdrant"
	"github.com/kalambet/onedoc/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the onedoc server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show onedoc system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "onedoc version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check Ollama readiness. Embeddings are required for both ingestion
	// and retrieval, so a missing model is a startup failure.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if !ollamaClient.IsRunning(ctx) {
		return fmt.Errorf("ollama is not reachable at %s — start it first", cfg.Ollama.BaseURL)
	}
	if !ollamaClient.HasModel(ctx, cfg.Ollama.EmbedModel) {
		return fmt.Errorf("embedding model %q not found — run: ollama pull %s",
			cfg.Ollama.EmbedModel, cfg.Ollama.EmbedModel)
	}

	// Open the job queue backend. Failure degrades to a no-op queue:
	// uploads still succeed, they are just not indexed.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		slog.Warn("could not open job queue storage", "error", err)
		store = nil
	} else {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Warn("closing storage", "error", err)
			}
		}()
	}
	queue := ingest.NewQueue(store)

	// Connect the vector index.
	vectorStore, err := qdrant.New(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection, cfg.Qdrant.VectorSize)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("preparing qdrant collection: %w", err)
	}

	// Build retrieval and chat.
	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	retriever := retrieval.NewRetriever(embedder, vectorStore)
	llmClient := llm.NewClient(cfg.LLM.OpenRouterAPIKey, cfg.LLM.Model)
	if !llmClient.HasCredentials() {
		slog.Warn("no OpenRouter API key configured, chat requests will be rejected")
	}
	chatSvc := chat.NewService(retriever, llmClient, cfg.Retrieval.TopK)

	blobs := blob.NewStore(cfg.Storage.DataDir, cfg.Storage.Bucket)

	handler := api.NewHandler(api.Deps{
		Chat:  chatSvc,
		Queue: queue,
		Blobs: blobs,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the ingestion worker.
	if store != nil {
		worker := ingest.NewWorker(store, pdfload.Load, embedder, vectorStore,
			cfg.Ingest.PollInterval, cfg.Ingest.Concurrency)
		go worker.Run(ctx)
	}

	// Optionally expose the read paths over MCP (stdio transport).
	if cfg.Server.MCP && store != nil {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Retriever: retriever,
			Blobs:     blobs,
			Documents: store,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "onedoc listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if ollama.New(cfg.Ollama.BaseURL).IsRunning(ctx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	} else {
		printStatus("Ollama", "not running")
	}

	// Check Qdrant.
	if vs, err := qdrant.New(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection, cfg.Qdrant.VectorSize); err == nil {
		defer vs.Close()
		if err := vs.Ping(ctx); err == nil {
			printStatus("Qdrant", "running at %s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)
		} else {
			printStatus("Qdrant", "not reachable")
		}
	} else {
		printStatus("Qdrant", "not reachable")
	}

	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Chat model", "%s", cfg.LLM.Model)
	if cfg.LLM.OpenRouterAPIKey == "" {
		printWarning("no OpenRouter API key configured")
	}

	// Show the indexed document if storage is available.
	if store, err := storage.Open(cfg.Storage.DataDir); err == nil {
		defer store.Close()
		doc, err := store.CurrentDocument()
		switch {
		case errors.Is(err, storage.ErrNotFound):
			printStatus("Document", "none indexed")
		case err != nil:
			printStatus("Document", "unknown (%v)", err)
		default:
			printStatus("Document", "%s (%d pages)", doc.OriginalName, doc.Pages)
		}
		if pending, err := store.CountJobs("pending"); err == nil && pending > 0 {
			printStatus("Pending jobs", "%d", pending)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
