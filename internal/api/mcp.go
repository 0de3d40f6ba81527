package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/onedoc/internal/blob"
	"github.com/kalambet/onedoc/internal/retrieval"
	"github.com/kalambet/onedoc/internal/storage"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ScoredRecord, error)
}

// DocumentStore reports which document is currently indexed.
type DocumentStore interface {
	CurrentDocument() (storage.Ingestion, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Retriever MCPRetriever
	Blobs     blob.Store
	Documents DocumentStore
}

// NewMCPServer creates an MCP server exposing the read paths of the service:
// semantic search over the indexed document and the upload listing.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"onedoc",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("onedoc — ask questions about the currently indexed PDF document."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_document",
			mcp.WithDescription("Semantically search the currently indexed document and return relevant page excerpts."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("list_uploads",
			mcp.WithDescription("List all PDF files stored in the upload bucket."),
		),
		mcpListUploads(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"document://current",
			"Current Document",
			mcp.WithResourceDescription("The document whose vectors are currently live in the index"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCurrentDocument(deps),
	)

	return s
}

func mcpSearchDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		records, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(records) == 0 {
			return mcpText("[]"), nil
		}

		type searchResult struct {
			Text   string  `json:"text"`
			Source string  `json:"source"`
			Page   int     `json:"page"`
			Score  float32 `json:"score"`
		}

		results := make([]searchResult, len(records))
		for i, rec := range records {
			results[i] = searchResult{
				Text:   rec.Text,
				Source: rec.Source,
				Page:   rec.Page,
				Score:  rec.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpListUploads(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		objects, err := deps.Blobs.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing uploads failed: %v", err)), nil
		}

		if len(objects) == 0 {
			return mcpText("[]"), nil
		}

		type uploadEntry struct {
			Key      string `json:"key"`
			Size     int64  `json:"size"`
			Modified string `json:"modified"`
		}

		entries := make([]uploadEntry, len(objects))
		for i, obj := range objects {
			entries[i] = uploadEntry{
				Key:      obj.Key,
				Size:     obj.Size,
				Modified: obj.Modified.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal uploads: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceCurrentDocument(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text := `{"status":"empty"}`

		doc, err := deps.Documents.CurrentDocument()
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// No document ingested yet.
		case err != nil:
			return nil, fmt.Errorf("looking up current document: %w", err)
		default:
			b, err := json.Marshal(map[string]any{
				"name":       doc.OriginalName,
				"pages":      doc.Pages,
				"indexed_at": doc.FinishedAt.Format(time.RFC3339),
			})
			if err != nil {
				return nil, fmt.Errorf("marshaling current document: %w", err)
			}
			text = string(b)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     text,
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
