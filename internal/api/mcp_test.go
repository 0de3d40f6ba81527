package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/onedoc/internal/blob"
	"github.com/kalambet/onedoc/internal/retrieval"
	"github.com/kalambet/onedoc/internal/storage"
)

// --- mocks ---

type mockMCPRetriever struct {
	records []retrieval.ScoredRecord
	err     error
}

func (m *mockMCPRetriever) Retrieve(_ context.Context, _ string, _ int) ([]retrieval.ScoredRecord, error) {
	return m.records, m.err
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Retriever: &mockMCPRetriever{},
		Blobs:     blob.NewStore(t.TempDir(), "uploads"),
		Documents: store,
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_SearchDocument(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Retriever = &mockMCPRetriever{
		records: []retrieval.ScoredRecord{
			{Record: retrieval.Record{Text: "budget table", Source: "report.pdf", Page: 2}, Score: 0.91},
			{Record: retrieval.Record{Text: "intro", Source: "report.pdf", Page: 1}, Score: 0.45},
		},
	}
	handler := mcpSearchDocument(deps)

	req := makeCallToolRequest("search_document", map[string]interface{}{
		"query": "budget",
		"limit": 5,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var results []struct {
		Text string `json:"text"`
		Page int    `json:"page"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &results); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Page != 2 || results[0].Text != "budget table" {
		t.Errorf("first result = %+v", results[0])
	}
}

func TestMCPTool_SearchDocument_EmptyResult(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSearchDocument(deps)

	req := makeCallToolRequest("search_document", map[string]interface{}{
		"query": "nothing indexed",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_SearchDocument_MissingQuery(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSearchDocument(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_document", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestMCPTool_ListUploads(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if _, err := deps.Blobs.Put(context.Background(), "report.pdf", strings.NewReader("%PDF-")); err != nil {
		t.Fatalf("seeding blob store: %v", err)
	}
	handler := mcpListUploads(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_uploads", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var entries []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &entries); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "report.pdf" {
		t.Fatalf("entries = %v", entries)
	}
}

func TestMCPResource_CurrentDocument(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpResourceCurrentDocument(deps)

	// Nothing ingested yet: the resource reports an empty index.
	contents, err := handler(context.Background(), makeReadResourceRequest("document://current"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := contents[0].(mcp.TextResourceContents).Text; !strings.Contains(text, "empty") {
		t.Errorf("empty-index resource = %s", text)
	}

	if err := store.StartIngestion("ing-1", "report.pdf"); err != nil {
		t.Fatalf("StartIngestion: %v", err)
	}
	if err := store.FinishIngestion("ing-1", 3); err != nil {
		t.Fatalf("FinishIngestion: %v", err)
	}

	contents, err = handler(context.Background(), makeReadResourceRequest("document://current"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "report.pdf") || !strings.Contains(text, `"pages":3`) {
		t.Errorf("resource = %s", text)
	}
}
