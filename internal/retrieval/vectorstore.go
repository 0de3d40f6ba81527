package retrieval

import "context"

// VectorStore is the interface for the vector index holding the active
// document's chunks. The index is a single logical collection: every
// ingestion run clears it before inserting, so it never holds chunks from
// more than one document.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist. Idempotent.
	EnsureCollection(ctx context.Context) error

	// Clear removes every record. A collection that does not exist yet is a
	// successful no-op.
	Clear(ctx context.Context) error

	// Insert appends records. Callers must Clear first within the same
	// ingestion run to preserve the single-document invariant.
	Insert(ctx context.Context, records []Record) error

	// Search returns the topK nearest records by cosine similarity, best-first.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)
}

// Record is one embedded chunk in the vector index.
type Record struct {
	ID        string
	Text      string
	Source    string
	Page      int
	Embedding []float32
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
