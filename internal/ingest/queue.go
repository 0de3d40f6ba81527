package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kalambet/onedoc/internal/storage"
)

// jobPayload is the ingestion job body carried through the queue.
type jobPayload struct {
	SourcePath   string `json:"source_path"`
	OriginalName string `json:"original_name"`
}

// Queue accepts ingestion jobs. The upload path treats enqueueing as
// fire-and-forget: indexing is best-effort background work.
type Queue interface {
	Enqueue(ctx context.Context, sourcePath, originalName string) error
}

// NewQueue returns a queue backed by store. When store is nil (the queue
// backend failed to open at startup) it returns a no-op queue instead, so
// uploads keep succeeding without indexing.
func NewQueue(store *storage.Store) Queue {
	if store == nil {
		slog.Warn("job queue unavailable, uploads will be accepted but not indexed")
		return noopQueue{}
	}
	return &storeQueue{store: store}
}

type storeQueue struct {
	store *storage.Store
}

func (q *storeQueue) Enqueue(_ context.Context, sourcePath, originalName string) error {
	payload, err := json.Marshal(jobPayload{
		SourcePath:   sourcePath,
		OriginalName: originalName,
	})
	if err != nil {
		return fmt.Errorf("marshaling job payload: %w", err)
	}

	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobTypeIngestPDF,
		PayloadJSON: string(payload),
	}
	if err := q.store.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing ingestion job: %w", err)
	}
	return nil
}

// noopQueue drops every job with a warning.
type noopQueue struct{}

func (noopQueue) Enqueue(_ context.Context, _, originalName string) error {
	slog.Warn("dropping ingestion job, queue is disabled", "file", originalName)
	return nil
}
