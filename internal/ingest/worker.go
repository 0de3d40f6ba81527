package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/onedoc/internal/pdfload"
	"github.com/kalambet/onedoc/internal/retrieval"
	"github.com/kalambet/onedoc/internal/storage"
)

// JobStore abstracts the job queue and ingestion-history operations.
type JobStore interface {
	ClaimNextJob(jobType string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	StartIngestion(id, originalName string) error
	FinishIngestion(id string, pages int) error
	FailIngestion(id, errMsg string) error
}

// Loader extracts pages from a source document.
type Loader func(path string) ([]pdfload.Page, error)

// BatchEmbedder generates embeddings for a batch of texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the mutation surface of the vector index used by ingestion.
type VectorIndex interface {
	Clear(ctx context.Context) error
	Insert(ctx context.Context, records []retrieval.Record) error
}

// Worker processes ingest_pdf jobs: load, clear index, embed, insert.
//
// The clear+insert pair is guarded by a single-flight mutex: concurrent runs
// would otherwise interleave and leave the index holding a mix of documents.
type Worker struct {
	store       JobStore
	load        Loader
	embedder    BatchEmbedder
	index       VectorIndex
	poll        time.Duration
	concurrency int
	logger      *slog.Logger

	// indexMu serializes the clear-then-insert window across jobs.
	indexMu sync.Mutex
}

// NewWorker creates a Worker with the given dependencies.
// pollInterval <= 0 defaults to 500ms; concurrency <= 0 defaults to 1.
func NewWorker(store JobStore, load Loader, embedder BatchEmbedder, index VectorIndex, pollInterval time.Duration, concurrency int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		store:       store,
		load:        load,
		embedder:    embedder,
		index:       index,
		poll:        pollInterval,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled, with up to the configured
// number of concurrent pollers.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runLoop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single ingestion job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(storage.JobTypeIngestPDF)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("ingestion job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		// The temp file must survive retries; drop it only once the
		// attempt budget is spent.
		if job.Attempts+1 >= job.MaxAttempts {
			w.cleanupSource(job)
		}
		return true, nil
	}

	w.cleanupSource(job)
	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	log := w.logger.With("job_id", job.ID, "file", payload.OriginalName)
	log.Info("ingestion started")

	ingestionID := uuid.New().String()
	if err := w.store.StartIngestion(ingestionID, payload.OriginalName); err != nil {
		return fmt.Errorf("recording ingestion start: %w", err)
	}

	pages, err := w.ingest(ctx, payload, log)
	if err != nil {
		if failErr := w.store.FailIngestion(ingestionID, err.Error()); failErr != nil {
			log.Error("failed to record ingestion failure", "error", failErr)
		}
		return err
	}

	if err := w.store.FinishIngestion(ingestionID, pages); err != nil {
		return fmt.Errorf("recording ingestion completion: %w", err)
	}
	log.Info("ingestion completed", "pages", pages)
	return nil
}

func (w *Worker) ingest(ctx context.Context, payload jobPayload, log *slog.Logger) (int, error) {
	pages, err := w.load(payload.SourcePath)
	if err != nil {
		return 0, fmt.Errorf("loading document: %w", err)
	}
	log.Debug("document loaded", "pages", len(pages))

	// Empty pages keep their number for attribution but embed nothing.
	var texts []string
	var kept []pdfload.Page
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		texts = append(texts, p.Text)
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		log.Warn("document has no extractable text, index will be empty")
	}

	// Clear must complete before any insert of this run; the mutex keeps
	// other runs out of the whole window so at most one generation of
	// vectors is ever live.
	w.indexMu.Lock()
	defer w.indexMu.Unlock()

	if err := w.index.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clearing index: %w", err)
	}
	log.Debug("index cleared")

	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}
	log.Debug("chunks embedded", "count", len(vectors))

	records := make([]retrieval.Record, len(kept))
	for i, p := range kept {
		records[i] = retrieval.Record{
			ID:        uuid.New().String(),
			Text:      p.Text,
			Source:    p.Source,
			Page:      p.Number,
			Embedding: vectors[i],
		}
	}

	if err := w.index.Insert(ctx, records); err != nil {
		return 0, fmt.Errorf("inserting records: %w", err)
	}
	log.Debug("records inserted", "count", len(records))

	return len(pages), nil
}

func (w *Worker) cleanupSource(job *storage.Job) {
	var payload jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return
	}
	if payload.SourcePath == "" {
		return
	}
	if err := os.Remove(payload.SourcePath); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("could not remove temp source file", "path", payload.SourcePath, "error", err)
	}
}
