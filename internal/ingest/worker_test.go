package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/onedoc/internal/pdfload"
	"github.com/kalambet/onedoc/internal/retrieval"
	"github.com/kalambet/onedoc/internal/storage"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

// fakeIndex is an in-memory index recording operation order.
type fakeIndex struct {
	mu      sync.Mutex
	records []retrieval.Record
	ops     []string
	clearErr error
}

func (f *fakeIndex) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.records = nil
	f.ops = append(f.ops, "clear")
	return nil
}

func (f *fakeIndex) Insert(_ context.Context, records []retrieval.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	f.ops = append(f.ops, "insert")
	return nil
}

// search is a brute-force dot-product lookup for end-to-end assertions.
func (f *fakeIndex) search(vector []float32, topK int) []retrieval.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	type scored struct {
		rec   retrieval.Record
		score float32
	}
	var all []scored
	for _, r := range f.records {
		var dot float32
		for i := range vector {
			if i < len(r.Embedding) {
				dot += vector[i] * r.Embedding[i]
			}
		}
		all = append(all, scored{r, dot})
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].score > all[i].score {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	var out []retrieval.Record
	for i := 0; i < len(all) && i < topK; i++ {
		out = append(out, all[i].rec)
	}
	return out
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, sourcePath, name string, maxAttempts int) {
	t.Helper()
	q := NewQueue(store)
	if err := q.Enqueue(context.Background(), sourcePath, name); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if maxAttempts > 0 {
		if _, err := store.DB().Exec(`UPDATE jobs SET max_attempts = ?`, maxAttempts); err != nil {
			t.Fatalf("setting max_attempts: %v", err)
		}
	}
}

func tempSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.pdf")
	if err := os.WriteFile(path, []byte("%PDF-stub"), 0o644); err != nil {
		t.Fatalf("writing temp source: %v", err)
	}
	return path
}

func pagesFor(name string, texts ...string) []pdfload.Page {
	pages := make([]pdfload.Page, len(texts))
	for i, text := range texts {
		pages[i] = pdfload.Page{Number: i + 1, Text: text, Source: name}
	}
	return pages
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, nil, &fakeEmbedder{}, &fakeIndex{}, 0, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("RunOnce = true on empty queue, want false")
	}
}

func TestRunOnce_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	source := tempSource(t)
	enqueueTestJob(t, store, source, "report.pdf", 0)

	index := &fakeIndex{}
	loader := func(path string) ([]pdfload.Page, error) {
		if path != source {
			t.Errorf("loader path = %q, want %q", path, source)
		}
		return pagesFor("report.pdf", "page one", "page two", "page three"), nil
	}
	w := NewWorker(store, loader, &fakeEmbedder{}, index, 0, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce = false, want true")
	}

	if len(index.ops) < 2 || index.ops[0] != "clear" || index.ops[1] != "insert" {
		t.Errorf("ops = %v, want clear before insert", index.ops)
	}
	if len(index.records) != 3 {
		t.Fatalf("inserted %d records, want 3", len(index.records))
	}
	if index.records[1].Page != 2 || index.records[1].Text != "page two" {
		t.Errorf("records[1] = %+v", index.records[1])
	}

	n, err := store.CountJobs("completed")
	if err != nil || n != 1 {
		t.Errorf("completed jobs = %d (err %v), want 1", n, err)
	}

	doc, err := store.CurrentDocument()
	if err != nil {
		t.Fatalf("CurrentDocument: %v", err)
	}
	if doc.OriginalName != "report.pdf" || doc.Pages != 3 {
		t.Errorf("current document = %+v", doc)
	}

	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Error("temp source file was not removed after success")
	}
}

func TestRunOnce_LoadFailureLeavesIndexUntouched(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, filepath.Join(t.TempDir(), "gone.pdf"), "gone.pdf", 0)

	index := &fakeIndex{records: []retrieval.Record{{ID: "old"}}}
	loader := func(string) ([]pdfload.Page, error) {
		return nil, fmt.Errorf("%w: gone.pdf", pdfload.ErrInvalidDocument)
	}
	w := NewWorker(store, loader, &fakeEmbedder{}, index, 0, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce = false, want true (job was claimed and failed)")
	}

	// The load failed before clearing: the previous generation stays live.
	if len(index.ops) != 0 {
		t.Errorf("index ops = %v, want none", index.ops)
	}
	if len(index.records) != 1 || index.records[0].ID != "old" {
		t.Errorf("index records = %+v, want the old record only", index.records)
	}

	if _, err := store.CurrentDocument(); err != storage.ErrNotFound {
		t.Errorf("CurrentDocument = %v, want ErrNotFound (failed run is not live)", err)
	}
}

func TestRunOnce_ClearFailureFailsJob(t *testing.T) {
	store := openTestStore(t)
	source := tempSource(t)
	enqueueTestJob(t, store, source, "report.pdf", 1)

	index := &fakeIndex{clearErr: errors.New("qdrant down")}
	loader := func(string) ([]pdfload.Page, error) {
		return pagesFor("report.pdf", "text"), nil
	}
	w := NewWorker(store, loader, &fakeEmbedder{}, index, 0, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs`).Scan(&status); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "failed" {
		t.Errorf("job status = %q, want failed (single attempt)", status)
	}
}

func TestRunOnce_TempFileSurvivesRetries(t *testing.T) {
	store := openTestStore(t)
	source := tempSource(t)
	enqueueTestJob(t, store, source, "report.pdf", 2)

	loader := func(string) ([]pdfload.Page, error) {
		return nil, errors.New("transient failure")
	}
	w := NewWorker(store, loader, &fakeEmbedder{}, &fakeIndex{}, 0, 0)

	// First attempt: job goes back to pending, file must survive.
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("temp file removed before final attempt: %v", err)
	}

	// Make the job due again and exhaust the budget.
	if _, err := store.DB().Exec(`UPDATE jobs SET run_after = ?`,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		t.Fatalf("resetting run_after: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Error("temp file not removed after final attempt")
	}
}

func TestIngestion_ReplacesPreviousDocumentAndFindsPage2(t *testing.T) {
	store := openTestStore(t)
	source := tempSource(t)
	enqueueTestJob(t, store, source, "sample.pdf", 0)

	// Index starts with 10 unrelated vectors from an earlier document.
	index := &fakeIndex{}
	for i := range 10 {
		index.records = append(index.records, retrieval.Record{
			ID:        fmt.Sprintf("stale-%d", i),
			Source:    "old.pdf",
			Embedding: []float32{0, 0, 1},
		})
	}

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"intro text":              {1, 0, 0},
		"the moon landing budget": {0, 1, 0},
		"closing remarks":         {0.7, 0.7, 0},
	}}
	loader := func(string) ([]pdfload.Page, error) {
		return pagesFor("sample.pdf", "intro text", "the moon landing budget", "closing remarks"), nil
	}
	w := NewWorker(store, loader, embedder, index, 0, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(index.records) != 3 {
		t.Fatalf("index holds %d records, want exactly 3 (stale ones cleared)", len(index.records))
	}
	for _, r := range index.records {
		if r.Source != "sample.pdf" {
			t.Errorf("record from %q survived the clear", r.Source)
		}
	}

	// A query matching only page 2's content must surface page 2 on top.
	top := index.search([]float32{0, 1, 0}, 2)
	if len(top) == 0 || top[0].Page != 2 {
		t.Errorf("top result = %+v, want page 2", top)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, nil, &fakeEmbedder{}, &fakeIndex{}, 10*time.Millisecond, 2)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()

	cancel()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
