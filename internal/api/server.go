// Package api exposes the HTTP surface: document upload, the streaming
// question endpoint, and a liveness probe.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/onedoc/internal/blob"
	"github.com/kalambet/onedoc/internal/chat"
	"github.com/kalambet/onedoc/internal/ingest"
)

const maxUploadSize = 50 << 20 // 50MB

var pdfMagic = []byte("%PDF-")

// Answerer streams a grounded answer as a sequence of tagged events.
type Answerer interface {
	Answer(ctx context.Context, question string, emit func(event any) error) error
}

// Deps holds the collaborators of the HTTP handler.
type Deps struct {
	Chat    Answerer
	Queue   ingest.Queue
	Blobs   blob.Store
	TempDir string // temp copies for the ingestion worker; "" means os.TempDir
}

// NewHandler returns the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/upload", handleUpload(deps))
	r.Get("/chat", handleChat(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "only PDF files are accepted")
			return
		}

		// Extension alone is not enough: sniff the magic bytes too.
		head := make([]byte, len(pdfMagic))
		if _, err := io.ReadFull(file, head); err != nil || !bytes.Equal(head, pdfMagic) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is not a valid PDF")
			return
		}

		tempPath, err := writeTemp(deps.TempDir, head, file)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing upload: %v", err)
			return
		}

		// Durable copy is best-effort: a disabled or failing blob store
		// must not reject the upload.
		var url string
		src, err := os.Open(tempPath)
		if err == nil {
			url, err = deps.Blobs.Put(r.Context(), header.Filename, src)
			src.Close()
		}
		if err != nil {
			slog.Warn("could not store upload durably", "file", header.Filename, "error", err)
			url = ""
		}

		// Fire-and-forget: indexing failures are background concerns.
		if err := deps.Queue.Enqueue(r.Context(), tempPath, header.Filename); err != nil {
			slog.Error("could not enqueue ingestion", "file", header.Filename, "error", err)
		}

		resp := map[string]string{
			"message": fmt.Sprintf("%s accepted, indexing in background", header.Filename),
		}
		if url != "" {
			resp["url"] = url
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// writeTemp writes head followed by the rest of src into a fresh temp file
// and returns its path.
func writeTemp(dir string, head []byte, src io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "onedoc-upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(head); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	return f.Name(), nil
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		message := r.URL.Query().Get("message")
		if message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message query parameter is required")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		// Headers are deferred to the first event so validation failures
		// inside Answer can still produce a plain error response.
		streaming := false
		emit := func(event any) error {
			payload, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("encoding event: %w", err)
			}
			if !streaming {
				w.Header().Set("Content-Type", "text/event-stream")
				w.Header().Set("Cache-Control", "no-cache")
				w.Header().Set("Connection", "keep-alive")
				streaming = true
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		err := deps.Chat.Answer(r.Context(), message, emit)
		if err == nil || streaming {
			// Past the first event the stream already carries its own
			// terminal state; a late error just means the client left.
			return
		}

		switch {
		case errors.Is(err, chat.ErrEmptyQuestion):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case errors.Is(err, chat.ErrNoAPIKey):
			httpError(w, http.StatusInternalServerError, "configuration_error",
				"%v: set ONEDOC_OPENROUTER_API_KEY", err)
		default:
			slog.Error("chat request failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "internal error")
		}
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
