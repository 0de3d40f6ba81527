// Package chat answers questions about the active document with
// retrieval-augmented generation, streamed as tagged events.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kalambet/onedoc/internal/llm"
	"github.com/kalambet/onedoc/internal/retrieval"
)

// ErrEmptyQuestion rejects blank questions before any stream is opened.
var ErrEmptyQuestion = errors.New("question must not be empty")

// ErrNoAPIKey rejects requests when no LLM credential is configured.
var ErrNoAPIKey = errors.New("no language model API key configured")

// Retriever finds chunks of the active document relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ScoredRecord, error)
}

// Streamer produces a streaming completion for a prompt pair.
type Streamer interface {
	HasCredentials() bool
	Stream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string) error) error
}

// Service is the retrieval-augmented query service.
type Service struct {
	retriever Retriever
	llm       Streamer
	topK      int
	logger    *slog.Logger
}

// NewService creates a Service retrieving topK chunks per question.
// topK is intentionally small: it bounds prompt size and latency rather
// than maximizing recall.
func NewService(retriever Retriever, streamer Streamer, topK int) *Service {
	if topK <= 0 {
		topK = 2
	}
	return &Service{
		retriever: retriever,
		llm:       streamer,
		topK:      topK,
		logger:    slog.Default(),
	}
}

// Answer streams a grounded answer for question through emit.
//
// Validation failures (ErrEmptyQuestion, ErrNoAPIKey) are returned before
// anything is emitted, so the caller can still reject the request outright.
// Once emission starts the stream always terminates with done or error; the
// only error Answer returns past that point is emit's own, meaning the
// client is gone and no further writes should be attempted.
func (s *Service) Answer(ctx context.Context, question string, emit func(event any) error) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyQuestion
	}
	if !s.llm.HasCredentials() {
		return ErrNoAPIKey
	}

	docs, retrievalStatus := s.retrieve(ctx, question)
	if err := emit(newMetadataEvent(docs, retrievalStatus)); err != nil {
		return err
	}

	var emitErr error
	streamErr := s.llm.Stream(ctx, systemPrompt(docs), question, func(delta string) error {
		if err := emit(newContentEvent(delta)); err != nil {
			emitErr = err
			return err
		}
		return nil
	})

	if emitErr != nil {
		return emitErr
	}
	if streamErr != nil {
		apiErr := llm.Classify(streamErr)
		s.logger.Warn("model stream failed", "status", apiErr.Status, "error", apiErr.Message)
		return emit(errorEventFrom(apiErr))
	}

	return emit(newDoneEvent())
}

// retrieve degrades gracefully: an unreachable index yields zero docs and a
// failed status instead of aborting the whole request.
func (s *Service) retrieve(ctx context.Context, question string) ([]Doc, string) {
	records, err := s.retriever.Retrieve(ctx, question, s.topK)
	if err != nil {
		s.logger.Warn("retrieval failed, answering without context", "error", err)
		return nil, RetrievalFailed
	}

	docs := make([]Doc, len(records))
	for i, rec := range records {
		docs[i] = Doc{
			Text:   rec.Text,
			Source: rec.Source,
			Page:   rec.Page,
			Score:  rec.Score,
		}
	}
	return docs, RetrievalOK
}

func errorEventFrom(apiErr *llm.APIError) ErrorEvent {
	e := ErrorEvent{
		Type:    eventError,
		Status:  string(apiErr.Status),
		Error:   "model_stream_failed",
		Message: apiErr.Message,
		Hint:    apiErr.Hint,
	}
	if apiErr.RetryAfter > 0 {
		e.RetryAfterSeconds = int(apiErr.RetryAfter.Seconds())
	}
	return e
}
