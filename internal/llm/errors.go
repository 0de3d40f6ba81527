package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Status is a machine-readable classification of an upstream LLM failure.
// Callers surface these verbatim to the client for troubleshooting; only
// StatusRateLimited is meant to drive behavior (retry after the given delay).
type Status string

const (
	StatusInvalidAPIKey   Status = "invalid_api_key"
	StatusRateLimited     Status = "rate_limited"
	StatusQuotaExhausted  Status = "insufficient_quota"
	StatusModelNotFound   Status = "model_not_found"
	StatusUpstreamTimeout Status = "upstream_timeout"
	StatusUpstreamError   Status = "upstream_error"
)

// APIError is a classified upstream failure with a human hint.
type APIError struct {
	Status     Status
	HTTPCode   int
	Message    string
	Hint       string
	RetryAfter time.Duration // only set for StatusRateLimited
}

func (e *APIError) Error() string {
	if e.HTTPCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Status, e.HTTPCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Classify maps any error from the streaming client to an APIError.
// Already-classified errors pass through unchanged.
func Classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{
			Status:  StatusUpstreamTimeout,
			Message: err.Error(),
			Hint:    "The model provider did not respond in time. Try again.",
		}
	}

	return &APIError{
		Status:  StatusUpstreamError,
		Message: err.Error(),
		Hint:    "Unexpected upstream failure. Check connectivity to the model provider.",
	}
}

func classifyHTTP(code int, message string, retryAfter time.Duration) *APIError {
	e := &APIError{HTTPCode: code, Message: message}
	switch code {
	case 401, 403:
		e.Status = StatusInvalidAPIKey
		e.Hint = "The API key was rejected. Check ONEDOC_OPENROUTER_API_KEY."
	case 402:
		e.Status = StatusQuotaExhausted
		e.Hint = "The account ran out of credits. Top up or switch accounts."
	case 404:
		e.Status = StatusModelNotFound
		e.Hint = "The requested model is unknown or unavailable. Check ONEDOC_MODEL."
	case 429:
		e.Status = StatusRateLimited
		e.Hint = "Too many requests. Wait before retrying."
		if retryAfter > 0 {
			e.RetryAfter = retryAfter
		} else {
			e.RetryAfter = 5 * time.Second
		}
	default:
		e.Status = StatusUpstreamError
		e.Hint = "Unexpected upstream failure. Check the provider status page."
	}
	return e
}
