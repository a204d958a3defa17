package llm

import (
	"errors"
	"fmt"
	"strings"
)

// BackendError wraps a failure from the inference backend with enough
// classification for the caller to decide between retry and surfacing.
type BackendError struct {
	Message    string
	Cause      error
	Provider   string
	StatusCode int
	Retryable  bool
}

func (e *BackendError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BackendError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err is safe to retry. Unknown errors default to
// retryable, matching provider guidance for transient failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return true
}

// classifyError converts a raw provider error into a BackendError based on the
// message content. Providers rarely expose structured errors through gollm, so
// classification is textual.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	be := &BackendError{Message: msg, Cause: err, Provider: provider}
	switch {
	case strings.Contains(lower, "401"), strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "invalid api key"), strings.Contains(lower, "invalid key"):
		be.StatusCode = 401
	case strings.Contains(lower, "403"), strings.Contains(lower, "forbidden"):
		be.StatusCode = 403
	case strings.Contains(lower, "404"), strings.Contains(lower, "not found"):
		be.StatusCode = 404
	case strings.Contains(lower, "context length"), strings.Contains(lower, "too many tokens"):
		be.StatusCode = 413
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"):
		be.StatusCode = 429
		be.Retryable = true
	case strings.Contains(lower, "500"), strings.Contains(lower, "internal server"):
		be.StatusCode = 500
		be.Retryable = true
	case strings.Contains(lower, "timeout"):
		be.StatusCode = 408
		be.Retryable = true
	default:
		be.Retryable = true
	}
	return be
}
