package analysis

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"visibility-backend/internal/extract"
	"visibility-backend/internal/providers"
)

var ErrNotFound = errors.New("not found")

// Task error codes, reported in analysis-complete events.
const (
	CodeProviderTimeout     = "PROVIDER_TIMEOUT"
	CodeProviderError       = "PROVIDER_ERROR"
	CodeEmptyResponse       = "EMPTY_RESPONSE"
	CodeExtractionFailed    = "EXTRACTION_FAILED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeRateLimited         = "PROVIDER_RATE_LIMITED"
)

// Setup error codes, reported in the terminal error event.
const (
	CodeNoProviders       = "NO_PROVIDERS"
	CodeNoPrompts         = "NO_PROMPTS"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeAggregationFailed = "AGGREGATION_FAILED"
	CodeRunTimeout        = "RUN_TIMEOUT"
)

const maxErrorMessage = 500

// SetupError prevents a run from dispatching any task.
type SetupError struct {
	Code    string
	Message string
	Err     error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *SetupError) Unwrap() error { return e.Err }

// TaskError is a failure local to one grid cell.
type TaskError struct {
	Code    string
	Message string
	Err     error
}

func (e *TaskError) Error() string { return e.Code + ": " + e.Message }

func (e *TaskError) Unwrap() error { return e.Err }

func classifyProviderError(err error) *TaskError {
	code := CodeProviderError
	switch {
	case errors.Is(err, providers.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code = CodeProviderTimeout
	case errors.Is(err, providers.ErrEmptyResponse):
		code = CodeEmptyResponse
	case errors.Is(err, providers.ErrUnavailable):
		code = CodeProviderUnavailable
	case errors.Is(err, providers.ErrRateLimited):
		code = CodeRateLimited
	}
	return &TaskError{Code: code, Message: sanitizeMessage(err.Error()), Err: err}
}

func classifyExtractionError(err error) *TaskError {
	code := CodeExtractionFailed
	if errors.Is(err, extract.ErrEmptyText) {
		code = CodeEmptyResponse
	}
	return &TaskError{Code: code, Message: sanitizeMessage(err.Error()), Err: err}
}

// sanitizeMessage collapses an error to one line of at most maxErrorMessage runes.
func sanitizeMessage(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if utf8.RuneCountInString(msg) <= maxErrorMessage {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxErrorMessage-3]) + "..."
}
