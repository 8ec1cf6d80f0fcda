package inference

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey     = errors.New("inference: API key required")
	ErrEmptyHistory = errors.New("inference: empty history")

	// ErrStreamClosed is returned by Next after Close.
	ErrStreamClosed = errors.New("inference: stream closed")
)

// APIError is a non-200 reply from a model endpoint. HTTPStatus lets
// backend.Classify map it onto the backend error taxonomy.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("inference [%s]: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("inference [%s]: status %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// IsRetryable reports rate limits and 5xx responses.
func (e *APIError) IsRetryable() bool { return e.IsRateLimited() || e.StatusCode >= 500 }

// ProviderError names the provider behind a transport or decode failure.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
