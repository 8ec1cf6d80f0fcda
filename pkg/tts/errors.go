package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey   = errors.New("tts: API key required")
	ErrNoVoiceID  = errors.New("tts: voice ID required")
	ErrEmptyAudio = errors.New("tts: empty audio")

	// ErrStopped is returned by Speak when Stop interrupted it.
	ErrStopped = errors.New("tts: stopped")
)

// APIError is a non-200 synthesis response. It satisfies
// backend.StatusError so callers can classify it.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts [%s]: status %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tts [%s]: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// IsRetryable reports rate limits and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ProviderError attaches the provider name to a transport or decode error.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
