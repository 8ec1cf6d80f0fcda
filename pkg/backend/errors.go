package backend

import (
	"context"
	"errors"
	"io"
	"net"
)

// Kind classifies provider failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredential
	KindNetwork
	KindRateLimited
	KindBackendUnavailable
	KindConfigurationMissing
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredential:
		return "invalid_credential"
	case KindNetwork:
		return "network_error"
	case KindRateLimited:
		return "rate_limited"
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindConfigurationMissing:
		return "configuration_missing"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidCredential    = &Error{Kind: KindInvalidCredential}
	ErrNetwork              = &Error{Kind: KindNetwork}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrBackendUnavailable   = &Error{Kind: KindBackendUnavailable}
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrUnknown              = &Error{Kind: KindUnknown}
)

// InvalidCredential reports a missing or rejected key for a backend.
func InvalidCredential(id ID) error {
	return &Error{Kind: KindInvalidCredential, Detail: string(id)}
}

// NetworkError wraps a transport failure.
func NetworkError(detail string, err error) error {
	return &Error{Kind: KindNetwork, Detail: detail, Err: err}
}

// RateLimited reports a throttled request.
func RateLimited(detail string) error {
	return &Error{Kind: KindRateLimited, Detail: detail}
}

// BackendUnavailable names a backend that cannot serve requests.
func BackendUnavailable(name string) error {
	return &Error{Kind: KindBackendUnavailable, Detail: name}
}

// ConfigurationMissing reports that nothing usable is configured.
func ConfigurationMissing(detail string) error {
	return &Error{Kind: KindConfigurationMissing, Detail: detail}
}

// Unknown wraps an unclassified failure.
func Unknown(detail string, err error) error {
	return &Error{Kind: KindUnknown, Detail: detail, Err: err}
}

// StatusError is implemented by provider API errors that carry an HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

// Classify maps err onto the taxonomy. Errors that are already classified
// pass through; context cancellation is returned untouched.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se StatusError
	if errors.As(err, &se) {
		switch code := se.HTTPStatus(); {
		case code == 401 || code == 403:
			return &Error{Kind: KindInvalidCredential, Detail: provider, Err: err}
		case code == 429:
			return &Error{Kind: KindRateLimited, Detail: provider, Err: err}
		case code >= 500:
			return &Error{Kind: KindBackendUnavailable, Detail: provider, Err: err}
		default:
			return &Error{Kind: KindUnknown, Detail: provider, Err: err}
		}
	}

	var ne net.Error
	var oe *net.OpError
	if errors.As(err, &ne) || errors.As(err, &oe) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: KindNetwork, Detail: provider, Err: err}
	}
	return &Error{Kind: KindUnknown, Detail: provider, Err: err}
}
