// Package errs defines the error kinds shared by the adapters, the retry
// policy, the analysis pipeline and the chat handlers.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes for the application.
const (
	CodeUnknown       = "UNKNOWN"
	CodeQuota         = "QUOTA"
	CodeProvider      = "PROVIDER"
	CodeProcessing    = "PROCESSING"
	CodeStorage       = "STORAGE"
	CodeUnsupported   = "UNSUPPORTED"
	CodeNotConfigured = "NOT_CONFIGURED"
)

var (
	// ErrQuotaExceeded marks a provider-signaled rate or usage limit.
	// It is the only kind the retry policy retries by default.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrProcessing is the generic failure surfaced for non-retryable errors.
	ErrProcessing = errors.New("processing failed")
	// ErrFileUnsupported is informational: the file kind has no analyzer.
	ErrFileUnsupported = errors.New("file type not supported for analysis")
	// ErrStorage wraps failures of the history store.
	ErrStorage = errors.New("storage failure")
	// ErrNotConfigured is returned by optional adapters without credentials.
	ErrNotConfigured = errors.New("service not configured")
)

// ProviderError describes a failed call to a remote AI or search service.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " request failed"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is reports quota exhaustion for HTTP 429 responses so callers can use
// errors.Is(err, ErrQuotaExceeded) regardless of the provider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.StatusCode == http.StatusTooManyRequests
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider string, statusCode int, body string, cause error) error {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Body: body, Err: cause}
}

// Storage wraps err as a storage failure, keeping the cause.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Code returns the code of the most specific known kind in err's chain,
// or CodeUnknown.
func Code(err error) string {
	var provErr *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExceeded):
		return CodeQuota
	case errors.Is(err, ErrStorage):
		return CodeStorage
	case errors.Is(err, ErrFileUnsupported):
		return CodeUnsupported
	case errors.Is(err, ErrNotConfigured):
		return CodeNotConfigured
	case errors.As(err, &provErr):
		return CodeProvider
	case errors.Is(err, ErrProcessing):
		return CodeProcessing
	}
	return CodeUnknown
}
