package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrSynthesis rejects an utterance whose audio could not be produced.
	// The session keeps going in text-only mode.
	ErrSynthesis = errors.New("tts: synthesis failed")

	// ErrInterrupted is returned by Utterance.Wait when the utterance was
	// cancelled or replaced by a newer one.
	ErrInterrupted = errors.New("tts: utterance interrupted")

	ErrUnsupportedFormat   = errors.New("tts: unsupported audio format")
	ErrProviderUnavailable = errors.New("tts: no providers available")
	ErrAllProvidersFailed  = errors.New("tts: all providers failed")
)

// APIError is a non-2xx response from a speech API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports HTTP 429.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// IsUnauthorized reports HTTP 401.
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// IsRetryable reports rate limiting and 5xx responses.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.StatusCode >= 500
}

// ProviderError tags an error with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags err with provider. API errors already carry their
// provider and are returned unchanged.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}
