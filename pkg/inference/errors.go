package inference

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/teslashibe/go-voice-agent/internal/httpc"
)

var (
	ErrUnknownProvider = errors.New("inference: unknown provider")

	// ErrProviderUnavailable marks a provider that could not serve a call:
	// missing credential, rate limit, network or API failure. The router
	// falls back on it.
	ErrProviderUnavailable = errors.New("inference: provider unavailable")

	// ErrNoAPIKey covers missing keys and placeholder values.
	ErrNoAPIKey = errors.New("inference: API key required")

	// ErrRateLimited means the local free-tier limiter refused the call
	// before it reached the network.
	ErrRateLimited   = errors.New("inference: rate limited")
	ErrEmptyResponse = errors.New("inference: empty response")
)

// APIError is a non-2xx answer from a completion API. It always matches
// ErrProviderUnavailable.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsUnauthorized reports a rejected credential (401 or 403).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *APIError) Unwrap() error { return ErrProviderUnavailable }

// ProviderError tags a transport or decoding failure with its provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags err with provider. Status failures from httpc and from
// the go-openai client both become *APIError so callers see one shape.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if status, msg, ok := statusOf(err); ok {
		return &APIError{StatusCode: status, Message: msg, Provider: provider}
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}

func statusOf(err error) (int, string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, apiErr.Message, true
	}
	var se *httpc.StatusError
	if errors.As(err, &se) {
		return se.StatusCode, se.Body, true
	}
	var oa *openai.APIError
	if errors.As(err, &oa) && oa.HTTPStatusCode != 0 {
		return oa.HTTPStatusCode, oa.Message, true
	}
	var re *openai.RequestError
	if errors.As(err, &re) && re.HTTPStatusCode != 0 {
		return re.HTTPStatusCode, http.StatusText(re.HTTPStatusCode), true
	}
	return 0, "", false
}
