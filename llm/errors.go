package llm

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ErrNoResponse is returned when every provider in the attempt order failed.
var ErrNoResponse = errors.New("no response from any provider")

// ProviderError is a failed attempt against a single provider. The
// processor moves on to the next provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StopRetryError reports a status code in the configured stop set. No
// further providers or retries are attempted.
type StopRetryError struct {
	Provider string
	Status   int
	Err      error
}

func (e *StopRetryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM %s request failed with status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("LLM %s request failed with status %d", e.Provider, e.Status)
}

func (e *StopRetryError) Unwrap() error { return e.Err }

// IsStopRetry reports whether err carries a StopRetryError.
func IsStopRetry(err error) bool {
	var stop *StopRetryError
	return errors.As(err, &stop)
}

// StatusCode extracts an HTTP status from a provider SDK error. It returns
// 0 when the error carries no status.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code
	}

	var statusErr interface{ HTTPStatus() int }
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatus()
	}

	return 0
}
