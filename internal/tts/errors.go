package tts

import (
	"fmt"

	"github.com/ent0n29/rvcchat/internal/reliability"
)

// APIError represents an error response from a speech API.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) IsUnauthorized() bool { return e.StatusCode == 401 }

// IsRetryable reports rate limits and server-side failures.
func (e *APIError) IsRetryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}
