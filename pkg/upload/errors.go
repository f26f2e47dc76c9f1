package upload

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoURL is returned when no endpoint URL is configured.
var ErrNoURL = errors.New("upload: endpoint URL required")

// StatusError reports a non-2xx response from the endpoint.
type StatusError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the (truncated) response body, for logs.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// StatusText returns the standard text for the status code.
func (e *StatusError) StatusText() string {
	return http.StatusText(e.StatusCode)
}

// IsServerError returns true for 5xx responses.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// TransportError reports that the request never produced a response:
// connection refused, DNS failure, aborted or timed out.
type TransportError struct {
	Err error
}

// Error returns the underlying failure message.
func (e *TransportError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a 2xx body that is not the expected JSON object.
type MalformedResponseError struct {
	Err error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
