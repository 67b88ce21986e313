// Package transport opens the agent event stream over HTTP and decodes its
// chunked body into UTF-8 text fragments.
package transport

import (
	"errors"
	"fmt"
)

// ErrNoBody is the cause of a TransportError when a response has no readable body.
var ErrNoBody = errors.New("response has no body")

// TransportError represents a failure to obtain or read the event stream.
// Cancellation is never reported as a TransportError.
type TransportError struct {
	Cause      error
	Message    string
	StatusCode int
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Cause != nil:
		return fmt.Sprintf("transport error: %s (status %d): %v", e.Message, e.StatusCode, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error: %s (status %d)", e.Message, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("transport error: %s: %v", e.Message, e.Cause)
	default:
		return fmt.Sprintf("transport error: %s", e.Message)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
