package portal

import (
	"errors"
	"fmt"
)

// ErrAuthentication is returned when the scripted login completes without a
// bearer token ever being observed on the wire. It aborts the whole run.
var ErrAuthentication = errors.New("portal authentication failed: no bearer token intercepted")

// StatusError is a non-2xx response from a portal endpoint
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("portal returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status warrants another attempt. Server
// errors and rate limits are transient; other 4xx are permanent.
func (e *StatusError) Retryable() bool {
	if e.StatusCode == 429 {
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode < 600
}
