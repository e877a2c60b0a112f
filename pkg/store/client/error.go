package client

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned by the Sumo Logic and CloudZero stores when the
// remote API answers with a non-success status. The body is kept (truncated)
// so callers can log what the API actually said.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsRateLimited reports whether err is an HTTP 429 from a remote API. This is
// the only signal the retry policy treats as transient.
func IsRateLimited(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests
	}
	return false
}
