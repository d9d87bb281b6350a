package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Error is returned by every Client operation that fails. Either StatusCode
// and Body describe an unexpected server answer, or Err holds the underlying
// connection or decoding failure.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, body)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError checks if the error is or wraps a transport Error
func IsTransportError(err error) bool {
	var tErr *Error
	return err != nil && errors.As(err, &tErr)
}

// StatusCode returns the HTTP status of a transport Error, or 0 if the error
// did not come from an unexpected server answer
func StatusCode(err error) int {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.StatusCode
	}
	return 0
}
