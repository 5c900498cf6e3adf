package fudo

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the requested entity does not exist upstream.
// It is terminal: callers record the ID as checked and move on.
var ErrNotFound = errors.New("expense not found")

// TransientError wraps a retryable fetch failure: network errors, auth
// failures, rate limits, and server errors.
type TransientError struct {
	StatusCode int // 0 when the request never reached the server
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient fetch failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
