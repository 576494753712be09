package dispatch

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled reports a request that was cancelled through its token,
	// its parent context, or an expired deadline. It is not a failure.
	ErrCancelled = errors.New("request cancelled")

	// ErrMissingBody reports a successful response with no readable body.
	ErrMissingBody = errors.New("response has no readable body")
)

// DispatchError is a failure to obtain a response stream: the connection
// failed, or the service answered with a non-success status.
type DispatchError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Body holds the start of the error response body, if any.
	Body string

	Err error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("chat service returned status %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("chat service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("sending request to chat service: %v", e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err is the result of an intentional
// cancellation rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
