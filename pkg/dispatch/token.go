package dispatch

import (
	"context"
	"sync/atomic"
)

// CancelToken requests early termination of one in-flight request and its
// response stream. It is owned by a single submission.
type CancelToken struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// NewCancelToken derives a cancellable context from parent and returns it
// with the token controlling it.
func NewCancelToken(parent context.Context) (context.Context, *CancelToken) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &CancelToken{cancel: cancel}
}

// Cancel aborts the request. A read blocked on the response body returns
// promptly. Calling Cancel more than once is harmless.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports whether Cancel was called.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// release frees the context without marking the token as cancelled.
func (t *CancelToken) release() {
	t.cancel()
}
