package chat

import "errors"

// ErrClosed is returned by Submit after the controller was closed.
var ErrClosed = errors.New("chat controller closed")
