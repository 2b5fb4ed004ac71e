package session

import "errors"

// Session lifecycle errors.
var (
	// ErrClosed indicates the session has been closed and cannot be reused.
	ErrClosed = errors.New("session: closed")

	// ErrNotReady indicates an operation that requires a completed handshake
	// was attempted before one. Feature requests never return this; they
	// resolve to an empty result instead. Outbound document notifications do.
	ErrNotReady = errors.New("session: not ready")
)
