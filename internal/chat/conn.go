// Package chat provides the connection/session core shared by all transports:
// the session directory, the protocol handler and the per-connection loop.
package chat

import (
	"context"
	"errors"
)

// Conn abstracts a message-framed bidirectional connection for both TCP and
// WebSocket. This interface isolates transport details from chat logic.
type Conn interface {
	// Read blocks until one whole message is available.
	// Returns io.EOF when the peer closed the connection gracefully,
	// an error wrapping ErrMalformed for a frame that was skipped,
	// and fails promptly once ctx is cancelled.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one whole message. It honours the ctx deadline and does not
	// retain data after returning.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. It unblocks pending Read and Write calls.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// ErrMalformed marks an inbound frame the transport could not deliver
// (oversized, wrong frame type). The connection stays usable.
var ErrMalformed = errors.New("chat: malformed frame")
