package core

import "context"

// Conn is a live duplex transport handle, e.g. one accepted WebSocket.
type Conn interface {
	// ReadFrame blocks until the next inbound text frame arrives.
	// It returns ErrConnClosed once the peer completed a normal close handshake.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame sends one text frame. It must be safe for concurrent use.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close releases the transport. cause is nil for a normal close.
	Close(cause error) error
}
