// Package transport provides the byte-stream abstraction the Companion
// session runs over. The core needs exactly three operations: send bytes,
// receive bytes, close. Framing and encryption happen above this layer.
package transport

import "errors"

// Errors.
var (
	// ErrClosed is returned after Close, and by Recv when the peer closed
	// the stream.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned by Dial for an unusable endpoint.
	ErrInvalidAddress = errors.New("transport: invalid address")
)

// Conn is a byte-oriented connection to a device.
type Conn interface {
	// Send writes the given bytes to the stream.
	Send(data []byte) error

	// Recv blocks for the next chunk of received bytes. Returns ErrClosed
	// once the stream is closed by either side. Chunk boundaries carry no
	// meaning.
	Recv() ([]byte, error)

	// Close tears down the connection. Safe to call more than once.
	Close() error

	// RemoteAddr describes the peer endpoint.
	RemoteAddr() string
}
