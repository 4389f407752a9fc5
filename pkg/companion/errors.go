package companion

import "errors"

// Errors surfaced by the session.
var (
	// ErrNotConnected is returned when an operation needs an established,
	// verified session.
	ErrNotConnected = errors.New("companion: session not established")

	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("companion: session closed")

	// ErrTimeout is returned when a reply does not arrive within the
	// request timeout. The in-flight exchange is invalidated and the
	// session is torn down.
	ErrTimeout = errors.New("companion: request timed out")

	// ErrNotFocused is returned by text operations when no text field has
	// focus on the device. The session itself is unaffected.
	ErrNotFocused = errors.New("companion: no focused text field")

	// ErrCounterExhausted is returned when a frame counter would wrap;
	// the session must be re-established.
	ErrCounterExhausted = errors.New("companion: frame counter exhausted")

	// ErrBusy is returned when a pairing or verify exchange is already in
	// flight.
	ErrBusy = errors.New("companion: exchange already in flight")

	// ErrDecrypt is returned when an inbound frame fails authentication;
	// the session is torn down.
	ErrDecrypt = errors.New("companion: inbound frame failed authentication")

	// ErrInvalidCommand is returned for an out-of-range key or media code.
	ErrInvalidCommand = errors.New("companion: unknown key or media code")
)
