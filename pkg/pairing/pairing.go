// Package pairing implements the HAP pair-setup (M1–M6) and pair-verify
// (PV1–PV4) state machines used to authenticate against an Apple TV over
// the Companion link.
//
// Pair-setup runs once per device with a user-supplied PIN and produces
// long-term Ed25519 credentials. Pair-verify runs per connection from those
// credentials and yields the ChaCha20-Poly1305 channel keys.
//
// Both drivers are pure protocol machines: they consume and produce TLV8
// message bodies plus the frame type each body must be carried in. Framing
// and transport belong to the caller.
package pairing

import (
	"errors"
	"fmt"
	"time"

	"github.com/reekystive/cuepad/pkg/frame"
)

// SRPUsername is the fixed SRP identity for HAP pair-setup.
const SRPUsername = "Pair-Setup"

// Pairing method carried in the M1 method tag.
const MethodPairSetup uint8 = 0x00

// Sequence numbers carried in the state tag.
const (
	seqM1 uint8 = 0x01
	seqM2 uint8 = 0x02
	seqM3 uint8 = 0x03
	seqM4 uint8 = 0x04
	seqM5 uint8 = 0x05
	seqM6 uint8 = 0x06

	seqPV1 uint8 = 0x01
	seqPV2 uint8 = 0x02
	seqPV3 uint8 = 0x03
	seqPV4 uint8 = 0x04
)

// Message is one outbound pairing message: a TLV8 body and the frame type
// it must be sent as.
type Message struct {
	FrameType frame.Type
	Body      []byte
}

// ErrorCode is a pairing rejection code from the error tag.
type ErrorCode uint8

// Rejection codes surfaced verbatim from the accessory.
const (
	ErrorUnknown        ErrorCode = 0x01
	ErrorAuthentication ErrorCode = 0x02
	ErrorBackOff        ErrorCode = 0x03
	ErrorMaxPeers       ErrorCode = 0x04
	ErrorMaxTries       ErrorCode = 0x05
	ErrorUnavailable    ErrorCode = 0x06
	ErrorBusy           ErrorCode = 0x07
)

// String returns the rejection code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrorUnknown:
		return "Unknown"
	case ErrorAuthentication:
		return "Authentication"
	case ErrorBackOff:
		return "BackOff"
	case ErrorMaxPeers:
		return "MaxPeers"
	case ErrorMaxTries:
		return "MaxTries"
	case ErrorUnavailable:
		return "Unavailable"
	case ErrorBusy:
		return "Busy"
	default:
		return fmt.Sprintf("Code(0x%02x)", uint8(c))
	}
}

// PairingError is a rejection reported by the accessory. RetryDelay is set
// only for BackOff.
type PairingError struct {
	Code       ErrorCode
	RetryDelay time.Duration
}

func (e *PairingError) Error() string {
	if e.Code == ErrorBackOff && e.RetryDelay > 0 {
		return fmt.Sprintf("pairing: rejected (%s, retry after %s)", e.Code, e.RetryDelay)
	}
	return fmt.Sprintf("pairing: rejected (%s)", e.Code)
}

// Errors.
var (
	// ErrInvalidState is returned when a driver method is called in the
	// wrong state, including after failure. A failed driver must be
	// discarded and the exchange restarted.
	ErrInvalidState = errors.New("pairing: invalid protocol state")

	// ErrUnexpectedSeqNo is returned when a reply's sequence number does
	// not match the expected next state.
	ErrUnexpectedSeqNo = errors.New("pairing: unexpected sequence number")

	// ErrMissingTag is returned when a mandatory TLV tag is absent.
	ErrMissingTag = errors.New("pairing: mandatory tag missing")

	// ErrInvalidKeyLength is returned when a key field has the wrong size.
	ErrInvalidKeyLength = errors.New("pairing: invalid key length")

	// ErrSignatureVerification is returned when an accessory signature
	// does not verify against the expected key.
	ErrSignatureVerification = errors.New("pairing: signature verification failed")

	// ErrInvalidPIN is returned for a PIN that is not exactly four digits.
	ErrInvalidPIN = errors.New("pairing: PIN must be four digits")
)
