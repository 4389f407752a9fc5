// Package frame implements the Companion link wire framing.
//
// A frame is a 4-byte big-endian payload length (counting the type and
// flags bytes), a 1-byte frame type, a 1-byte flags field and the payload.
// Payloads are TLV8 during pairing and OPACK once the session is
// established.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type identifies the frame kind.
type Type uint8

// Frame types used by the Companion link.
const (
	TypePSStart Type = 0x01
	TypePSNext  Type = 0x02
	TypePVStart Type = 0x03
	TypePVNext  Type = 0x04
	TypeNoOp    Type = 0x05
	TypeEvent   Type = 0x06
)

// String returns the frame type name.
func (t Type) String() string {
	switch t {
	case TypePSStart:
		return "PS_Start"
	case TypePSNext:
		return "PS_Next"
	case TypePVStart:
		return "PV_Start"
	case TypePVNext:
		return "PV_Next"
	case TypeNoOp:
		return "NoOp"
	case TypeEvent:
		return "E_OPACK"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// IsValid reports whether t is a known frame type.
func (t Type) IsValid() bool {
	return t >= TypePSStart && t <= TypeEvent
}

// headerSize is the length prefix plus type and flags bytes.
const headerSize = 6

// Frame is a single Companion message.
type Frame struct {
	Type    Type
	Flags   uint8
	Payload []byte
}

// Errors.
var (
	// ErrInsufficientData is returned by Next when the buffer does not yet
	// hold a complete frame.
	ErrInsufficientData = errors.New("frame: insufficient data")
)

// UnknownTypeError reports a frame whose type byte is not a known kind.
type UnknownTypeError struct {
	Type uint8
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("frame: unknown frame type 0x%02x", e.Type)
}

// Encode serialises the frame.
func Encode(f *Frame) []byte {
	buf := make([]byte, headerSize+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(f.Payload)+2))
	buf[4] = uint8(f.Type)
	buf[5] = f.Flags
	copy(buf[headerSize:], f.Payload)
	return buf
}

// Decoder accumulates received bytes and yields complete frames. Bytes fed
// across calls are never lost; a partial frame stays buffered until its
// remainder arrives.
type Decoder struct {
	buf []byte
}

// Feed appends received bytes to the buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the next complete frame, or ErrInsufficientData when more
// bytes are needed. An unknown frame type consumes the frame and returns
// an *UnknownTypeError so the stream can resynchronise.
func (d *Decoder) Next() (*Frame, error) {
	if len(d.buf) < headerSize {
		return nil, ErrInsufficientData
	}

	length := binary.BigEndian.Uint32(d.buf[0:4])
	if length < 2 {
		// Length counts the type and flags bytes; anything shorter
		// cannot be a frame. Drop the malformed header.
		d.buf = d.buf[4+int(length):]
		return nil, &UnknownTypeError{Type: 0}
	}
	total := 4 + int(length)
	if len(d.buf) < total {
		return nil, ErrInsufficientData
	}

	frameType := Type(d.buf[4])
	flags := d.buf[5]
	payload := append([]byte(nil), d.buf[headerSize:total]...)
	d.buf = d.buf[total:]

	if !frameType.IsValid() {
		return nil, &UnknownTypeError{Type: uint8(frameType)}
	}

	return &Frame{Type: frameType, Flags: flags, Payload: payload}, nil
}

// DecodeAll feeds data and returns every complete frame plus the residual
// byte count still buffered. Unknown-type frames abort with the error.
func (d *Decoder) DecodeAll(data []byte) ([]Frame, int, error) {
	d.Feed(data)

	var frames []Frame
	for {
		f, err := d.Next()
		if err == ErrInsufficientData {
			return frames, d.Buffered(), nil
		}
		if err != nil {
			return frames, d.Buffered(), err
		}
		frames = append(frames, *f)
	}
}
