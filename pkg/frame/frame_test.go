package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode_Layout(t *testing.T) {
	f := &Frame{Type: TypeEvent, Flags: 0x00, Payload: []byte{0xE0}}
	encoded := Encode(f)

	want := []byte{0x00, 0x00, 0x00, 0x03, 0x06, 0x00, 0xE0}
	if !bytes.Equal(encoded, want) {
		t.Errorf("got %x, want %x", encoded, want)
	}
}

func TestEncode_EmptyPayload(t *testing.T) {
	encoded := Encode(&Frame{Type: TypePVNext})
	want := []byte{0x00, 0x00, 0x00, 0x02, 0x04, 0x00}
	if !bytes.Equal(encoded, want) {
		t.Errorf("got %x, want %x", encoded, want)
	}
}

func TestDecoder_SingleFrame(t *testing.T) {
	f := &Frame{Type: TypePSStart, Flags: 0x01, Payload: []byte{1, 2, 3}}

	var d Decoder
	frames, residual, err := d.DecodeAll(Encode(f))
	if err != nil {
		t.Fatalf("DecodeAll failed: %v", err)
	}
	if len(frames) != 1 || residual != 0 {
		t.Fatalf("frames=%d residual=%d", len(frames), residual)
	}
	got := frames[0]
	if got.Type != f.Type || got.Flags != f.Flags || !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("decoded %+v", got)
	}
}

func TestDecoder_ByteWiseSplits(t *testing.T) {
	// Any byte-wise split of a frame sequence must reproduce the frames
	// with empty residual.
	seq := []Frame{
		{Type: TypePSStart, Flags: 0, Payload: []byte{0x06, 0x01, 0x01}},
		{Type: TypeEvent, Flags: 0, Payload: bytes.Repeat([]byte{0xAB}, 300)},
		{Type: TypePVNext, Flags: 0, Payload: nil},
		{Type: TypeEvent, Flags: 0x80, Payload: []byte{0xE0}},
	}

	var stream []byte
	for i := range seq {
		stream = append(stream, Encode(&seq[i])...)
	}

	for _, chunk := range []int{1, 2, 3, 5, 7, 64, len(stream)} {
		var d Decoder
		var got []Frame

		for off := 0; off < len(stream); off += chunk {
			end := off + chunk
			if end > len(stream) {
				end = len(stream)
			}
			frames, _, err := d.DecodeAll(stream[off:end])
			if err != nil {
				t.Fatalf("chunk %d: DecodeAll failed: %v", chunk, err)
			}
			got = append(got, frames...)
		}

		if d.Buffered() != 0 {
			t.Errorf("chunk %d: residual %d bytes", chunk, d.Buffered())
		}
		if len(got) != len(seq) {
			t.Fatalf("chunk %d: got %d frames, want %d", chunk, len(got), len(seq))
		}
		for i := range seq {
			if got[i].Type != seq[i].Type || got[i].Flags != seq[i].Flags ||
				!bytes.Equal(got[i].Payload, seq[i].Payload) {
				t.Errorf("chunk %d: frame %d mismatch", chunk, i)
			}
		}
	}
}

func TestDecoder_PartialFrameKeepsBytes(t *testing.T) {
	encoded := Encode(&Frame{Type: TypeEvent, Payload: []byte{1, 2, 3, 4}})

	var d Decoder
	frames, residual, err := d.DecodeAll(encoded[:5])
	if err != nil || len(frames) != 0 || residual != 5 {
		t.Fatalf("partial: frames=%d residual=%d err=%v", len(frames), residual, err)
	}

	frames, residual, err = d.DecodeAll(encoded[5:])
	if err != nil || len(frames) != 1 || residual != 0 {
		t.Fatalf("completion: frames=%d residual=%d err=%v", len(frames), residual, err)
	}
}

func TestDecoder_UnknownType(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x00, 0x02, 0x7F, 0x00}

	var d Decoder
	_, _, err := d.DecodeAll(raw)
	var ute *UnknownTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("got %v, want UnknownTypeError", err)
	}
	if ute.Type != 0x7F {
		t.Errorf("UnknownTypeError.Type = 0x%02x", ute.Type)
	}
	// The bad frame is consumed so the stream can resynchronise.
	if d.Buffered() != 0 {
		t.Errorf("residual %d bytes after unknown frame", d.Buffered())
	}
}

func TestType_String(t *testing.T) {
	testCases := []struct {
		t    Type
		want string
	}{
		{TypePSStart, "PS_Start"},
		{TypePSNext, "PS_Next"},
		{TypePVStart, "PV_Start"},
		{TypePVNext, "PV_Next"},
		{TypeNoOp, "NoOp"},
		{TypeEvent, "E_OPACK"},
		{Type(0x99), "Unknown(0x99)"},
	}
	for _, tc := range testCases {
		if got := tc.t.String(); got != tc.want {
			t.Errorf("%d.String() = %q, want %q", tc.t, got, tc.want)
		}
	}
}
