package opack

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		v    any
		want any // expected decoded form; nil means same as v
	}{
		{"null", nil, nil},
		{"true", true, nil},
		{"false", false, nil},
		{"zero", int64(0), nil},
		{"small_int", int64(39), nil},
		{"uint8", int64(40), nil},
		{"uint8_max", int64(255), nil},
		{"uint16", int64(256), nil},
		{"uint32", int64(70000), nil},
		{"uint64", int64(5000000000), nil},
		{"negative", int64(-7), nil},
		{"float32", float32(1.5), nil},
		{"float64", 3.14159, nil},
		{"empty_string", "", nil},
		{"short_string", "_sessionStart", nil},
		{"string_32", strings.Repeat("a", 32), nil},
		{"string_33", strings.Repeat("a", 33), nil},
		{"string_long", strings.Repeat("x", 300), nil},
		{"empty_bytes", []byte{}, nil},
		{"short_bytes", []byte{1, 2, 3}, nil},
		{"bytes_33", bytes.Repeat([]byte{0xAA}, 33), nil},
		{"bytes_long", bytes.Repeat([]byte{0xBB}, 70000), nil},
		{"uuid", UUID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, nil},
		{"empty_array", []any{}, nil},
		{"array", []any{int64(1), "two", []byte{3}}, nil},
		{"long_array", mkArray(20), nil},
		{"empty_map", map[string]any{}, nil},
		{"map", map[string]any{"_t": "_interest", "n": int64(4)}, nil},
		{"long_map", mkMap(18), nil},
		{"nested", map[string]any{
			"_t": "_tiStart",
			"_tiData": map[string]any{
				"text":  "hello",
				"clear": true,
			},
		}, nil},
		{"int_widened", 42, int64(42)},
		{"uint_widened", uint16(1000), int64(1000)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Marshal(tc.v)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			decoded, err := Unmarshal(encoded)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			want := tc.want
			if want == nil {
				want = tc.v
			}
			if tc.name == "null" {
				want = nil
			}
			if !reflect.DeepEqual(decoded, want) {
				t.Errorf("round-trip: got %#v, want %#v", decoded, want)
			}
		})
	}
}

func mkArray(n int) []any {
	arr := make([]any, n)
	for i := range arr {
		arr[i] = int64(i)
	}
	return arr
}

func mkMap(n int) map[string]any {
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		m[strings.Repeat("k", i+1)] = int64(i)
	}
	return m
}

func TestMarshal_SessionStart(t *testing.T) {
	// {"_t":"_sessionStart"} per the Companion handshake.
	encoded, err := Marshal(map[string]any{"_t": "_sessionStart"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := append([]byte{0xE1, 0x42, '_', 't', 0x4D}, "_sessionStart"...)
	if !bytes.Equal(encoded, want) {
		t.Errorf("got %x, want %x", encoded, want)
	}

	decoded, err := Unmarshal(encoded)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	m, ok := decoded.(map[string]any)
	if !ok || m["_t"] != "_sessionStart" || len(m) != 1 {
		t.Errorf("decoded = %#v", decoded)
	}
}

func TestMarshal_SmallIntForm(t *testing.T) {
	for i := int64(0); i <= 39; i++ {
		encoded, err := Marshal(i)
		if err != nil {
			t.Fatalf("Marshal(%d) failed: %v", i, err)
		}
		if len(encoded) != 1 || encoded[0] != byte(0x08+i) {
			t.Errorf("Marshal(%d) = %x, want %02x", i, encoded, 0x08+i)
		}
	}

	// 40 must leave the inline range.
	encoded, _ := Marshal(int64(40))
	if !bytes.Equal(encoded, []byte{0x30, 40}) {
		t.Errorf("Marshal(40) = %x, want 3028", encoded)
	}
}

func TestUnmarshal_WidenedIntAccepted(t *testing.T) {
	// Decoders accept non-minimal encodings of small integers.
	testCases := []struct {
		name string
		data []byte
		want int64
	}{
		{"uint8_form_of_5", []byte{0x30, 0x05}, 5},
		{"uint16_form_of_5", []byte{0x31, 0x05, 0x00}, 5},
		{"uint32_form_of_5", []byte{0x32, 0x05, 0x00, 0x00, 0x00}, 5},
		{"uint64_form_of_5", []byte{0x33, 0x05, 0, 0, 0, 0, 0, 0, 0}, 5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Unmarshal(tc.data)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if v != tc.want {
				t.Errorf("got %v, want %d", v, tc.want)
			}
		})
	}
}

func TestUnmarshal_EndlessContainers(t *testing.T) {
	// Endless array: [1, "a"] terminated by 0x03.
	data := []byte{0xDF, 0x09, 0x41, 'a', 0x03}
	v, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(v, []any{int64(1), "a"}) {
		t.Errorf("got %#v", v)
	}

	// Endless map: {"k": 2}.
	data = []byte{0xEF, 0x41, 'k', 0x0A, 0x03}
	v, err = Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(v, map[string]any{"k": int64(2)}) {
		t.Errorf("got %#v", v)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrInsufficientData},
		{"truncated_string", []byte{0x45, 'a', 'b'}, ErrInsufficientData},
		{"truncated_length", []byte{0x61}, ErrInsufficientData},
		{"length_past_end", []byte{0x61, 0x10, 'a'}, ErrInsufficientData},
		{"truncated_uuid", []byte{0x05, 1, 2, 3}, ErrInsufficientData},
		{"truncated_map_value", []byte{0xE1, 0x41, 'k'}, ErrInsufficientData},
		{"bad_utf8", []byte{0x42, 0xFF, 0xFE}, ErrInvalidUTF8},
		{"non_string_key", []byte{0xE1, 0x09, 0x09}, ErrNonStringKey},
		{"trailing", []byte{0x04, 0x04}, ErrTrailingData},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal(tc.data)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestUnmarshal_UnknownMarker(t *testing.T) {
	for _, marker := range []byte{0x06, 0x07, 0x34, 0x37, 0xA0, 0xFF} {
		_, err := Unmarshal([]byte{marker})
		var me *MarkerError
		if !errors.As(err, &me) {
			t.Fatalf("marker 0x%02x: got %v, want MarkerError", marker, err)
		}
		if me.Marker != marker {
			t.Errorf("MarkerError.Marker = 0x%02x, want 0x%02x", me.Marker, marker)
		}
	}
}

func TestMarshal_UnsupportedType(t *testing.T) {
	type custom struct{ X int }
	_, err := Marshal(custom{1})
	var ute *UnsupportedTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("got %v, want UnsupportedTypeError", err)
	}

	// Unsupported values nested in containers surface the same error.
	_, err = Marshal(map[string]any{"k": custom{1}})
	if !errors.As(err, &ute) {
		t.Errorf("nested: got %v, want UnsupportedTypeError", err)
	}
}

func TestMarshal_FloatForms(t *testing.T) {
	encoded, err := Marshal(float32(1.0))
	if err != nil {
		t.Fatal(err)
	}
	if encoded[0] != 0x35 || len(encoded) != 5 {
		t.Errorf("float32 encoding = %x", encoded)
	}

	encoded, err = Marshal(float64(1.0))
	if err != nil {
		t.Fatal(err)
	}
	if encoded[0] != 0x36 || len(encoded) != 9 {
		t.Errorf("float64 encoding = %x", encoded)
	}

	v, err := Unmarshal(encoded)
	if err != nil || v != 1.0 {
		t.Errorf("float64 round-trip = %v, %v", v, err)
	}

	// NaN payloads survive the trip bit-exactly.
	encoded, _ = Marshal(math.NaN())
	v, err = Unmarshal(encoded)
	if err != nil || !math.IsNaN(v.(float64)) {
		t.Errorf("NaN round-trip = %v, %v", v, err)
	}
}
