package opack

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

// Errors returned by Unmarshal.
var (
	// ErrInsufficientData is returned when the input ends mid-value.
	ErrInsufficientData = errors.New("opack: insufficient data")

	// ErrInvalidUTF8 is returned for malformed string payloads.
	ErrInvalidUTF8 = errors.New("opack: invalid UTF-8 string")

	// ErrNonStringKey is returned when a map key decodes to a non-string.
	ErrNonStringKey = errors.New("opack: map key is not a string")

	// ErrTrailingData is returned by Unmarshal when bytes remain after the
	// first complete value.
	ErrTrailingData = errors.New("opack: trailing data after value")

	// errTerminator signals the 0x03 end-of-container sentinel internally.
	errTerminator = errors.New("opack: container terminator")
)

// Unmarshal decodes a single OPACK value and requires the input to be fully
// consumed.
func Unmarshal(data []byte) (any, error) {
	d := decoder{data: data}
	v, err := d.value()
	if err != nil {
		if err == errTerminator {
			return nil, &MarkerError{Marker: markerTerminator}
		}
		return nil, err
	}
	if d.pos != len(data) {
		return nil, ErrTrailingData
	}
	return v, nil
}

// UnmarshalPrefix decodes a single OPACK value from the front of data and
// returns the number of bytes consumed.
func UnmarshalPrefix(data []byte) (any, int, error) {
	d := decoder{data: data}
	v, err := d.value()
	if err != nil {
		if err == errTerminator {
			return nil, 0, &MarkerError{Marker: markerTerminator}
		}
		return nil, 0, err
	}
	return v, d.pos, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) take(n int) ([]byte, error) {
	if len(d.data)-d.pos < n {
		return nil, ErrInsufficientData
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) value() (any, error) {
	mb, err := d.take(1)
	if err != nil {
		return nil, err
	}
	marker := mb[0]

	switch {
	case marker == markerTrue:
		return true, nil
	case marker == markerFalse:
		return false, nil
	case marker == markerTerminator:
		return nil, errTerminator
	case marker == markerNull:
		return nil, nil
	case marker == markerUUID:
		b, err := d.take(16)
		if err != nil {
			return nil, err
		}
		var u UUID
		copy(u[:], b)
		return u, nil

	case marker >= markerSmallIntMin && marker <= markerSmallIntMax:
		return int64(marker - markerSmallIntMin), nil
	case marker >= markerUInt8 && marker <= markerUInt64:
		return d.integer(1 << (marker - markerUInt8))
	case marker == markerFloat32:
		b, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	case marker == markerFloat64:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil

	case marker >= markerStringShortMin && marker <= markerStringShortMax:
		return d.stringValue(int(marker - markerStringShortMin))
	case marker >= markerStringLen1 && marker <= markerStringLen4:
		n, err := d.length(int(marker - markerStringLen1 + 1))
		if err != nil {
			return nil, err
		}
		return d.stringValue(n)

	case marker >= markerBytesShortMin && marker <= markerBytesShortMax:
		return d.bytesValue(int(marker - markerBytesShortMin))
	case marker >= markerBytesLen1 && marker <= markerBytesLen8:
		n, err := d.length(1 << (marker&0x0F - 1))
		if err != nil {
			return nil, err
		}
		return d.bytesValue(n)

	case marker >= markerArrayMin && marker <= markerArrayMax:
		return d.array(int(marker & 0x0F))
	case marker >= markerMapMin && marker <= markerMapMax:
		return d.mapValue(int(marker & 0x0F))

	default:
		return nil, &MarkerError{Marker: marker}
	}
}

// integer reads a width-byte little-endian unsigned integer as int64.
func (d *decoder) integer(width int) (any, error) {
	b, err := d.take(width)
	if err != nil {
		return nil, err
	}
	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return int64(v), nil
}

// length reads a size-byte little-endian length prefix.
func (d *decoder) length(size int) (int, error) {
	b, err := d.take(size)
	if err != nil {
		return 0, err
	}
	var n uint64
	for i := size - 1; i >= 0; i-- {
		n = n<<8 | uint64(b[i])
	}
	if n > uint64(len(d.data)-d.pos) {
		return 0, ErrInsufficientData
	}
	return int(n), nil
}

func (d *decoder) stringValue(n int) (any, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, ErrInvalidUTF8
	}
	return string(b), nil
}

func (d *decoder) bytesValue(n int) (any, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (d *decoder) array(nibble int) (any, error) {
	arr := []any{}
	if nibble == endlessNibble {
		for {
			v, err := d.value()
			if err == errTerminator {
				return arr, nil
			}
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
	}
	for i := 0; i < nibble; i++ {
		v, err := d.value()
		if err == errTerminator {
			return nil, &MarkerError{Marker: markerTerminator}
		}
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func (d *decoder) mapValue(nibble int) (any, error) {
	m := map[string]any{}
	readPair := func() (bool, error) {
		k, err := d.value()
		if err != nil {
			return false, err
		}
		key, ok := k.(string)
		if !ok {
			return false, ErrNonStringKey
		}
		v, err := d.value()
		if err == errTerminator {
			return false, ErrInsufficientData
		}
		if err != nil {
			return false, err
		}
		m[key] = v
		return true, nil
	}

	if nibble == endlessNibble {
		for {
			if _, err := readPair(); err != nil {
				if err == errTerminator {
					return m, nil
				}
				return nil, err
			}
		}
	}
	for i := 0; i < nibble; i++ {
		if _, err := readPair(); err != nil {
			if err == errTerminator {
				return nil, &MarkerError{Marker: markerTerminator}
			}
			return nil, err
		}
	}
	return m, nil
}
