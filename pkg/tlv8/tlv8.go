// Package tlv8 implements the HomeKit Accessory Protocol TLV8 encoding.
//
// TLV8 items carry a single-byte tag, a single-byte length and up to 255
// value bytes. Values longer than 255 bytes are fragmented into consecutive
// chunks with the same tag; a decoder recognises the end of a fragmented
// value by a chunk whose length is less than 255. Fragmentation is invisible
// to callers: Encode splits long values and Decode reassembles them.
package tlv8

import "sort"

// MaxChunkSize is the largest value length a single TLV8 chunk can carry.
const MaxChunkSize = 255

// HAP pairing tags used by the pair-setup and pair-verify flows.
const (
	TagMethod        uint8 = 0x00
	TagIdentifier    uint8 = 0x01
	TagSalt          uint8 = 0x02
	TagPublicKey     uint8 = 0x03
	TagProof         uint8 = 0x04
	TagEncryptedData uint8 = 0x05
	TagState         uint8 = 0x06
	TagError         uint8 = 0x07
	TagRetryDelay    uint8 = 0x08
	TagSignature     uint8 = 0x0A
)

// Item is a single decoded TLV8 entry. After Decode, Value holds the
// reassembled bytes of all same-tag fragments.
type Item struct {
	Tag   uint8
	Value []byte
}

// Dict is an ordered sequence of TLV8 items with lookup helpers.
type Dict []Item

// Get returns the value for tag and whether it was present.
func (d Dict) Get(tag uint8) ([]byte, bool) {
	for _, it := range d {
		if it.Tag == tag {
			return it.Value, true
		}
	}
	return nil, false
}

// Has reports whether tag is present.
func (d Dict) Has(tag uint8) bool {
	_, ok := d.Get(tag)
	return ok
}

// Byte returns the first value byte for tag. Missing or empty values
// return (0, false).
func (d Dict) Byte(tag uint8) (uint8, bool) {
	v, ok := d.Get(tag)
	if !ok || len(v) == 0 {
		return 0, false
	}
	return v[0], true
}

// Append adds an item and returns the extended dict.
func (d Dict) Append(tag uint8, value []byte) Dict {
	return append(d, Item{Tag: tag, Value: value})
}

// AppendByte adds a single-byte item and returns the extended dict.
func (d Dict) AppendByte(tag uint8, value uint8) Dict {
	return append(d, Item{Tag: tag, Value: []byte{value}})
}

// Encode serialises items to TLV8 bytes. Items are emitted in ascending tag
// order (stable for repeated tags); values longer than 255 bytes are split
// into consecutive same-tag chunks where only the final chunk may be
// shorter than 255 bytes.
func Encode(items []Item) []byte {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tag < sorted[j].Tag
	})

	size := 0
	for _, it := range sorted {
		size += encodedSize(len(it.Value))
	}

	out := make([]byte, 0, size)
	for _, it := range sorted {
		out = appendItem(out, it.Tag, it.Value)
	}
	return out
}

// Decode parses TLV8 bytes into items, concatenating consecutive same-tag
// chunks into one value. Truncated trailing input terminates the walk
// silently; everything assembled so far is returned. Callers treat a
// missing mandatory tag as a protocol error.
func Decode(data []byte) Dict {
	var items Dict

	for len(data) >= 2 {
		tag := data[0]
		length := int(data[1])
		if len(data) < 2+length {
			break
		}
		value := data[2 : 2+length]
		data = data[2+length:]

		if n := len(items); n > 0 && items[n-1].Tag == tag {
			items[n-1].Value = append(items[n-1].Value, value...)
			continue
		}

		items = append(items, Item{
			Tag:   tag,
			Value: append([]byte(nil), value...),
		})
	}

	return items
}

func encodedSize(valueLen int) int {
	if valueLen == 0 {
		return 2
	}
	chunks := (valueLen + MaxChunkSize - 1) / MaxChunkSize
	return valueLen + 2*chunks
}

func appendItem(out []byte, tag uint8, value []byte) []byte {
	if len(value) == 0 {
		return append(out, tag, 0)
	}
	for len(value) > 0 {
		n := len(value)
		if n > MaxChunkSize {
			n = MaxChunkSize
		}
		out = append(out, tag, byte(n))
		out = append(out, value[:n]...)
		value = value[n:]
	}
	return out
}
