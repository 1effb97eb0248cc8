// Package hid models HID report descriptors. A descriptor is a byte-coded
// item stream; this package represents it as a tree of Go values, encodes
// the tree to the exact wire bytes, and decodes wire bytes back into field
// definitions for inspection and testing.
package hid

import "fmt"

// ItemType is the HID short item "type" field (HID 1.11, 6.2.2.2).
type ItemType uint8

const (
	ItemTypeMain     ItemType = 0
	ItemTypeGlobal   ItemType = 1
	ItemTypeLocal    ItemType = 2
	ItemTypeReserved ItemType = 3
)

// Short item tags, shared by the encoder and the decoder. Tags are only
// meaningful together with their item type.
const (
	// Global items.
	tagUsagePage      = 0x0
	tagLogicalMinimum = 0x1
	tagLogicalMaximum = 0x2
	tagReportSize     = 0x7
	tagReportID       = 0x8
	tagReportCount    = 0x9

	// Local items.
	tagUsage        = 0x0
	tagUsageMinimum = 0x1
	tagUsageMaximum = 0x2

	// Main items.
	tagInput         = 0x8
	tagOutput        = 0x9
	tagCollection    = 0xA
	tagFeature       = 0xB
	tagEndCollection = 0xC
)

// longItemPrefix introduces the (rare) long item form: 0xFE, bDataSize,
// bLongItemTag, data.
const longItemPrefix = 0xFE

// Item is one node of a report descriptor tree.
type Item interface {
	encode(e *encoder) error
}

// Report is a complete report descriptor.
type Report struct {
	Items []Item
}

// Bytes encodes the descriptor to its wire form.
func (r Report) Bytes() ([]byte, error) {
	e := &encoder{}
	for _, it := range r.Items {
		if it == nil {
			return nil, fmt.Errorf("hid: nil item in report")
		}
		if err := it.encode(e); err != nil {
			return nil, err
		}
	}
	return e.buf, nil
}

// MustBytes is Bytes for statically constructed descriptors, where an
// encoding failure is a programming error.
func MustBytes(r Report) []byte {
	b, err := r.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}

type encoder struct {
	buf []byte
}

// item appends one short item. Short item payloads may only be 0, 1, 2 or
// 4 bytes; the prefix byte packs tag, type and a size code.
func (e *encoder) item(tag uint8, typ ItemType, data []byte) error {
	var sizeCode uint8
	switch len(data) {
	case 0:
		sizeCode = 0
	case 1:
		sizeCode = 1
	case 2:
		sizeCode = 2
	case 4:
		sizeCode = 3
	default:
		return fmt.Errorf("hid: short item payload must be 0/1/2/4 bytes, got %d", len(data))
	}
	e.buf = append(e.buf, tag<<4|uint8(typ)<<2|sizeCode)
	e.buf = append(e.buf, data...)
	return nil
}

// unsignedData returns the minimal 1/2/4-byte little-endian encoding of an
// unsigned item value.
func unsignedData(v uint32) []byte {
	switch {
	case v <= 0xFF:
		return []byte{uint8(v)}
	case v <= 0xFFFF:
		return []byte{uint8(v), uint8(v >> 8)}
	default:
		return []byte{uint8(v), uint8(v >> 8), uint8(v >> 16), uint8(v >> 24)}
	}
}

// signedData returns the minimal 1/2/4-byte little-endian two's-complement
// encoding of a signed item value.
func signedData(v int32) []byte {
	switch {
	case v >= -128 && v <= 127:
		return []byte{uint8(v)}
	case v >= -32768 && v <= 32767:
		uv := uint16(int16(v))
		return []byte{uint8(uv), uint8(uv >> 8)}
	default:
		uv := uint32(v)
		return []byte{uint8(uv), uint8(uv >> 8), uint8(uv >> 16), uint8(uv >> 24)}
	}
}
