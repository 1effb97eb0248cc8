package hid

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a descriptor ends in the middle of an
// item.
var ErrTruncated = errors.New("hid: truncated descriptor")

// FieldKind tells which main item declared a field.
type FieldKind uint8

const (
	FieldInput FieldKind = iota
	FieldOutput
	FieldFeature
)

func (k FieldKind) String() string {
	switch k {
	case FieldInput:
		return "input"
	case FieldOutput:
		return "output"
	case FieldFeature:
		return "feature"
	}
	return fmt.Sprintf("FieldKind(%d)", uint8(k))
}

// Field is one decoded main item together with the global and local state
// in effect when it was declared.
type Field struct {
	Kind     FieldKind
	Flags    MainFlags
	ReportID uint8

	UsagePage    uint16
	Usages       []uint16
	UsageMinimum uint16
	UsageMaximum uint16

	LogicalMinimum int32
	LogicalMaximum int32

	Size  uint8 // bits per element
	Count uint16

	// Collection indexes Decoded.Collections; -1 for a field declared
	// outside any collection.
	Collection int
}

// DecodedCollection is one collection in declaration order.
type DecodedCollection struct {
	Kind      CollectionKind
	UsagePage uint16
	Usage     uint16
	Parent    int // -1 for a top-level collection
}

// Decoded is the flattened view of a report descriptor.
type Decoded struct {
	Collections []DecodedCollection
	Fields      []Field
}

// InputFields returns the input fields in declaration order.
func (d *Decoded) InputFields() []Field { return d.fieldsOf(FieldInput) }

// OutputFields returns the output fields in declaration order.
func (d *Decoded) OutputFields() []Field { return d.fieldsOf(FieldOutput) }

func (d *Decoded) fieldsOf(kind FieldKind) []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// InputBits sums the bit widths of all input fields, padding included.
func (d *Decoded) InputBits() int {
	bits := 0
	for _, f := range d.Fields {
		if f.Kind == FieldInput {
			bits += int(f.Size) * int(f.Count)
		}
	}
	return bits
}

// OutputBits sums the bit widths of all output fields, padding included.
func (d *Decoded) OutputBits() int {
	bits := 0
	for _, f := range d.Fields {
		if f.Kind == FieldOutput {
			bits += int(f.Size) * int(f.Count)
		}
	}
	return bits
}

// decodeState is the item parser state machine: global items persist
// until overwritten, local items reset after every main item.
type decodeState struct {
	usagePage      uint16
	logicalMinimum int32
	logicalMaximum int32
	reportSize     uint8
	reportCount    uint16
	reportID       uint8

	usages       []uint16
	usageMinimum uint16
	usageMaximum uint16
}

func (s *decodeState) clearLocals() {
	s.usages = nil
	s.usageMinimum = 0
	s.usageMaximum = 0
}

// Decode parses report descriptor bytes into fields and collections.
func Decode(data []byte) (*Decoded, error) {
	d := &Decoded{}
	state := &decodeState{}
	stack := []int{} // open collection indices
	pos := 0

	for pos < len(data) {
		prefix := data[pos]
		pos++

		if prefix == longItemPrefix {
			if pos+2 > len(data) {
				return nil, ErrTruncated
			}
			size := int(data[pos])
			pos += 2 + size
			if pos > len(data) {
				return nil, ErrTruncated
			}
			continue
		}

		size := int(prefix & 0x03)
		if size == 3 {
			size = 4
		}
		if pos+size > len(data) {
			return nil, ErrTruncated
		}
		payload := data[pos : pos+size]
		pos += size

		tag := prefix >> 4
		switch ItemType(prefix >> 2 & 0x03) {
		case ItemTypeGlobal:
			decodeGlobal(state, tag, payload)
		case ItemTypeLocal:
			decodeLocal(state, tag, payload)
		case ItemTypeMain:
			if err := decodeMain(d, state, &stack, tag, payload); err != nil {
				return nil, err
			}
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("hid: %d unclosed collection(s)", len(stack))
	}
	return d, nil
}

func decodeGlobal(s *decodeState, tag uint8, payload []byte) {
	switch tag {
	case tagUsagePage:
		s.usagePage = uint16(unsignedValue(payload))
	case tagLogicalMinimum:
		s.logicalMinimum = signedValue(payload)
	case tagLogicalMaximum:
		s.logicalMaximum = signedValue(payload)
	case tagReportSize:
		s.reportSize = uint8(unsignedValue(payload))
	case tagReportID:
		s.reportID = uint8(unsignedValue(payload))
	case tagReportCount:
		s.reportCount = uint16(unsignedValue(payload))
	}
}

func decodeLocal(s *decodeState, tag uint8, payload []byte) {
	switch tag {
	case tagUsage:
		s.usages = append(s.usages, uint16(unsignedValue(payload)))
	case tagUsageMinimum:
		s.usageMinimum = uint16(unsignedValue(payload))
	case tagUsageMaximum:
		s.usageMaximum = uint16(unsignedValue(payload))
	}
}

func decodeMain(d *Decoded, s *decodeState, stack *[]int, tag uint8, payload []byte) error {
	switch tag {
	case tagCollection:
		col := DecodedCollection{
			UsagePage: s.usagePage,
			Parent:    -1,
		}
		if len(payload) > 0 {
			col.Kind = CollectionKind(payload[0])
		}
		if len(s.usages) > 0 {
			col.Usage = s.usages[len(s.usages)-1]
		}
		if len(*stack) > 0 {
			col.Parent = (*stack)[len(*stack)-1]
		}
		d.Collections = append(d.Collections, col)
		*stack = append(*stack, len(d.Collections)-1)

	case tagEndCollection:
		if len(*stack) == 0 {
			return errors.New("hid: end collection without matching collection")
		}
		*stack = (*stack)[:len(*stack)-1]

	case tagInput, tagOutput, tagFeature:
		kind := FieldInput
		switch tag {
		case tagOutput:
			kind = FieldOutput
		case tagFeature:
			kind = FieldFeature
		}
		f := Field{
			Kind:           kind,
			ReportID:       s.reportID,
			UsagePage:      s.usagePage,
			Usages:         append([]uint16(nil), s.usages...),
			UsageMinimum:   s.usageMinimum,
			UsageMaximum:   s.usageMaximum,
			LogicalMinimum: s.logicalMinimum,
			LogicalMaximum: s.logicalMaximum,
			Size:           s.reportSize,
			Count:          s.reportCount,
			Collection:     -1,
		}
		if len(payload) > 0 {
			f.Flags = MainFlags(payload[0])
		}
		if len(*stack) > 0 {
			f.Collection = (*stack)[len(*stack)-1]
		}
		d.Fields = append(d.Fields, f)
	}
	s.clearLocals()
	return nil
}

func unsignedValue(payload []byte) uint32 {
	var v uint32
	for i, b := range payload {
		v |= uint32(b) << (8 * i)
	}
	return v
}

func signedValue(payload []byte) int32 {
	switch len(payload) {
	case 1:
		return int32(int8(payload[0]))
	case 2:
		return int32(int16(uint16(payload[0]) | uint16(payload[1])<<8))
	case 4:
		return int32(unsignedValue(payload))
	}
	return 0
}
