package usb

import "encoding/binary"

// Request type bitfield layout (bmRequestType).
const (
	DirOut uint8 = 0x00 // host to device
	DirIn  uint8 = 0x80 // device to host

	TypeStandard uint8 = 0x00
	TypeClass    uint8 = 0x20
	TypeVendor   uint8 = 0x40

	RecipientDevice    uint8 = 0x00
	RecipientInterface uint8 = 0x01
	RecipientEndpoint  uint8 = 0x02
)

// Standard request codes (bRequest).
const (
	RequestGetStatus        uint8 = 0x00
	RequestClearFeature     uint8 = 0x01
	RequestSetFeature       uint8 = 0x03
	RequestSetAddress       uint8 = 0x05
	RequestGetDescriptor    uint8 = 0x06
	RequestSetDescriptor    uint8 = 0x07
	RequestGetConfiguration uint8 = 0x08
	RequestSetConfiguration uint8 = 0x09
	RequestGetInterface     uint8 = 0x0A
	RequestSetInterface     uint8 = 0x0B
)

// SetupPacket is the decoded eight-byte SETUP stage of a control transfer.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetup decodes a SETUP stage. wValue/wIndex/wLength are little-endian
// on the wire regardless of transport byte order.
func ParseSetup(b []byte) (SetupPacket, error) {
	if len(b) < 8 {
		return SetupPacket{}, ErrInvalidSetup
	}
	return SetupPacket{
		RequestType: b[0],
		Request:     b[1],
		Value:       binary.LittleEndian.Uint16(b[2:4]),
		Index:       binary.LittleEndian.Uint16(b[4:6]),
		Length:      binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

// Bytes re-encodes the packet into its wire form.
func (s SetupPacket) Bytes() [8]byte {
	var b [8]byte
	b[0] = s.RequestType
	b[1] = s.Request
	binary.LittleEndian.PutUint16(b[2:4], s.Value)
	binary.LittleEndian.PutUint16(b[4:6], s.Index)
	binary.LittleEndian.PutUint16(b[6:8], s.Length)
	return b
}

// IsDeviceToHost reports whether the data stage (if any) flows IN.
func (s SetupPacket) IsDeviceToHost() bool { return s.RequestType&DirIn != 0 }

// Type returns the request type bits (standard, class, vendor).
func (s SetupPacket) Type() uint8 { return s.RequestType & 0x60 }

// Recipient returns the recipient bits (device, interface, endpoint).
func (s SetupPacket) Recipient() uint8 { return s.RequestType & 0x1F }

func (s SetupPacket) IsStandard() bool { return s.Type() == TypeStandard }
func (s SetupPacket) IsClass() bool    { return s.Type() == TypeClass }

// DescriptorType returns the high byte of wValue for GET_DESCRIPTOR.
func (s SetupPacket) DescriptorType() uint8 { return uint8(s.Value >> 8) }

// DescriptorIndex returns the low byte of wValue for GET_DESCRIPTOR.
func (s SetupPacket) DescriptorIndex() uint8 { return uint8(s.Value) }
