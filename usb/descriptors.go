// Package usb implements the device side of a virtual USB bus: endpoint
// allocation and queues, control transfer dispatch, and standard
// descriptor assembly. Device classes plug in through the Class interface
// and never talk to the transport directly.
package usb

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// Standard descriptor type constants.
const (
	DescriptorTypeDevice    = 0x01
	DescriptorTypeConfig    = 0x02
	DescriptorTypeString    = 0x03
	DescriptorTypeInterface = 0x04
	DescriptorTypeEndpoint  = 0x05
	DescriptorTypeBOS       = 0x0F
)

// Fixed descriptor lengths in bytes.
const (
	deviceDescLen    = 18
	configDescLen    = 9
	interfaceDescLen = 9
	endpointDescLen  = 7
	bosDescLen       = 5
)

// bmAttributes transfer types for endpoint descriptors.
const (
	TransferTypeControl   uint8 = 0x00
	TransferTypeIsoch     uint8 = 0x01
	TransferTypeBulk      uint8 = 0x02
	TransferTypeInterrupt uint8 = 0x03
)

// DeviceDescriptor is the standard 18-byte device descriptor. BLength and
// bDescriptorType are implied.
type DeviceDescriptor struct {
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
}

// Bytes encodes the descriptor in wire order (multi-byte fields
// little-endian).
func (d DeviceDescriptor) Bytes() []byte {
	var b bytes.Buffer
	b.WriteByte(deviceDescLen)
	b.WriteByte(DescriptorTypeDevice)
	_ = binary.Write(&b, binary.LittleEndian, d.BcdUSB)
	b.WriteByte(d.BDeviceClass)
	b.WriteByte(d.BDeviceSubClass)
	b.WriteByte(d.BDeviceProtocol)
	b.WriteByte(d.BMaxPacketSize0)
	_ = binary.Write(&b, binary.LittleEndian, d.IDVendor)
	_ = binary.Write(&b, binary.LittleEndian, d.IDProduct)
	_ = binary.Write(&b, binary.LittleEndian, d.BcdDevice)
	b.WriteByte(d.IManufacturer)
	b.WriteByte(d.IProduct)
	b.WriteByte(d.ISerialNumber)
	b.WriteByte(d.BNumConfigurations)
	return b.Bytes()
}

// ConfigHeader is the 9-byte configuration descriptor header. WTotalLength
// is patched by the DescriptorWriter once the interface and endpoint
// descriptors behind it are known.
type ConfigHeader struct {
	WTotalLength        uint16
	BNumInterfaces      uint8
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        uint8
	BMaxPower           uint8
}

func (h ConfigHeader) writeTo(b *bytes.Buffer) {
	b.WriteByte(configDescLen)
	b.WriteByte(DescriptorTypeConfig)
	_ = binary.Write(b, binary.LittleEndian, h.WTotalLength)
	b.WriteByte(h.BNumInterfaces)
	b.WriteByte(h.BConfigurationValue)
	b.WriteByte(h.IConfiguration)
	b.WriteByte(h.BMAttributes)
	b.WriteByte(h.BMaxPower)
}

// InterfaceDescriptor is the standard 9-byte interface descriptor.
// BInterfaceNumber is assigned by the DescriptorWriter.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

func (i InterfaceDescriptor) writeTo(b *bytes.Buffer) {
	b.WriteByte(interfaceDescLen)
	b.WriteByte(DescriptorTypeInterface)
	b.WriteByte(i.BInterfaceNumber)
	b.WriteByte(i.BAlternateSetting)
	b.WriteByte(i.BNumEndpoints)
	b.WriteByte(i.BInterfaceClass)
	b.WriteByte(i.BInterfaceSubClass)
	b.WriteByte(i.BInterfaceProtocol)
	b.WriteByte(i.IInterface)
}

// EndpointDescriptor is the standard 7-byte endpoint descriptor.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BmAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

func (e EndpointDescriptor) writeTo(b *bytes.Buffer) {
	b.WriteByte(endpointDescLen)
	b.WriteByte(DescriptorTypeEndpoint)
	b.WriteByte(e.BEndpointAddress)
	b.WriteByte(e.BmAttributes)
	_ = binary.Write(b, binary.LittleEndian, e.WMaxPacketSize)
	b.WriteByte(e.BInterval)
}

// EncodeStringDescriptor converts a UTF-8 string into a USB string
// descriptor: bLength, bDescriptorType (0x03), then UTF-16LE code units.
// Runes outside the BMP encode as surrogate pairs. bLength is a single
// byte, so the payload is clamped to 253 bytes on a code point boundary.
func EncodeStringDescriptor(s string) []byte {
	units := utf16.Encode([]rune(s))
	const maxUnits = (255 - 2) / 2
	if len(units) > maxUnits {
		units = units[:maxUnits]
		if last := units[len(units)-1]; last >= 0xD800 && last <= 0xDBFF {
			// Never end on an unpaired high surrogate.
			units = units[:len(units)-1]
		}
	}
	buf := make([]byte, 2+len(units)*2)
	buf[0] = uint8(len(buf))
	buf[1] = DescriptorTypeString
	for i, u := range units {
		buf[2+i*2] = uint8(u)
		buf[2+i*2+1] = uint8(u >> 8)
	}
	return buf
}

// LangIDDescriptor is string descriptor zero: the supported language IDs.
// Only US English is advertised.
func LangIDDescriptor() []byte {
	return []byte{0x04, DescriptorTypeString, 0x09, 0x04}
}
