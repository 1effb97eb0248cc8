package usb

import (
	"bytes"
	"encoding/binary"
)

// StringIndex identifies a class-owned string descriptor. Indices 1..3 are
// reserved for the device identity strings; classes get indices from 4 up.
type StringIndex uint8

// Class is a USB function implementation. The Device drives every method;
// a class only ever reacts.
//
// Control transfer hooks receive each transfer in class registration
// order. A class that does not recognize a transfer leaves it untouched so
// the next class (or the device's default handling) can claim it.
type Class interface {
	// GetConfigurationDescriptors contributes the class's interface,
	// class-specific, and endpoint descriptors to the configuration.
	GetConfigurationDescriptors(w *DescriptorWriter) error

	// GetBOSDescriptors contributes device capability descriptors, if
	// the class has any.
	GetBOSDescriptors(w *BOSWriter) error

	// GetString resolves a class-owned string descriptor index.
	GetString(index StringIndex, lang uint16) (string, bool)

	// Reset is called on bus reset. Classes drop all transfer state.
	Reset()

	// Poll is called on the device's housekeeping tick.
	Poll()

	// ControlIn offers a device-to-host control transfer.
	ControlIn(xfer *ControlIn)

	// ControlOut offers a host-to-device control transfer.
	ControlOut(xfer *ControlOut)

	// EndpointSetup notifies that the host configured the endpoint.
	EndpointSetup(addr EndpointAddress)

	// EndpointOut notifies that host data arrived on the endpoint.
	EndpointOut(addr EndpointAddress)

	// EndpointInComplete notifies that the host collected a packet from
	// the endpoint.
	EndpointInComplete(addr EndpointAddress)
}

// InterfaceInfo is the class/subclass/protocol triple of one interface,
// recorded while building the configuration so the transport can export it
// in device listings.
type InterfaceInfo struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

// DescriptorWriter assembles the configuration descriptor hierarchy.
// Classes append their interface, any class-specific descriptors, and
// their endpoints; the writer assigns interface numbers and patches
// wTotalLength when the configuration is finalized.
type DescriptorWriter struct {
	buf        bytes.Buffer
	next       uint8
	interfaces []InterfaceInfo
}

// Interface appends an interface descriptor. The interface number is
// assigned by the writer; any value in BInterfaceNumber is overwritten.
// It returns the assigned number.
func (w *DescriptorWriter) Interface(d InterfaceDescriptor) uint8 {
	d.BInterfaceNumber = w.next
	w.next++
	w.interfaces = append(w.interfaces, InterfaceInfo{
		Class:    d.BInterfaceClass,
		SubClass: d.BInterfaceSubClass,
		Protocol: d.BInterfaceProtocol,
	})
	d.writeTo(&w.buf)
	return d.BInterfaceNumber
}

// Write appends a class-specific descriptor: bLength and bDescriptorType
// followed by the payload.
func (w *DescriptorWriter) Write(descriptorType uint8, data []byte) {
	w.buf.WriteByte(uint8(2 + len(data)))
	w.buf.WriteByte(descriptorType)
	w.buf.Write(data)
}

// Endpoint appends an endpoint descriptor.
func (w *DescriptorWriter) Endpoint(d EndpointDescriptor) {
	d.writeTo(&w.buf)
}

// Interfaces returns the recorded interface triples.
func (w *DescriptorWriter) Interfaces() []InterfaceInfo { return w.interfaces }

// Finalize prepends the configuration header with wTotalLength and
// bNumInterfaces filled in and returns the complete configuration
// descriptor.
func (w *DescriptorWriter) Finalize(configValue uint8) []byte {
	header := ConfigHeader{
		WTotalLength:        uint16(configDescLen + w.buf.Len()),
		BNumInterfaces:      w.next,
		BConfigurationValue: configValue,
		BMAttributes:        0x80, // bus powered
		BMaxPower:           50,   // 100 mA
	}
	var out bytes.Buffer
	out.Grow(configDescLen + w.buf.Len())
	header.writeTo(&out)
	out.Write(w.buf.Bytes())
	return out.Bytes()
}

// BOSWriter assembles the binary object store descriptor from device
// capability descriptors.
type BOSWriter struct {
	buf  bytes.Buffer
	caps uint8
}

// Capability appends one device capability descriptor of the given type.
func (w *BOSWriter) Capability(capabilityType uint8, data []byte) {
	w.buf.WriteByte(uint8(3 + len(data)))
	w.buf.WriteByte(0x10) // DEVICE CAPABILITY
	w.buf.WriteByte(capabilityType)
	w.buf.Write(data)
	w.caps++
}

// Empty reports whether no capability was written.
func (w *BOSWriter) Empty() bool { return w.caps == 0 }

// Finalize prepends the BOS header and returns the complete descriptor.
func (w *BOSWriter) Finalize() []byte {
	var out bytes.Buffer
	out.Grow(bosDescLen + w.buf.Len())
	out.WriteByte(bosDescLen)
	out.WriteByte(DescriptorTypeBOS)
	_ = binary.Write(&out, binary.LittleEndian, uint16(bosDescLen+w.buf.Len()))
	out.WriteByte(w.caps)
	out.Write(w.buf.Bytes())
	return out.Bytes()
}
