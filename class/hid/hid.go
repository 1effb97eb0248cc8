// Package hid implements a generic USB HID function: one interface, one
// interrupt IN endpoint, a static report descriptor, and the HID
// class-specific control requests. Concrete devices (keyboards, mice)
// wrap a Class and add their report semantics on top.
package hid

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/keywire/keywire/usb"
)

// maxOutputReportSize bounds the buffered SET_REPORT payload.
const maxOutputReportSize = 64

// Settings selects the interface identity and protocol behavior of a HID
// function.
type Settings struct {
	SubClass SubClass
	Protocol Protocol
	Mode     ProtocolMode
	Locale   CountryCode

	// PacketSize is the IN endpoint max packet size. Zero means 64.
	PacketSize uint16
}

// ReportInfo describes a report buffered from SET_REPORT.
type ReportInfo struct {
	Type ReportType
	ID   uint8
	Len  int
}

// Class is a single-interface HID function.
//
// Control requests arrive on the transport goroutine only, so the
// SET_REPORT buffer and the protocol/idle state need no locking.
// PushInput runs on the device owner's goroutine, so the fields it
// shares with the transport side (configured, lastInput) sit behind mu;
// the IN endpoint queue carries its own lock.
type Class struct {
	in         *usb.EndpointIn
	descriptor []byte
	settings   Settings

	protocol uint8
	idle     uint8

	mu         sync.Mutex
	configured bool
	lastInput  []byte

	outReport  [maxOutputReportSize]byte
	outInfo    ReportInfo
	outPending bool
}

// New creates a HID function on the bus, allocating its interrupt IN
// endpoint. interval is the endpoint polling interval in milliseconds.
func New(bus *usb.Bus, reportDescriptor []byte, interval uint8, settings Settings) *Class {
	if settings.PacketSize == 0 {
		settings.PacketSize = 64
	}
	c := &Class{
		in:         bus.InterruptIn(settings.PacketSize, interval),
		descriptor: reportDescriptor,
		settings:   settings,
	}
	c.protocol = c.defaultProtocol()
	return c
}

func (c *Class) defaultProtocol() uint8 {
	if c.settings.Mode == ProtocolModeForceBoot {
		return protocolWireBoot
	}
	return protocolWireReport
}

// InEndpoint returns the function's interrupt IN endpoint.
func (c *Class) InEndpoint() *usb.EndpointIn { return c.in }

// ReportDescriptor returns the raw report descriptor bytes.
func (c *Class) ReportDescriptor() []byte { return c.descriptor }

// Protocol reports whether the function currently runs the boot protocol.
func (c *Class) BootProtocol() bool { return c.protocol == protocolWireBoot }

// PushInput queues one input report for the host. It returns the number
// of bytes accepted, which is less than len(data) when the report does not
// fit the endpoint packet size. usb.ErrNotConfigured is returned before
// the host selected a configuration, usb.ErrWouldBlock when the endpoint
// queue is full.
func (c *Class) PushInput(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.configured {
		return 0, usb.ErrNotConfigured
	}
	n, err := c.in.Write(data)
	if err != nil {
		return 0, err
	}
	c.lastInput = append(c.lastInput[:0], data[:n]...)
	return n, nil
}

// PullRawReport hands out the report buffered from the last SET_REPORT,
// copying up to len(buf) bytes. usb.ErrWouldBlock means no report arrived
// since the previous pull.
func (c *Class) PullRawReport(buf []byte) (ReportInfo, error) {
	if !c.outPending {
		return ReportInfo{}, usb.ErrWouldBlock
	}
	c.outPending = false
	copy(buf, c.outReport[:c.outInfo.Len])
	return c.outInfo, nil
}

// hidDescriptorBody is the HID class descriptor after bLength and
// bDescriptorType: bcdHID, bCountryCode, bNumDescriptors, then one
// (type, length) pair for the report descriptor.
func (c *Class) hidDescriptorBody() []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, specRelease)
	b.WriteByte(uint8(c.settings.Locale))
	b.WriteByte(1)
	b.WriteByte(DescriptorTypeReport)
	_ = binary.Write(&b, binary.LittleEndian, uint16(len(c.descriptor)))
	return b.Bytes()
}

// GetConfigurationDescriptors contributes the interface, the HID class
// descriptor, and the interrupt IN endpoint.
func (c *Class) GetConfigurationDescriptors(w *usb.DescriptorWriter) error {
	w.Interface(usb.InterfaceDescriptor{
		BNumEndpoints:      1,
		BInterfaceClass:    ClassCode,
		BInterfaceSubClass: uint8(c.settings.SubClass),
		BInterfaceProtocol: uint8(c.settings.Protocol),
	})
	w.Write(DescriptorTypeHID, c.hidDescriptorBody())
	w.Endpoint(c.in.Descriptor())
	return nil
}

// GetBOSDescriptors contributes nothing; HID predates BOS.
func (c *Class) GetBOSDescriptors(w *usb.BOSWriter) error { return nil }

// GetString owns no string descriptors.
func (c *Class) GetString(index usb.StringIndex, lang uint16) (string, bool) {
	return "", false
}

// Reset returns the function to its default protocol and drops all
// buffered reports.
func (c *Class) Reset() {
	c.protocol = c.defaultProtocol()
	c.idle = 0
	c.outPending = false
	c.mu.Lock()
	c.configured = false
	c.lastInput = nil
	c.mu.Unlock()
	c.in.Clear()
}

// Poll is a no-op; the endpoint queues are push-driven.
func (c *Class) Poll() {}

// ControlIn answers GET_DESCRIPTOR for the HID and report descriptors and
// the class-specific GET requests.
func (c *Class) ControlIn(xfer *usb.ControlIn) {
	sp := xfer.Setup()
	if sp.Recipient() != usb.RecipientInterface {
		return
	}
	if sp.IsStandard() && sp.Request == usb.RequestGetDescriptor {
		switch sp.DescriptorType() {
		case DescriptorTypeReport:
			_ = xfer.Accept(c.descriptor)
		case DescriptorTypeHID:
			body := c.hidDescriptorBody()
			full := append([]byte{uint8(2 + len(body)), DescriptorTypeHID}, body...)
			_ = xfer.Accept(full)
		}
		return
	}
	if !sp.IsClass() {
		return
	}
	switch sp.Request {
	case RequestGetReport:
		// Report the last pushed input, or all zeros before the first
		// push.
		c.mu.Lock()
		last := append([]byte(nil), c.lastInput...)
		c.mu.Unlock()
		if len(last) > 0 {
			_ = xfer.Accept(last)
			return
		}
		_ = xfer.Accept(make([]byte, sp.Length))
	case RequestGetIdle:
		_ = xfer.Accept([]byte{c.idle})
	case RequestGetProtocol:
		_ = xfer.Accept([]byte{c.protocol})
	}
}

// ControlOut handles the class-specific SET requests. SET_REPORT payloads
// are buffered for the owning device to pull.
func (c *Class) ControlOut(xfer *usb.ControlOut) {
	sp := xfer.Setup()
	if !sp.IsClass() || sp.Recipient() != usb.RecipientInterface {
		return
	}
	switch sp.Request {
	case RequestSetIdle:
		c.idle = uint8(sp.Value >> 8)
		_ = xfer.Accept()
	case RequestSetProtocol:
		// Forced modes acknowledge the request but keep their protocol;
		// stalling here makes some hosts give up on the device.
		if c.settings.Mode == ProtocolModeDefault {
			c.protocol = uint8(sp.Value)
		}
		_ = xfer.Accept()
	case RequestSetReport:
		data := xfer.Data()
		if len(data) > maxOutputReportSize {
			data = data[:maxOutputReportSize]
		}
		copy(c.outReport[:], data)
		c.outInfo = ReportInfo{
			Type: ReportType(sp.Value >> 8),
			ID:   uint8(sp.Value),
			Len:  len(data),
		}
		c.outPending = true
		_ = xfer.Accept()
	}
}

// EndpointSetup marks the function ready once the host configures its IN
// endpoint.
func (c *Class) EndpointSetup(addr usb.EndpointAddress) {
	if addr == c.in.Address() {
		c.mu.Lock()
		c.configured = true
		c.mu.Unlock()
	}
}

// EndpointOut is a no-op; the function has no OUT endpoint.
func (c *Class) EndpointOut(addr usb.EndpointAddress) {}

// EndpointInComplete is a no-op; stale input reports need no cleanup.
func (c *Class) EndpointInComplete(addr usb.EndpointAddress) {}

var _ usb.Class = (*Class)(nil)
