package usb

import (
	"fmt"
	"sync"
)

// USB/IP speed codes as exported in device listings.
const (
	SpeedLow  uint32 = 1
	SpeedFull uint32 = 2
	SpeedHigh uint32 = 3
)

// DeviceConfig holds the identity a Bus advertises in its device
// descriptor. Zero values get sensible defaults from NewBus.
type DeviceConfig struct {
	VendorID      uint16
	ProductID     uint16
	DeviceRelease uint16 // bcdDevice

	DeviceClass    uint8
	DeviceSubClass uint8
	DeviceProtocol uint8

	MaxPacketSize0 uint8
	Speed          uint32

	Manufacturer string
	Product      string
	SerialNumber string
}

// Bus allocates endpoint addresses and owns the endpoint queues of a
// single emulated device. Classes request endpoints at construction time,
// before the device is exposed to any host.
type Bus struct {
	config DeviceConfig

	mu      sync.Mutex
	in      map[uint8]*EndpointIn
	out     map[uint8]*EndpointOut
	nextIn  uint8
	nextOut uint8
}

// NewBus creates a bus for a single device identity.
func NewBus(config DeviceConfig) *Bus {
	if config.MaxPacketSize0 == 0 {
		config.MaxPacketSize0 = 64
	}
	if config.Speed == 0 {
		config.Speed = SpeedFull
	}
	return &Bus{
		config:  config,
		in:      make(map[uint8]*EndpointIn),
		out:     make(map[uint8]*EndpointOut),
		nextIn:  1,
		nextOut: 1,
	}
}

// Config returns the device identity the bus was created with.
func (b *Bus) Config() DeviceConfig { return b.config }

// InterruptIn allocates the next free device-to-host interrupt endpoint.
// Endpoint numbers are a fixed hardware-like resource (1..15 per
// direction); running out is a construction-time programming error, so it
// panics rather than returning an error every class would have to thread
// through its constructor.
func (b *Bus) InterruptIn(maxPacket uint16, interval uint8) *EndpointIn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nextIn > 0x0F {
		panic("usb: no free IN endpoints")
	}
	ep := &EndpointIn{
		addr:      EndpointAddress(DirIn | b.nextIn),
		maxPacket: maxPacket,
		interval:  interval,
	}
	b.in[b.nextIn] = ep
	b.nextIn++
	return ep
}

// InterruptOut allocates the next free host-to-device interrupt endpoint.
func (b *Bus) InterruptOut(maxPacket uint16, interval uint8) *EndpointOut {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nextOut > 0x0F {
		panic("usb: no free OUT endpoints")
	}
	ep := &EndpointOut{
		addr:      EndpointAddress(b.nextOut),
		maxPacket: maxPacket,
		interval:  interval,
	}
	b.out[b.nextOut] = ep
	b.nextOut++
	return ep
}

// EndpointIn looks up an allocated IN endpoint by number.
func (b *Bus) EndpointIn(num uint8) (*EndpointIn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ep, ok := b.in[num&0x0F]
	if !ok {
		return nil, fmt.Errorf("%w: EP%d IN", ErrInvalidEndpoint, num&0x0F)
	}
	return ep, nil
}

// EndpointOut looks up an allocated OUT endpoint by number.
func (b *Bus) EndpointOut(num uint8) (*EndpointOut, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ep, ok := b.out[num&0x0F]
	if !ok {
		return nil, fmt.Errorf("%w: EP%d OUT", ErrInvalidEndpoint, num&0x0F)
	}
	return ep, nil
}

// Endpoints returns the addresses of all allocated endpoints, IN before
// OUT, each direction in allocation order.
func (b *Bus) Endpoints() []EndpointAddress {
	b.mu.Lock()
	defer b.mu.Unlock()
	addrs := make([]EndpointAddress, 0, len(b.in)+len(b.out))
	for n := uint8(1); n < b.nextIn; n++ {
		addrs = append(addrs, b.in[n].addr)
	}
	for n := uint8(1); n < b.nextOut; n++ {
		addrs = append(addrs, b.out[n].addr)
	}
	return addrs
}

// ClearAll drops queued packets on every endpoint. Called on bus reset.
func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ep := range b.in {
		ep.Clear()
	}
	for _, ep := range b.out {
		ep.Clear()
	}
}
