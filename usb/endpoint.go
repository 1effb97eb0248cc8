package usb

import (
	"fmt"
	"sync"
)

// EndpointAddress is a bEndpointAddress byte: bit 7 is the direction,
// bits 0..3 the endpoint number.
type EndpointAddress uint8

// Number returns the endpoint number without the direction bit.
func (a EndpointAddress) Number() uint8 { return uint8(a) & 0x0F }

// IsIn reports whether the endpoint carries device-to-host traffic.
func (a EndpointAddress) IsIn() bool { return uint8(a)&DirIn != 0 }

func (a EndpointAddress) String() string {
	dir := "OUT"
	if a.IsIn() {
		dir = "IN"
	}
	return fmt.Sprintf("EP%d %s", a.Number(), dir)
}

// maxQueuedPackets bounds the per-endpoint packet queue. The host side of
// an interrupt pipe drains at the polling interval, so a handful of slack
// packets is enough to absorb bursts without letting a dead host connection
// grow memory without bound.
const maxQueuedPackets = 8

// EndpointIn is a device-to-host interrupt endpoint backed by a bounded
// packet queue. Writes enqueue at most one max-packet-sized packet; host
// polls dequeue in FIFO order. When the queue is empty the endpoint keeps
// answering polls with the most recently transmitted packet, which is how
// interrupt endpoints behave for a host that polls faster than the device
// produces.
type EndpointIn struct {
	addr      EndpointAddress
	maxPacket uint16
	interval  uint8

	mu    sync.Mutex
	queue [][]byte
	last  []byte
}

// Address returns the endpoint's address byte.
func (e *EndpointIn) Address() EndpointAddress { return e.addr }

// MaxPacketSize returns wMaxPacketSize.
func (e *EndpointIn) MaxPacketSize() uint16 { return e.maxPacket }

// Interval returns bInterval in milliseconds.
func (e *EndpointIn) Interval() uint8 { return e.interval }

// Descriptor returns the endpoint descriptor advertised in the
// configuration.
func (e *EndpointIn) Descriptor() EndpointDescriptor {
	return EndpointDescriptor{
		BEndpointAddress: uint8(e.addr),
		BmAttributes:     TransferTypeInterrupt,
		WMaxPacketSize:   e.maxPacket,
		BInterval:        e.interval,
	}
}

// Write enqueues one packet for the host to collect. At most MaxPacketSize
// bytes of p are taken; the returned count tells the caller how much
// actually fit. A full queue returns ErrWouldBlock without consuming
// anything.
func (e *EndpointIn) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) >= maxQueuedPackets {
		return 0, ErrWouldBlock
	}
	n := len(p)
	if n > int(e.maxPacket) {
		n = int(e.maxPacket)
	}
	pkt := make([]byte, n)
	copy(pkt, p[:n])
	e.queue = append(e.queue, pkt)
	return n, nil
}

// Collect removes and returns the oldest queued packet. With nothing
// queued it repeats the last transmitted packet, or returns nil if nothing
// was ever sent.
func (e *EndpointIn) Collect() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return e.last
	}
	pkt := e.queue[0]
	e.queue = e.queue[1:]
	e.last = pkt
	return pkt
}

// Pending reports how many packets wait for the host.
func (e *EndpointIn) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Clear drops all queued packets and the replay packet. Called on bus
// reset.
func (e *EndpointIn) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = nil
	e.last = nil
}

// EndpointOut is a host-to-device interrupt endpoint. The transport
// delivers packets as they arrive; the owning class reads them back out.
type EndpointOut struct {
	addr      EndpointAddress
	maxPacket uint16
	interval  uint8

	mu    sync.Mutex
	queue [][]byte
}

func (e *EndpointOut) Address() EndpointAddress { return e.addr }
func (e *EndpointOut) MaxPacketSize() uint16    { return e.maxPacket }
func (e *EndpointOut) Interval() uint8          { return e.interval }

func (e *EndpointOut) Descriptor() EndpointDescriptor {
	return EndpointDescriptor{
		BEndpointAddress: uint8(e.addr),
		BmAttributes:     TransferTypeInterrupt,
		WMaxPacketSize:   e.maxPacket,
		BInterval:        e.interval,
	}
}

// Deliver enqueues a host packet, truncated to the max packet size. The
// oldest packet is dropped when the queue is full; OUT data that the class
// never read is stale by definition.
func (e *EndpointOut) Deliver(p []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(p)
	if n > int(e.maxPacket) {
		n = int(e.maxPacket)
	}
	pkt := make([]byte, n)
	copy(pkt, p[:n])
	if len(e.queue) >= maxQueuedPackets {
		e.queue = e.queue[1:]
	}
	e.queue = append(e.queue, pkt)
}

// Read copies the oldest delivered packet into p and returns its length,
// or ErrWouldBlock when nothing is queued.
func (e *EndpointOut) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return 0, ErrWouldBlock
	}
	pkt := e.queue[0]
	e.queue = e.queue[1:]
	return copy(p, pkt), nil
}

// Clear drops all queued packets.
func (e *EndpointOut) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = nil
}
