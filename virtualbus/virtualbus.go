// Package virtualbus manages USB bus topology and auto-assigns device addresses.
package virtualbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keywire/keywire/usb"
	"github.com/keywire/keywire/usbip"
)

const basepath = "/sys/devices/pci0000:00/0000:00:08.1/0000:00:04:00.3/usb"

var (
	globalBusCounter uint32
	allocatedBusIds  = make(map[uint32]bool)
	globalMutex      sync.Mutex
)

// VirtualBus manages USB bus topology and auto-assigns device addresses.
type VirtualBus struct {
	mutex           sync.Mutex
	busId           uint32
	allocatedDevIDs map[uint32]bool
	devices         []*Attachment
}

// Attachment is a device registered on a VirtualBus together with its
// export metadata and lifecycle. The Class field keeps the concrete
// function (e.g. a keyboard) reachable for stream handlers that need
// more than the generic device interface.
type Attachment struct {
	Dev   *usb.Device
	Class usb.Class
	Meta  usbip.ExportMeta

	connTimer *time.Timer
	ctx       context.Context
	cancel    context.CancelFunc
}

// Context returns the attachment lifecycle context. It is cancelled when the
// device is removed from the bus or the bus is closed.
func (a *Attachment) Context() context.Context { return a.ctx }

// ConnTimer returns the per-device idle timer used to reap devices whose
// client connection went away.
func (a *Attachment) ConnTimer() *time.Timer { return a.connTimer }

// New creates a new VirtualBus instance with a unique auto-assigned bus number.
func New() *VirtualBus {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	busId := globalBusCounter
	if busId == 0 {
		busId = 1
	}
	globalBusCounter = busId + 1
	allocatedBusIds[busId] = true

	return &VirtualBus{
		busId:           busId,
		allocatedDevIDs: make(map[uint32]bool),
	}
}

// NewWithBusId creates a new VirtualBus instance starting at a specific bus number.
// Returns an error if the bus number is already allocated.
func NewWithBusId(busId uint32) (*VirtualBus, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if allocatedBusIds[busId] {
		return nil, fmt.Errorf("bus number %d already allocated", busId)
	}
	allocatedBusIds[busId] = true

	return &VirtualBus{
		busId:           busId,
		allocatedDevIDs: make(map[uint32]bool),
	}, nil
}

// Add registers a device on the bus, assigning it the lowest free device
// number. The class is the concrete function owning the device's endpoints.
// The returned attachment carries the device lifecycle and export metadata.
func (vb *VirtualBus) Add(dev *usb.Device, class usb.Class) (*Attachment, error) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	for _, a := range vb.devices {
		if a.Dev == dev {
			return nil, fmt.Errorf("device already registered on this bus")
		}
	}
	busID := vb.busId
	var devID uint32
	for i := uint32(1); ; i++ {
		if !vb.allocatedDevIDs[i] {
			devID = i
			vb.allocatedDevIDs[i] = true
			break
		}
	}

	busDevID := fmt.Sprintf("%d-%d", busID, devID)
	path := fmt.Sprintf("%s%d/%s", basepath, busID, busDevID)

	var meta usbip.ExportMeta
	meta.SetPath(path)
	meta.SetBusId(busDevID)
	meta.BusId = busID
	meta.DevId = devID

	ctx, cancel := context.WithCancel(context.Background())
	att := &Attachment{
		Dev:       dev,
		Class:     class,
		Meta:      meta,
		connTimer: time.NewTimer(0),
		ctx:       ctx,
		cancel:    cancel,
	}

	vb.devices = append(vb.devices, att)
	return att, nil
}

// BusID returns the bus number for this VirtualBus.
func (vb *VirtualBus) BusID() uint32 {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	return vb.busId
}

// Devices returns all attachments currently on this bus.
func (vb *VirtualBus) Devices() []*Attachment {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	out := make([]*Attachment, len(vb.devices))
	copy(out, vb.devices)
	return out
}

// DeviceByID returns the attachment with the given device number, or nil.
func (vb *VirtualBus) DeviceByID(devID uint32) *Attachment {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for _, a := range vb.devices {
		if a.Meta.DevId == devID {
			return a
		}
	}
	return nil
}

// DeviceByBusId returns the attachment whose bus id string (e.g. "1-2")
// matches, or nil. Used by the USB/IP import path.
func (vb *VirtualBus) DeviceByBusId(busid string) *Attachment {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for _, a := range vb.devices {
		if a.Meta.BusIdString() == busid {
			return a
		}
	}
	return nil
}

// RemoveDeviceByID removes a device by its numeric ID (e.g., "1").
// Returns error if not found.
func (vb *VirtualBus) RemoveDeviceByID(deviceID string) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for i, a := range vb.devices {
		if fmt.Sprintf("%d", a.Meta.DevId) == deviceID {
			a.cancel()
			delete(vb.allocatedDevIDs, a.Meta.DevId)
			vb.devices = append(vb.devices[:i], vb.devices[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("device with id %s not found on bus %d", deviceID, vb.busId)
}

// Remove unregisters a device from the bus.
// This removes the device from the internal list; it does not free the
// global bus number. Removal should be used for dynamic device teardown
// during runtime.
func (vb *VirtualBus) Remove(dev *usb.Device) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for i, a := range vb.devices {
		if a.Dev == dev {
			a.cancel()
			delete(vb.allocatedDevIDs, a.Meta.DevId)
			vb.devices = append(vb.devices[:i], vb.devices[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("device not found")
}

// Close frees the bus number allocated to this VirtualBus, allowing it to be
// reused. After calling Close, this VirtualBus instance should not be used.
func (vb *VirtualBus) Close() error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	for _, a := range vb.devices {
		a.cancel()
	}
	vb.devices = nil

	globalMutex.Lock()
	defer globalMutex.Unlock()

	delete(allocatedBusIds, vb.busId)
	return nil
}
