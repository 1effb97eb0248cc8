package usb

import (
	"fmt"
	"sync"
)

// DeviceInfo is the summary a transport exports in device listings.
type DeviceInfo struct {
	Speed             uint32
	IDVendor          uint16
	IDProduct         uint16
	BcdDevice         uint16
	BDeviceClass      uint8
	BDeviceSubClass   uint8
	BDeviceProtocol   uint8
	BConfigurationVal uint8
	BNumConfigs       uint8
	Interfaces        []InterfaceInfo
}

// Device binds a Bus to one or more Classes and implements the default
// (chapter 9) control plane: descriptor requests, SET_CONFIGURATION and
// friends. Everything it does not handle itself is offered to the classes
// in registration order.
type Device struct {
	bus     *Bus
	classes []Class

	mu         sync.Mutex
	configured bool
}

// NewDevice creates a device from an already populated bus. Classes must
// have allocated their endpoints on the bus before this call.
func NewDevice(bus *Bus, classes ...Class) *Device {
	return &Device{bus: bus, classes: classes}
}

// Bus returns the device's bus.
func (d *Device) Bus() *Bus { return d.bus }

// Configured reports whether the host selected a configuration.
func (d *Device) Configured() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configured
}

// Reset returns the device to its post-enumeration default state: all
// endpoint queues cleared, configuration deselected, classes reset.
func (d *Device) Reset() {
	d.mu.Lock()
	d.configured = false
	d.mu.Unlock()
	d.bus.ClearAll()
	for _, c := range d.classes {
		c.Reset()
	}
}

// Poll runs one housekeeping tick on every class.
func (d *Device) Poll() {
	for _, c := range d.classes {
		c.Poll()
	}
}

// Descriptor builds the standard device descriptor from the bus identity.
func (d *Device) Descriptor() DeviceDescriptor {
	cfg := d.bus.Config()
	desc := DeviceDescriptor{
		BcdUSB:             0x0200,
		BDeviceClass:       cfg.DeviceClass,
		BDeviceSubClass:    cfg.DeviceSubClass,
		BDeviceProtocol:    cfg.DeviceProtocol,
		BMaxPacketSize0:    cfg.MaxPacketSize0,
		IDVendor:           cfg.VendorID,
		IDProduct:          cfg.ProductID,
		BcdDevice:          cfg.DeviceRelease,
		BNumConfigurations: 1,
	}
	if cfg.Manufacturer != "" {
		desc.IManufacturer = 1
	}
	if cfg.Product != "" {
		desc.IProduct = 2
	}
	if cfg.SerialNumber != "" {
		desc.ISerialNumber = 3
	}
	return desc
}

// Info summarizes the device for transport listings, including the
// interface triples collected from the classes.
func (d *Device) Info() DeviceInfo {
	cfg := d.bus.Config()
	w := &DescriptorWriter{}
	for _, c := range d.classes {
		// A class that cannot describe itself is a construction bug;
		// the error surfaces on the first real GET_DESCRIPTOR.
		_ = c.GetConfigurationDescriptors(w)
	}
	return DeviceInfo{
		Speed:             cfg.Speed,
		IDVendor:          cfg.VendorID,
		IDProduct:         cfg.ProductID,
		BcdDevice:         cfg.DeviceRelease,
		BDeviceClass:      cfg.DeviceClass,
		BDeviceSubClass:   cfg.DeviceSubClass,
		BDeviceProtocol:   cfg.DeviceProtocol,
		BConfigurationVal: 1,
		BNumConfigs:       1,
		Interfaces:        w.Interfaces(),
	}
}

// ConfigurationDescriptor assembles the full configuration descriptor by
// letting every class contribute its interfaces and endpoints.
func (d *Device) ConfigurationDescriptor() ([]byte, error) {
	w := &DescriptorWriter{}
	for _, c := range d.classes {
		if err := c.GetConfigurationDescriptors(w); err != nil {
			return nil, fmt.Errorf("build configuration descriptor: %w", err)
		}
	}
	return w.Finalize(1), nil
}

// BOSDescriptor assembles the binary object store descriptor, or returns
// nil when no class contributes capabilities.
func (d *Device) BOSDescriptor() ([]byte, error) {
	w := &BOSWriter{}
	for _, c := range d.classes {
		if err := c.GetBOSDescriptors(w); err != nil {
			return nil, fmt.Errorf("build BOS descriptor: %w", err)
		}
	}
	if w.Empty() {
		return nil, nil
	}
	return w.Finalize(), nil
}

// StringDescriptor resolves a string descriptor index. Index 0 is the
// language list, 1..3 the bus identity strings, anything above is offered
// to the classes.
func (d *Device) StringDescriptor(index uint8, lang uint16) []byte {
	cfg := d.bus.Config()
	switch index {
	case 0:
		return LangIDDescriptor()
	case 1:
		return EncodeStringDescriptor(cfg.Manufacturer)
	case 2:
		return EncodeStringDescriptor(cfg.Product)
	case 3:
		return EncodeStringDescriptor(cfg.SerialNumber)
	}
	for _, c := range d.classes {
		if s, ok := c.GetString(StringIndex(index), lang); ok {
			return EncodeStringDescriptor(s)
		}
	}
	return nil
}

// HandleSetup processes one control transfer on endpoint zero. data is the
// OUT data stage (empty for IN transfers). The reply is the IN data stage,
// already clamped to the host's wLength; it is nil for OUT transfers and
// for requests nobody handled.
func (d *Device) HandleSetup(setup []byte, data []byte) ([]byte, error) {
	sp, err := ParseSetup(setup)
	if err != nil {
		return nil, err
	}
	if sp.IsDeviceToHost() {
		return d.controlIn(sp)
	}
	return nil, d.controlOut(sp, data)
}

func (d *Device) controlIn(sp SetupPacket) ([]byte, error) {
	if sp.IsStandard() && sp.Recipient() == RecipientDevice {
		switch sp.Request {
		case RequestGetDescriptor:
			return d.getDescriptor(sp)
		case RequestGetConfiguration:
			v := uint8(0)
			if d.Configured() {
				v = 1
			}
			return []byte{v}, nil
		case RequestGetStatus:
			return []byte{0x00, 0x00}, nil
		}
	}
	xfer := NewControlIn(sp)
	for _, c := range d.classes {
		c.ControlIn(xfer)
		if xfer.Completed() {
			break
		}
	}
	if xfer.Accepted() {
		return xfer.Reply(), nil
	}
	return nil, nil
}

func (d *Device) getDescriptor(sp SetupPacket) ([]byte, error) {
	var desc []byte
	switch sp.DescriptorType() {
	case DescriptorTypeDevice:
		desc = d.Descriptor().Bytes()
	case DescriptorTypeConfig:
		full, err := d.ConfigurationDescriptor()
		if err != nil {
			return nil, err
		}
		desc = full
	case DescriptorTypeString:
		desc = d.StringDescriptor(sp.DescriptorIndex(), sp.Index)
	case DescriptorTypeBOS:
		full, err := d.BOSDescriptor()
		if err != nil {
			return nil, err
		}
		desc = full
	default:
		// Class descriptors requested at device level (some hosts do)
		// fall through to the class ControlIn path.
		xfer := NewControlIn(sp)
		for _, c := range d.classes {
			c.ControlIn(xfer)
			if xfer.Completed() {
				break
			}
		}
		return xfer.Reply(), nil
	}
	if len(desc) > int(sp.Length) {
		desc = desc[:sp.Length]
	}
	return desc, nil
}

func (d *Device) controlOut(sp SetupPacket, data []byte) error {
	if sp.IsStandard() && sp.Recipient() == RecipientDevice {
		switch sp.Request {
		case RequestSetAddress:
			return nil
		case RequestSetConfiguration:
			d.setConfiguration(sp.Value != 0)
			return nil
		case RequestSetFeature, RequestClearFeature:
			return nil
		}
	}
	xfer := NewControlOut(sp, data)
	for _, c := range d.classes {
		c.ControlOut(xfer)
		if xfer.Completed() {
			break
		}
	}
	return nil
}

func (d *Device) setConfiguration(on bool) {
	d.mu.Lock()
	d.configured = on
	d.mu.Unlock()
	if !on {
		return
	}
	for _, addr := range d.bus.Endpoints() {
		for _, c := range d.classes {
			c.EndpointSetup(addr)
		}
	}
}

// HandleIn services a host poll on an interrupt IN endpoint and returns
// the packet to transmit (nil when nothing was ever queued).
func (d *Device) HandleIn(ep uint8) ([]byte, error) {
	e, err := d.bus.EndpointIn(ep)
	if err != nil {
		return nil, err
	}
	pkt := e.Collect()
	if pkt != nil {
		for _, c := range d.classes {
			c.EndpointInComplete(e.Address())
		}
	}
	return pkt, nil
}

// HandleOut delivers host data to an interrupt OUT endpoint.
func (d *Device) HandleOut(ep uint8, data []byte) error {
	e, err := d.bus.EndpointOut(ep)
	if err != nil {
		return err
	}
	e.Deliver(data)
	for _, c := range d.classes {
		c.EndpointOut(e.Address())
	}
	return nil
}
