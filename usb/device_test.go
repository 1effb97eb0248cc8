package usb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoClass is a minimal vendor-ish class for exercising Device dispatch.
type echoClass struct {
	ep *EndpointIn

	resets    int
	setupEPs  []EndpointAddress
	lastOut   []byte
	inHandled bool
}

func newEchoClass(bus *Bus) *echoClass {
	return &echoClass{ep: bus.InterruptIn(8, 10)}
}

func (c *echoClass) GetConfigurationDescriptors(w *DescriptorWriter) error {
	w.Interface(InterfaceDescriptor{
		BNumEndpoints:      1,
		BInterfaceClass:    0xFF,
		BInterfaceSubClass: 0x01,
		BInterfaceProtocol: 0x02,
	})
	w.Endpoint(c.ep.Descriptor())
	return nil
}

func (c *echoClass) GetBOSDescriptors(w *BOSWriter) error { return nil }

func (c *echoClass) GetString(index StringIndex, lang uint16) (string, bool) {
	if index == 4 {
		return "echo", true
	}
	return "", false
}

func (c *echoClass) Reset() { c.resets++ }
func (c *echoClass) Poll()  {}

func (c *echoClass) ControlIn(xfer *ControlIn) {
	if xfer.Setup().Type() == TypeVendor {
		c.inHandled = true
		_ = xfer.Accept([]byte{0xEC, 0x40})
	}
}

func (c *echoClass) ControlOut(xfer *ControlOut) {
	if xfer.Setup().Type() == TypeVendor {
		c.lastOut = append([]byte(nil), xfer.Data()...)
		_ = xfer.Accept()
	}
}

func (c *echoClass) EndpointSetup(addr EndpointAddress) { c.setupEPs = append(c.setupEPs, addr) }
func (c *echoClass) EndpointOut(addr EndpointAddress)   {}
func (c *echoClass) EndpointInComplete(addr EndpointAddress) {}

func newTestDevice(t *testing.T) (*Device, *echoClass) {
	t.Helper()
	bus := NewBus(DeviceConfig{
		VendorID:     0x1209,
		ProductID:    0x0001,
		Manufacturer: "acme",
		Product:      "widget",
		SerialNumber: "0001",
	})
	class := newEchoClass(bus)
	return NewDevice(bus, class), class
}

func setupBytes(requestType, request uint8, value, index, length uint16) []byte {
	sp := SetupPacket{RequestType: requestType, Request: request, Value: value, Index: index, Length: length}
	b := sp.Bytes()
	return b[:]
}

func TestDeviceDescriptorRequest(t *testing.T) {
	dev, _ := newTestDevice(t)

	reply, err := dev.HandleSetup(setupBytes(DirIn, RequestGetDescriptor, DescriptorTypeDevice<<8, 0, 18), nil)
	require.NoError(t, err)
	require.Len(t, reply, 18)
	assert.Equal(t, uint8(DescriptorTypeDevice), reply[1])
	assert.Equal(t, []byte{0x09, 0x12}, reply[8:10], "idVendor little-endian")
	assert.Equal(t, uint8(1), reply[17], "one configuration")
}

func TestDeviceDescriptorTruncatedToWLength(t *testing.T) {
	dev, _ := newTestDevice(t)

	reply, err := dev.HandleSetup(setupBytes(DirIn, RequestGetDescriptor, DescriptorTypeDevice<<8, 0, 8), nil)
	require.NoError(t, err)
	assert.Len(t, reply, 8)
}

func TestConfigurationDescriptor(t *testing.T) {
	dev, _ := newTestDevice(t)

	reply, err := dev.HandleSetup(setupBytes(DirIn, RequestGetDescriptor, DescriptorTypeConfig<<8, 0, 0xFF), nil)
	require.NoError(t, err)
	// Header + one interface + one endpoint.
	require.Len(t, reply, 9+9+7)
	assert.Equal(t, uint8(DescriptorTypeConfig), reply[1])
	assert.Equal(t, uint8(len(reply)), reply[2], "wTotalLength low byte")
	assert.Equal(t, uint8(1), reply[4], "bNumInterfaces")
	assert.Equal(t, uint8(DescriptorTypeInterface), reply[10])
	assert.Equal(t, uint8(0xFF), reply[14], "bInterfaceClass")
	assert.Equal(t, uint8(DescriptorTypeEndpoint), reply[19])
	assert.Equal(t, uint8(0x81), reply[20], "EP1 IN address")
}

func TestStringDescriptors(t *testing.T) {
	dev, _ := newTestDevice(t)

	lang, err := dev.HandleSetup(setupBytes(DirIn, RequestGetDescriptor, DescriptorTypeString<<8, 0, 0xFF), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x03, 0x09, 0x04}, lang)

	product, err := dev.HandleSetup(setupBytes(DirIn, RequestGetDescriptor, DescriptorTypeString<<8|2, 0x0409, 0xFF), nil)
	require.NoError(t, err)
	assert.Equal(t, EncodeStringDescriptor("widget"), product)

	classStr, err := dev.HandleSetup(setupBytes(DirIn, RequestGetDescriptor, DescriptorTypeString<<8|4, 0x0409, 0xFF), nil)
	require.NoError(t, err)
	assert.Equal(t, EncodeStringDescriptor("echo"), classStr)
}

func TestSetConfiguration(t *testing.T) {
	dev, class := newTestDevice(t)
	assert.False(t, dev.Configured())

	_, err := dev.HandleSetup(setupBytes(DirOut, RequestSetConfiguration, 1, 0, 0), nil)
	require.NoError(t, err)
	assert.True(t, dev.Configured())
	require.Len(t, class.setupEPs, 1)
	assert.Equal(t, EndpointAddress(0x81), class.setupEPs[0])

	reply, err := dev.HandleSetup(setupBytes(DirIn, RequestGetConfiguration, 0, 0, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, reply)
}

func TestVendorControlDelegation(t *testing.T) {
	dev, class := newTestDevice(t)

	reply, err := dev.HandleSetup(setupBytes(DirIn|TypeVendor, 0x01, 0, 0, 2), nil)
	require.NoError(t, err)
	assert.True(t, class.inHandled)
	assert.Equal(t, []byte{0xEC, 0x40}, reply)

	_, err = dev.HandleSetup(setupBytes(DirOut|TypeVendor, 0x02, 0, 0, 3), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, class.lastOut)
}

func TestDeviceReset(t *testing.T) {
	dev, class := newTestDevice(t)

	_, err := dev.HandleSetup(setupBytes(DirOut, RequestSetConfiguration, 1, 0, 0), nil)
	require.NoError(t, err)
	_, err = class.ep.Write([]byte{1})
	require.NoError(t, err)

	dev.Reset()
	assert.False(t, dev.Configured())
	assert.Equal(t, 1, class.resets)
	assert.Nil(t, class.ep.Collect())
}

func TestDeviceInfoInterfaces(t *testing.T) {
	dev, _ := newTestDevice(t)

	info := dev.Info()
	assert.Equal(t, SpeedFull, info.Speed)
	require.Len(t, info.Interfaces, 1)
	assert.Equal(t, InterfaceInfo{Class: 0xFF, SubClass: 0x01, Protocol: 0x02}, info.Interfaces[0])
}

func TestHandleInRoutesToEndpoint(t *testing.T) {
	dev, class := newTestDevice(t)

	_, err := class.ep.Write([]byte{7, 7})
	require.NoError(t, err)

	pkt, err := dev.HandleIn(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7}, pkt)

	_, err = dev.HandleIn(9)
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}
