package virtualbus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywire/keywire/class/keyboard"
	"github.com/keywire/keywire/usb"
)

func newKeyboardDevice(t *testing.T) (*usb.Device, *keyboard.Keyboard) {
	t.Helper()
	bus := usb.NewBus(usb.DeviceConfig{VendorID: 0x1209, ProductID: 0x6B62})
	kb := keyboard.New(bus, keyboard.NopLeds{})
	dev := usb.NewDevice(bus, kb)
	return dev, kb
}

func TestAddAssignsSequentialDevIDs(t *testing.T) {
	vb := New()
	defer vb.Close()

	d1, k1 := newKeyboardDevice(t)
	d2, k2 := newKeyboardDevice(t)

	a1, err := vb.Add(d1, k1)
	require.NoError(t, err)
	a2, err := vb.Add(d2, k2)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), a1.Meta.DevId)
	assert.Equal(t, uint32(2), a2.Meta.DevId)
	assert.Equal(t, vb.BusID(), a1.Meta.BusId)
	assert.Equal(t, fmt.Sprintf("%d-1", vb.BusID()), a1.Meta.BusIdString())
	assert.Len(t, vb.Devices(), 2)
}

func TestAddRejectsDuplicateDevice(t *testing.T) {
	vb := New()
	defer vb.Close()

	dev, kb := newKeyboardDevice(t)
	_, err := vb.Add(dev, kb)
	require.NoError(t, err)
	_, err = vb.Add(dev, kb)
	require.Error(t, err)
}

func TestRemoveFreesDevIDAndCancelsContext(t *testing.T) {
	vb := New()
	defer vb.Close()

	dev, kb := newKeyboardDevice(t)
	att, err := vb.Add(dev, kb)
	require.NoError(t, err)

	require.NoError(t, vb.Remove(dev))
	assert.Empty(t, vb.Devices())

	select {
	case <-att.Context().Done():
	default:
		t.Fatal("attachment context not cancelled on remove")
	}

	// The freed ID is reused by the next device.
	d2, k2 := newKeyboardDevice(t)
	a2, err := vb.Add(d2, k2)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), a2.Meta.DevId)
}

func TestRemoveDeviceByID(t *testing.T) {
	vb := New()
	defer vb.Close()

	dev, kb := newKeyboardDevice(t)
	att, err := vb.Add(dev, kb)
	require.NoError(t, err)

	require.Error(t, vb.RemoveDeviceByID("99"))
	require.NoError(t, vb.RemoveDeviceByID(fmt.Sprintf("%d", att.Meta.DevId)))
	assert.Empty(t, vb.Devices())
}

func TestLookupByIDAndBusId(t *testing.T) {
	vb := New()
	defer vb.Close()

	dev, kb := newKeyboardDevice(t)
	att, err := vb.Add(dev, kb)
	require.NoError(t, err)

	assert.Same(t, att, vb.DeviceByID(att.Meta.DevId))
	assert.Nil(t, vb.DeviceByID(42))
	assert.Same(t, att, vb.DeviceByBusId(att.Meta.BusIdString()))
	assert.Nil(t, vb.DeviceByBusId("7-7"))
}

func TestNewWithBusIdRejectsTaken(t *testing.T) {
	vb, err := NewWithBusId(900)
	require.NoError(t, err)
	defer vb.Close()

	_, err = NewWithBusId(900)
	require.Error(t, err)

	require.NoError(t, vb.Close())
	vb2, err := NewWithBusId(900)
	require.NoError(t, err)
	require.NoError(t, vb2.Close())
}
