// Package keyboard implements a USB boot keyboard on top of the generic
// HID function: fixed 8-byte input reports, a boot-profile report
// descriptor, and LED output report decoding.
package keyboard

import (
	hidclass "github.com/keywire/keywire/class/hid"
	"github.com/keywire/keywire/usb"
	"github.com/keywire/keywire/usb/hid"
)

// pollIntervalMs is the interrupt IN polling interval advertised to the
// host.
const pollIntervalMs = 10

// reportDescriptor is the boot keyboard report descriptor. The keycode
// usage range is widened to 0x00..0xFF (the defined keyboard page tops
// out at 0xDD) so hosts accept reports carrying vendor keycodes; stricter
// hosts ignore the surplus range.
var reportDescriptor = hid.MustBytes(hid.Report{Items: []hid.Item{
	hid.UsagePage{Page: hid.UsagePageGenericDesktop},
	hid.Usage{Usage: hid.UsageKeyboard},
	hid.Collection{Kind: hid.CollectionApplication, Items: []hid.Item{
		// Modifier bits, LeftCtrl..RightGUI.
		hid.UsagePage{Page: hid.UsagePageKeyboard},
		hid.UsageMinimum{Min: 0xE0},
		hid.UsageMaximum{Max: 0xE7},
		hid.LogicalMinimum{Min: 0},
		hid.LogicalMaximum{Max: 1},
		hid.ReportSize{Bits: 1},
		hid.ReportCount{Count: 8},
		hid.Input{Flags: hid.MainData | hid.MainVar | hid.MainAbs},
		// Reserved byte.
		hid.ReportSize{Bits: 8},
		hid.ReportCount{Count: 1},
		hid.Input{Flags: hid.MainConst | hid.MainVar | hid.MainAbs},
		// LED bits, NumLock..Kana, plus 3 bits of padding.
		hid.UsagePage{Page: hid.UsagePageLEDs},
		hid.UsageMinimum{Min: 1},
		hid.UsageMaximum{Max: 5},
		hid.LogicalMinimum{Min: 0},
		hid.LogicalMaximum{Max: 1},
		hid.ReportSize{Bits: 1},
		hid.ReportCount{Count: 5},
		hid.Output{Flags: hid.MainData | hid.MainVar | hid.MainAbs},
		hid.ReportSize{Bits: 3},
		hid.ReportCount{Count: 1},
		hid.Output{Flags: hid.MainConst | hid.MainVar | hid.MainAbs},
		// Six keycode array slots.
		hid.UsagePage{Page: hid.UsagePageKeyboard},
		hid.UsageMinimum{Min: 0x00},
		hid.UsageMaximum{Max: 0xFF},
		hid.LogicalMinimum{Min: 0},
		hid.LogicalMaximum{Max: 0xFF},
		hid.ReportSize{Bits: 8},
		hid.ReportCount{Count: 6},
		hid.Input{Flags: hid.MainData | hid.MainArray | hid.MainAbs},
	}},
}})

// ReportDescriptor returns the boot keyboard report descriptor bytes.
func ReportDescriptor() []byte {
	return reportDescriptor
}

// Keyboard is a boot keyboard function. All USB protocol handling lives
// in the embedded HID function; the keyboard adds report framing on the
// way in and LED decoding on the way out.
type Keyboard struct {
	hid  *hidclass.Class
	leds Leds
}

// New creates a boot keyboard on the bus. A nil leds sink discards LED
// updates.
func New(bus *usb.Bus, leds Leds) *Keyboard {
	if leds == nil {
		leds = NopLeds{}
	}
	h := hidclass.New(bus, reportDescriptor, pollIntervalMs, hidclass.Settings{
		SubClass:   hidclass.SubClassBoot,
		Protocol:   hidclass.ProtocolKeyboard,
		Mode:       hidclass.ProtocolModeForceBoot,
		Locale:     hidclass.CountryNotSupported,
		PacketSize: InputSize,
	})
	return &Keyboard{hid: h, leds: leds}
}

// Leds returns the keyboard's LED sink.
func (k *Keyboard) Leds() Leds { return k.leds }

// PushReport queues one input report for the host. usb.ErrBufferOverflow
// means the endpoint accepted fewer than the full eight bytes;
// usb.ErrWouldBlock means the host has not drained earlier reports yet,
// and the caller may simply retry on its next tick.
func (k *Keyboard) PushReport(r *Report) error {
	buf := r.InputBytes()
	n, err := k.hid.PushInput(buf[:])
	if err != nil {
		return err
	}
	if n != InputSize {
		return usb.ErrBufferOverflow
	}
	return nil
}

// ControlOut lets the HID function handle the transfer first, then drains
// any buffered SET_REPORT. Only a one-byte output report with ID zero is
// the boot LED report; anything else is dropped.
func (k *Keyboard) ControlOut(xfer *usb.ControlOut) {
	k.hid.ControlOut(xfer)

	var report [1]byte
	info, err := k.hid.PullRawReport(report[:])
	if err != nil {
		return
	}
	if info.Type != hidclass.ReportTypeOutput || info.ID != 0 || info.Len != 1 {
		return
	}
	k.leds.NumLock(report[0]&LEDNumLock != 0)
	k.leds.CapsLock(report[0]&LEDCapsLock != 0)
	k.leds.ScrollLock(report[0]&LEDScrollLock != 0)
	k.leds.Compose(report[0]&LEDCompose != 0)
	k.leds.Kana(report[0]&LEDKana != 0)
}

// The remaining class behavior is the generic HID function's, untouched.

func (k *Keyboard) GetConfigurationDescriptors(w *usb.DescriptorWriter) error {
	return k.hid.GetConfigurationDescriptors(w)
}

func (k *Keyboard) GetBOSDescriptors(w *usb.BOSWriter) error {
	return k.hid.GetBOSDescriptors(w)
}

func (k *Keyboard) GetString(index usb.StringIndex, lang uint16) (string, bool) {
	return k.hid.GetString(index, lang)
}

func (k *Keyboard) Reset() { k.hid.Reset() }

func (k *Keyboard) Poll() { k.hid.Poll() }

func (k *Keyboard) ControlIn(xfer *usb.ControlIn) { k.hid.ControlIn(xfer) }

func (k *Keyboard) EndpointSetup(addr usb.EndpointAddress) { k.hid.EndpointSetup(addr) }

func (k *Keyboard) EndpointOut(addr usb.EndpointAddress) { k.hid.EndpointOut(addr) }

func (k *Keyboard) EndpointInComplete(addr usb.EndpointAddress) { k.hid.EndpointInComplete(addr) }

var _ usb.Class = (*Keyboard)(nil)
