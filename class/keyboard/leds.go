package keyboard

// Leds receives host LED state changes decoded from the boot output
// report. Every callback delivers the absolute state of its LED, so an
// implementation never has to remember previous reports.
//
// Callbacks run on the control transfer path; implementations that do
// slow work should hand it off.
type Leds interface {
	NumLock(on bool)
	CapsLock(on bool)
	ScrollLock(on bool)
	Compose(on bool)
	Kana(on bool)
}

// NopLeds discards all LED updates. It is the sink used when a keyboard
// is created without one.
type NopLeds struct{}

func (NopLeds) NumLock(bool)    {}
func (NopLeds) CapsLock(bool)   {}
func (NopLeds) ScrollLock(bool) {}
func (NopLeds) Compose(bool)    {}
func (NopLeds) Kana(bool)       {}

var _ Leds = NopLeds{}
