package keyboard

// Modifier bitmasks, matching the bit order of the modifier byte in the
// boot input report.
const (
	ModLeftCtrl   uint8 = 0x01
	ModLeftShift  uint8 = 0x02
	ModLeftAlt    uint8 = 0x04
	ModLeftGUI    uint8 = 0x08
	ModRightCtrl  uint8 = 0x10
	ModRightShift uint8 = 0x20
	ModRightAlt   uint8 = 0x40
	ModRightGUI   uint8 = 0x80
)

// LED bitmasks, matching the bit order of the boot output report.
const (
	LEDNumLock    uint8 = 0x01
	LEDCapsLock   uint8 = 0x02
	LEDScrollLock uint8 = 0x04
	LEDCompose    uint8 = 0x08
	LEDKana       uint8 = 0x10
)

// Keyboard/keypad usage page keycodes.
const (
	KeyNone           uint8 = 0x00
	KeyErrorRollOver  uint8 = 0x01
	KeyPOSTFail       uint8 = 0x02
	KeyErrorUndefined uint8 = 0x03

	KeyA uint8 = 0x04
	KeyB uint8 = 0x05
	KeyC uint8 = 0x06
	KeyD uint8 = 0x07
	KeyE uint8 = 0x08
	KeyF uint8 = 0x09
	KeyG uint8 = 0x0A
	KeyH uint8 = 0x0B
	KeyI uint8 = 0x0C
	KeyJ uint8 = 0x0D
	KeyK uint8 = 0x0E
	KeyL uint8 = 0x0F
	KeyM uint8 = 0x10
	KeyN uint8 = 0x11
	KeyO uint8 = 0x12
	KeyP uint8 = 0x13
	KeyQ uint8 = 0x14
	KeyR uint8 = 0x15
	KeyS uint8 = 0x16
	KeyT uint8 = 0x17
	KeyU uint8 = 0x18
	KeyV uint8 = 0x19
	KeyW uint8 = 0x1A
	KeyX uint8 = 0x1B
	KeyY uint8 = 0x1C
	KeyZ uint8 = 0x1D

	Key1 uint8 = 0x1E
	Key2 uint8 = 0x1F
	Key3 uint8 = 0x20
	Key4 uint8 = 0x21
	Key5 uint8 = 0x22
	Key6 uint8 = 0x23
	Key7 uint8 = 0x24
	Key8 uint8 = 0x25
	Key9 uint8 = 0x26
	Key0 uint8 = 0x27

	KeyEnter      uint8 = 0x28
	KeyEscape     uint8 = 0x29
	KeyBackspace  uint8 = 0x2A
	KeyTab        uint8 = 0x2B
	KeySpace      uint8 = 0x2C
	KeyMinus      uint8 = 0x2D
	KeyEqual      uint8 = 0x2E
	KeyLeftBrace  uint8 = 0x2F
	KeyRightBrace uint8 = 0x30
	KeyBackslash  uint8 = 0x31
	KeyNonUSHash  uint8 = 0x32
	KeySemicolon  uint8 = 0x33
	KeyApostrophe uint8 = 0x34
	KeyGrave      uint8 = 0x35
	KeyComma      uint8 = 0x36
	KeyPeriod     uint8 = 0x37
	KeySlash      uint8 = 0x38
	KeyCapsLock   uint8 = 0x39

	KeyF1  uint8 = 0x3A
	KeyF2  uint8 = 0x3B
	KeyF3  uint8 = 0x3C
	KeyF4  uint8 = 0x3D
	KeyF5  uint8 = 0x3E
	KeyF6  uint8 = 0x3F
	KeyF7  uint8 = 0x40
	KeyF8  uint8 = 0x41
	KeyF9  uint8 = 0x42
	KeyF10 uint8 = 0x43
	KeyF11 uint8 = 0x44
	KeyF12 uint8 = 0x45

	KeyPrintScreen uint8 = 0x46
	KeyScrollLock  uint8 = 0x47
	KeyPause       uint8 = 0x48
	KeyInsert      uint8 = 0x49
	KeyHome        uint8 = 0x4A
	KeyPageUp      uint8 = 0x4B
	KeyDelete      uint8 = 0x4C
	KeyEnd         uint8 = 0x4D
	KeyPageDown    uint8 = 0x4E

	KeyRight uint8 = 0x4F
	KeyLeft  uint8 = 0x50
	KeyDown  uint8 = 0x51
	KeyUp    uint8 = 0x52

	KeyNumLock    uint8 = 0x53
	KeyKpSlash    uint8 = 0x54
	KeyKpAsterisk uint8 = 0x55
	KeyKpMinus    uint8 = 0x56
	KeyKpPlus     uint8 = 0x57
	KeyKpEnter    uint8 = 0x58
	KeyKp1        uint8 = 0x59
	KeyKp2        uint8 = 0x5A
	KeyKp3        uint8 = 0x5B
	KeyKp4        uint8 = 0x5C
	KeyKp5        uint8 = 0x5D
	KeyKp6        uint8 = 0x5E
	KeyKp7        uint8 = 0x5F
	KeyKp8        uint8 = 0x60
	KeyKp9        uint8 = 0x61
	KeyKp0        uint8 = 0x62
	KeyKpDot      uint8 = 0x63

	KeyNonUSBackslash uint8 = 0x64
	KeyApplication    uint8 = 0x65
	KeyPower          uint8 = 0x66
	KeyKpEqual        uint8 = 0x67

	KeyF13 uint8 = 0x68
	KeyF14 uint8 = 0x69
	KeyF15 uint8 = 0x6A
	KeyF16 uint8 = 0x6B
	KeyF17 uint8 = 0x6C
	KeyF18 uint8 = 0x6D
	KeyF19 uint8 = 0x6E
	KeyF20 uint8 = 0x6F
	KeyF21 uint8 = 0x70
	KeyF22 uint8 = 0x71
	KeyF23 uint8 = 0x72
	KeyF24 uint8 = 0x73
)

// keystroke is one ASCII character expressed as a keycode plus whether it
// needs the shift modifier.
type keystroke struct {
	code  uint8
	shift bool
}

// asciiKeys maps typeable ASCII to US-layout keystrokes.
var asciiKeys = map[byte]keystroke{
	'a': {KeyA, false}, 'b': {KeyB, false}, 'c': {KeyC, false}, 'd': {KeyD, false},
	'e': {KeyE, false}, 'f': {KeyF, false}, 'g': {KeyG, false}, 'h': {KeyH, false},
	'i': {KeyI, false}, 'j': {KeyJ, false}, 'k': {KeyK, false}, 'l': {KeyL, false},
	'm': {KeyM, false}, 'n': {KeyN, false}, 'o': {KeyO, false}, 'p': {KeyP, false},
	'q': {KeyQ, false}, 'r': {KeyR, false}, 's': {KeyS, false}, 't': {KeyT, false},
	'u': {KeyU, false}, 'v': {KeyV, false}, 'w': {KeyW, false}, 'x': {KeyX, false},
	'y': {KeyY, false}, 'z': {KeyZ, false},

	'A': {KeyA, true}, 'B': {KeyB, true}, 'C': {KeyC, true}, 'D': {KeyD, true},
	'E': {KeyE, true}, 'F': {KeyF, true}, 'G': {KeyG, true}, 'H': {KeyH, true},
	'I': {KeyI, true}, 'J': {KeyJ, true}, 'K': {KeyK, true}, 'L': {KeyL, true},
	'M': {KeyM, true}, 'N': {KeyN, true}, 'O': {KeyO, true}, 'P': {KeyP, true},
	'Q': {KeyQ, true}, 'R': {KeyR, true}, 'S': {KeyS, true}, 'T': {KeyT, true},
	'U': {KeyU, true}, 'V': {KeyV, true}, 'W': {KeyW, true}, 'X': {KeyX, true},
	'Y': {KeyY, true}, 'Z': {KeyZ, true},

	'1': {Key1, false}, '2': {Key2, false}, '3': {Key3, false}, '4': {Key4, false},
	'5': {Key5, false}, '6': {Key6, false}, '7': {Key7, false}, '8': {Key8, false},
	'9': {Key9, false}, '0': {Key0, false},

	'!': {Key1, true}, '@': {Key2, true}, '#': {Key3, true}, '$': {Key4, true},
	'%': {Key5, true}, '^': {Key6, true}, '&': {Key7, true}, '*': {Key8, true},
	'(': {Key9, true}, ')': {Key0, true},

	'-':  {KeyMinus, false},
	'=':  {KeyEqual, false},
	'[':  {KeyLeftBrace, false},
	']':  {KeyRightBrace, false},
	'\\': {KeyBackslash, false},
	';':  {KeySemicolon, false},
	'\'': {KeyApostrophe, false},
	'`':  {KeyGrave, false},
	',':  {KeyComma, false},
	'.':  {KeyPeriod, false},
	'/':  {KeySlash, false},

	'_': {KeyMinus, true},
	'+': {KeyEqual, true},
	'{': {KeyLeftBrace, true},
	'}': {KeyRightBrace, true},
	'|': {KeyBackslash, true},
	':': {KeySemicolon, true},
	'"': {KeyApostrophe, true},
	'~': {KeyGrave, true},
	'<': {KeyComma, true},
	'>': {KeyPeriod, true},
	'?': {KeySlash, true},

	' ':  {KeySpace, false},
	'\n': {KeyEnter, false},
	'\r': {KeyEnter, false},
	'\t': {KeyTab, false},
}

// KeyForChar resolves an ASCII character to its US-layout keycode and the
// shift requirement. ok is false for characters a boot keyboard cannot
// type directly.
func KeyForChar(c byte) (code uint8, shift bool, ok bool) {
	ks, ok := asciiKeys[c]
	return ks.code, ks.shift, ok
}
