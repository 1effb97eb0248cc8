package keyboard

import "fmt"

// Keystrokes converts an ASCII string into the press/release report
// sequence that types it: one report with the key (and shift when
// needed) followed by an all-released report per character. Characters a
// US-layout boot keyboard cannot type directly yield an error.
func Keystrokes(s string) ([]Report, error) {
	reports := make([]Report, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		code, shift, ok := KeyForChar(s[i])
		if !ok {
			return nil, fmt.Errorf("keyboard: no keycode for character %q", s[i])
		}
		var mod uint8
		if shift {
			mod = ModLeftShift
		}
		reports = append(reports, FromPressed(mod, code), Report{})
	}
	return reports, nil
}

// Tap returns the two reports of a single key press and release.
func Tap(modifier uint8, code uint8) [2]Report {
	return [2]Report{FromPressed(modifier, code), {}}
}
