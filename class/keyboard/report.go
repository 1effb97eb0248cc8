package keyboard

// InputSize is the boot keyboard input report length: modifier byte,
// reserved byte, six keycode slots.
const InputSize = 1 + 1 + 6

// Report is one boot keyboard input report. The zero value means "no keys
// pressed".
//
// Keycodes is an unordered set of currently pressed keys; a slot holding
// KeyNone is free. A report whose six slots all carry KeyErrorRollOver
// tells the host that more keys are down than the boot protocol can
// express.
type Report struct {
	Modifier uint8
	Reserved uint8
	LEDs     uint8
	Keycodes [6]uint8
}

// InputBytes serializes the report in boot protocol order. The LED field
// travels the other way (host to device) and is not part of the input
// report.
func (r *Report) InputBytes() [InputSize]byte {
	return [InputSize]byte{
		r.Modifier,
		r.Reserved,
		r.Keycodes[0],
		r.Keycodes[1],
		r.Keycodes[2],
		r.Keycodes[3],
		r.Keycodes[4],
		r.Keycodes[5],
	}
}

// Press records a keycode in a free slot. It reports false when the key
// is already held or all six slots are taken.
func (r *Report) Press(code uint8) bool {
	if code == KeyNone {
		return false
	}
	free := -1
	for i, k := range r.Keycodes {
		if k == code {
			return false
		}
		if k == KeyNone && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return false
	}
	r.Keycodes[free] = code
	return true
}

// Release clears a keycode from whichever slot holds it.
func (r *Report) Release(code uint8) {
	for i, k := range r.Keycodes {
		if k == code {
			r.Keycodes[i] = KeyNone
		}
	}
}

// Clear releases all keys and modifiers.
func (r *Report) Clear() {
	r.Modifier = 0
	r.Keycodes = [6]uint8{}
}

// RollOver fills all six slots with KeyErrorRollOver, the boot protocol's
// "too many keys" marker.
func (r *Report) RollOver() {
	for i := range r.Keycodes {
		r.Keycodes[i] = KeyErrorRollOver
	}
}

// FromPressed builds a report from a modifier byte and the list of
// currently pressed keycodes. More than six keys yields a roll-over
// report, as a real boot keyboard would send.
func FromPressed(modifier uint8, keys ...uint8) Report {
	r := Report{Modifier: modifier}
	if len(keys) > len(r.Keycodes) {
		r.RollOver()
		return r
	}
	copy(r.Keycodes[:], keys)
	return r
}
