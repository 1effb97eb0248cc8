package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportPressRelease(t *testing.T) {
	var r Report

	assert.True(t, r.Press(KeyA))
	assert.False(t, r.Press(KeyA), "pressing a held key is a no-op")
	assert.True(t, r.Press(KeyB))
	assert.Equal(t, [6]uint8{KeyA, KeyB, 0, 0, 0, 0}, r.Keycodes)

	r.Release(KeyA)
	assert.Equal(t, [6]uint8{0, KeyB, 0, 0, 0, 0}, r.Keycodes)

	// Releases of keys that are not held do nothing.
	r.Release(KeyZ)
	assert.Equal(t, [6]uint8{0, KeyB, 0, 0, 0, 0}, r.Keycodes)
}

func TestReportPressSlotExhaustion(t *testing.T) {
	var r Report
	for _, k := range []uint8{KeyA, KeyB, KeyC, KeyD, KeyE, KeyF} {
		require.True(t, r.Press(k))
	}
	assert.False(t, r.Press(KeyG), "seventh key has no slot")
}

func TestReportInputBytes(t *testing.T) {
	r := Report{Modifier: ModLeftCtrl | ModRightAlt, LEDs: LEDCapsLock}
	r.Press(KeyEnter)

	got := r.InputBytes()
	assert.Equal(t, [InputSize]byte{0x41, 0x00, KeyEnter, 0, 0, 0, 0, 0}, got)
}

func TestFromPressedRollOver(t *testing.T) {
	r := FromPressed(0, KeyA, KeyB, KeyC, KeyD, KeyE, KeyF, KeyG)
	assert.Equal(t, [6]uint8{
		KeyErrorRollOver, KeyErrorRollOver, KeyErrorRollOver,
		KeyErrorRollOver, KeyErrorRollOver, KeyErrorRollOver,
	}, r.Keycodes)
}

func TestKeyForChar(t *testing.T) {
	code, shift, ok := KeyForChar('a')
	require.True(t, ok)
	assert.Equal(t, KeyA, code)
	assert.False(t, shift)

	code, shift, ok = KeyForChar('A')
	require.True(t, ok)
	assert.Equal(t, KeyA, code)
	assert.True(t, shift)

	code, shift, ok = KeyForChar('?')
	require.True(t, ok)
	assert.Equal(t, KeySlash, code)
	assert.True(t, shift)

	_, _, ok = KeyForChar(0x07)
	assert.False(t, ok)
}

func TestKeystrokes(t *testing.T) {
	reports, err := Keystrokes("Hi")
	require.NoError(t, err)
	require.Len(t, reports, 4)

	assert.Equal(t, ModLeftShift, reports[0].Modifier)
	assert.Equal(t, KeyH, reports[0].Keycodes[0])
	assert.Equal(t, Report{}, reports[1], "release between characters")
	assert.Zero(t, reports[2].Modifier)
	assert.Equal(t, KeyI, reports[2].Keycodes[0])
	assert.Equal(t, Report{}, reports[3])
}

func TestKeystrokesUnknownCharacter(t *testing.T) {
	_, err := Keystrokes("ä")
	assert.Error(t, err)
}
