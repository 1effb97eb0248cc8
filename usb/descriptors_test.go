package usb

import (
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeStringDescriptorAscii(t *testing.T) {
	desc := EncodeStringDescriptor("ab")
	require.Len(t, desc, 6)
	assert.Equal(t, uint8(6), desc[0])
	assert.Equal(t, uint8(DescriptorTypeString), desc[1])
	assert.Equal(t, []byte{'a', 0, 'b', 0}, desc[2:])
}

func TestEncodeStringDescriptorSurrogatePair(t *testing.T) {
	// U+1F600 needs two UTF-16 code units.
	desc := EncodeStringDescriptor("\U0001F600")
	require.Len(t, desc, 6)
	assert.Equal(t, uint8(6), desc[0])

	units := utf16.Encode([]rune("\U0001F600"))
	require.Len(t, units, 2)
	assert.Equal(t, uint8(units[0]), desc[2])
	assert.Equal(t, uint8(units[0]>>8), desc[3])
	assert.Equal(t, uint8(units[1]), desc[4])
	assert.Equal(t, uint8(units[1]>>8), desc[5])
}

func TestEncodeStringDescriptorClampsLongStrings(t *testing.T) {
	desc := EncodeStringDescriptor(strings.Repeat("x", 300))
	assert.LessOrEqual(t, len(desc), 255)
	assert.Equal(t, uint8(len(desc)), desc[0])
	// 126 code units fit after the two header bytes.
	assert.Len(t, desc, 2+126*2)
}

func TestEncodeStringDescriptorNeverSplitsSurrogates(t *testing.T) {
	// 125 BMP units followed by an astral rune: only the high surrogate
	// would fit, so the pair is dropped entirely.
	desc := EncodeStringDescriptor(strings.Repeat("x", 125) + "\U0001F600")
	require.Equal(t, 2+125*2, len(desc))
	last := uint16(desc[len(desc)-2]) | uint16(desc[len(desc)-1])<<8
	assert.Equal(t, uint16('x'), last)
}