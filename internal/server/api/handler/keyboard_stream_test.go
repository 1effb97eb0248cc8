package handler_test

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywire/keywire/class/keyboard"
	"github.com/keywire/keywire/internal/server/api/handler"
)

func readMask(t *testing.T, conn net.Conn) uint8 {
	t.Helper()
	var b [1]byte
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := io.ReadFull(conn, b[:])
	require.NoError(t, err)
	return b[0]
}

func TestLedRelay(t *testing.T) {
	relay := handler.NewLedRelay(slog.New(slog.NewTextHandler(io.Discard, nil)))

	// State changes without a client are just tracked.
	relay.NumLock(true)
	relay.CapsLock(true)

	client, server := net.Pipe()
	defer client.Close()

	go relay.Attach(server)
	mask := readMask(t, client)
	assert.Equal(t, keyboard.LEDNumLock|keyboard.LEDCapsLock, mask)

	go relay.CapsLock(false)
	mask = readMask(t, client)
	assert.Equal(t, keyboard.LEDNumLock, mask)

	// Re-setting the same state writes nothing.
	relay.NumLock(true)

	go relay.Kana(true)
	mask = readMask(t, client)
	assert.Equal(t, keyboard.LEDNumLock|keyboard.LEDKana, mask)

	// After detach, changes no longer reach the old conn.
	relay.Detach(server)
	relay.ScrollLock(true)
}
