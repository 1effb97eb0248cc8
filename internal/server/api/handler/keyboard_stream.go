package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/keywire/keywire/class/keyboard"
	"github.com/keywire/keywire/internal/server/api"
	"github.com/keywire/keywire/usb"
	"github.com/keywire/keywire/virtualbus"
)

// LedRelay forwards host LED state to the connected stream client as a
// single mask byte. While no client is connected it only tracks state, so
// a reconnecting client receives the current mask immediately.
type LedRelay struct {
	logger *slog.Logger

	mu   sync.Mutex
	mask uint8
	conn net.Conn
}

func NewLedRelay(logger *slog.Logger) *LedRelay {
	return &LedRelay{logger: logger}
}

// Attach binds a stream connection and pushes the current LED mask to it.
func (l *LedRelay) Attach(conn net.Conn) {
	l.mu.Lock()
	l.conn = conn
	mask := l.mask
	l.mu.Unlock()
	l.write(conn, mask)
}

// Detach releases the stream connection if it is still the bound one.
func (l *LedRelay) Detach(conn net.Conn) {
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
}

func (l *LedRelay) set(bit uint8, on bool) {
	l.mu.Lock()
	prev := l.mask
	if on {
		l.mask |= bit
	} else {
		l.mask &^= bit
	}
	mask := l.mask
	conn := l.conn
	l.mu.Unlock()
	if mask != prev && conn != nil {
		l.write(conn, mask)
	}
}

func (l *LedRelay) write(conn net.Conn, mask uint8) {
	if conn == nil {
		return
	}
	if _, err := conn.Write([]byte{mask}); err != nil {
		l.logger.Warn("failed to write LED state", "error", err)
	}
}

func (l *LedRelay) NumLock(on bool)    { l.set(keyboard.LEDNumLock, on) }
func (l *LedRelay) CapsLock(on bool)   { l.set(keyboard.LEDCapsLock, on) }
func (l *LedRelay) ScrollLock(on bool) { l.set(keyboard.LEDScrollLock, on) }
func (l *LedRelay) Compose(on bool)    { l.set(keyboard.LEDCompose, on) }
func (l *LedRelay) Kana(on bool)       { l.set(keyboard.LEDKana, on) }

var _ keyboard.Leds = (*LedRelay)(nil)

// KeyboardStream returns the stream handler for keyboard devices.
//
// Client to server frames are variable length: a 2-byte header of
// [modifier, key count] followed by that many keycodes. More than six
// pressed keys yields the boot-protocol roll-over report. Server to client
// traffic is a single LED mask byte whenever the host changes LED state.
func KeyboardStream() api.StreamHandlerFunc {
	return func(conn net.Conn, att *virtualbus.Attachment, logger *slog.Logger) error {
		defer conn.Close()

		kb, ok := att.Class.(*keyboard.Keyboard)
		if !ok {
			return fmt.Errorf("device is not a keyboard")
		}
		relay, ok := kb.Leds().(*LedRelay)
		if ok {
			relay.Attach(conn)
			defer relay.Detach(conn)
		}

		var header [2]byte
		for {
			if _, err := io.ReadFull(conn, header[:]); err != nil {
				if err == io.EOF {
					logger.Info("client disconnected")
					return nil
				}
				return fmt.Errorf("read header: %w", err)
			}

			keyCount := int(header[1])
			keys := make([]byte, keyCount)
			if keyCount > 0 {
				if _, err := io.ReadFull(conn, keys); err != nil {
					return fmt.Errorf("read keys: %w", err)
				}
			}

			rep := keyboard.FromPressed(header[0], keys...)
			if err := kb.PushReport(&rep); err != nil {
				// The host may not have configured the device yet, or may
				// be polling slower than the client sends. Drop the report.
				if errors.Is(err, usb.ErrNotConfigured) || errors.Is(err, usb.ErrWouldBlock) {
					logger.Debug("dropped input report", "error", err)
					continue
				}
				return fmt.Errorf("push report: %w", err)
			}
		}
	}
}
