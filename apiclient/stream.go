package apiclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	apitypes "github.com/keywire/keywire/apitypes"
)

// KeyboardStream is a bidirectional connection to a keyboard's input stream.
// Key frames flow client -> server, LED state updates flow server -> client.
type KeyboardStream struct {
	conn   net.Conn
	BusID  uint32
	DevID  string
	closed bool

	readCancel context.CancelFunc
	readMu     sync.Mutex
	writeMu    sync.Mutex
}

// OpenStream connects to an existing keyboard's stream channel.
// The keyboard must already exist on the bus (use KeyboardAdd first).
func (c *Client) OpenStream(ctx context.Context, busID uint32, devID string) (*KeyboardStream, error) {
	if c.transport.mock != nil {
		return nil, fmt.Errorf("stream connections not supported with mock transport")
	}

	conn, err := c.transport.dial(ctx)
	if err != nil {
		return nil, err
	}

	streamPath := fmt.Sprintf("bus/%d/%s\x00", busID, devID)
	if _, err := conn.Write([]byte(streamPath)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write stream path: %w", err)
	}

	ks := &KeyboardStream{
		conn:  conn,
		BusID: busID,
		DevID: devID,
	}
	return ks, nil
}

// AddKeyboardAndConnect creates a keyboard on the specified bus and immediately connects
// to its stream. This is a convenience wrapper combining KeyboardAdd + OpenStream.
func (c *Client) AddKeyboardAndConnect(ctx context.Context, busID uint32, o *apitypes.KeyboardCreateRequest) (*KeyboardStream, *apitypes.Keyboard, error) {
	resp, err := c.KeyboardAddCtx(ctx, busID, o)
	if err != nil {
		return nil, nil, err
	}

	stream, err := c.OpenStream(ctx, busID, resp.DevId)
	if err != nil {
		return nil, resp, err
	}

	return stream, resp, nil
}

// SendKeys transmits the currently held keys as a single frame. The modifier
// byte carries the modifier bitmask; keys are HID usage codes of every key
// held down right now. Sending more than six keys makes the device report
// roll-over to the host. An empty call releases all keys.
func (s *KeyboardStream) SendKeys(modifier uint8, keys ...uint8) error {
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if len(keys) > 255 {
		return fmt.Errorf("too many keys: %d", len(keys))
	}
	frame := make([]byte, 0, 2+len(keys))
	frame = append(frame, modifier, uint8(len(keys)))
	frame = append(frame, keys...)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(frame)
	return err
}

// ReleaseAll sends an empty frame releasing every key and modifier.
func (s *KeyboardStream) ReleaseAll() error {
	return s.SendKeys(0)
}

// ReadLeds blocks until the server pushes the next LED state change and
// returns the raw LED bitmask. The server sends the current mask once on
// connect, so the first read always yields the initial state.
// For event-driven reading, use StartReading() instead.
func (s *KeyboardStream) ReadLeds() (uint8, error) {
	if s.closed {
		return 0, fmt.Errorf("stream closed")
	}
	var b [1]byte
	if _, err := io.ReadFull(s.conn, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// StartReading begins asynchronously reading LED state updates in a background
// goroutine, delivering each new bitmask on the returned channel. The error
// channel receives exactly one error (io.EOF on orderly close) when reading stops.
func (s *KeyboardStream) StartReading(ctx context.Context, chSize int) (<-chan uint8, <-chan error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if s.readCancel != nil {
		panic("StartReading called twice on the same stream")
	}

	ledCh := make(chan uint8, chSize)
	errCh := make(chan error, 1)

	readCtx, cancel := context.WithCancel(ctx)
	s.readCancel = cancel

	go func() {
		defer close(ledCh)
		defer close(errCh)
		defer cancel()

		for {
			select {
			case <-readCtx.Done():
				errCh <- readCtx.Err()
				return
			default:
			}

			if s.closed {
				errCh <- io.EOF
				return
			}

			mask, err := s.ReadLeds()
			if err != nil {
				errCh <- err
				return
			}

			select {
			case ledCh <- mask:
			case <-readCtx.Done():
				errCh <- readCtx.Err()
				return
			}
		}
	}()

	return ledCh, errCh
}

// SetReadDeadline sets the read deadline for the underlying connection.
func (s *KeyboardStream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline for the underlying connection.
func (s *KeyboardStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// Close closes the stream connection and stops any background reading.
func (s *KeyboardStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.readMu.Lock()
	if s.readCancel != nil {
		s.readCancel()
	}
	s.readMu.Unlock()

	return s.conn.Close()
}
