package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywire/keywire/apiclient"
	"github.com/keywire/keywire/apitypes"
	"github.com/keywire/keywire/class/keyboard"
	"github.com/keywire/keywire/internal/server/api"
	"github.com/keywire/keywire/internal/server/api/handler"
	"github.com/keywire/keywire/internal/server/usb"
	th "github.com/keywire/keywire/internal/testing"
	pusb "github.com/keywire/keywire/usb"
	"github.com/keywire/keywire/virtualbus"
)

func addKeyboard(t *testing.T, bus *virtualbus.VirtualBus) *virtualbus.Attachment {
	t.Helper()
	kbBus := pusb.NewBus(pusb.DeviceConfig{VendorID: 0x1209, ProductID: 0x6B62})
	kb := keyboard.New(kbBus, keyboard.NopLeds{})
	dev := pusb.NewDevice(kbBus, kb)
	att, err := bus.Add(dev, kb)
	require.NoError(t, err)
	return att
}

func TestAPIServer_StreamHandlerError_ClosesConn(t *testing.T) {
	sentinel := fmt.Errorf("boom")
	addr, srv, done := th.StartAPIServer(t, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
		r.RegisterStream("bus/{busId}/{deviceid}", func(conn net.Conn, att *virtualbus.Attachment, logger *slog.Logger) error {
			return sentinel
		})
	})
	defer done()

	bus, err := virtualbus.NewWithBusId(70002)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(bus))
	att := addKeyboard(t, bus)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = fmt.Fprintf(c, "bus/%d/%d\x00", bus.BusID(), att.Meta.DevId)
	require.NoError(t, err)

	buf := make([]byte, 1)
	_ = c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, readErr := c.Read(buf)
	require.Error(t, readErr)
	_ = c.Close()
}

func TestAPIServer_UnknownPath(t *testing.T) {
	addr, _, done := th.StartAPIServer(t, nil)
	defer done()

	resp := th.ExecCmd(t, addr, "no/such/path")
	var problem apitypes.ApiError
	require.NoError(t, json.Unmarshal([]byte(resp), &problem))
	assert.Equal(t, 404, problem.Status)
}

func TestAPIServer_AuthRequired(t *testing.T) {
	cfg := api.ServerConfig{Password: "hunter2", DeviceHandlerConnectTimeout: time.Minute}
	addr, _, done := th.StartAPIServerWithConfig(t, cfg, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
		r.Register("ping", handler.Ping("test"))
	})
	defer done()

	// Plain request without the handshake is rejected.
	resp := th.ExecCmd(t, addr, "ping")
	var problem apitypes.ApiError
	require.NoError(t, json.Unmarshal([]byte(resp), &problem))
	assert.Equal(t, 401, problem.Status)

	// Wrong password fails the handshake.
	_, err := apiclient.NewWithPassword(addr, "wrongpass").Ping()
	require.Error(t, err)

	// Correct password completes the handshake and serves the request.
	pong, err := apiclient.NewWithPassword(addr, "hunter2").Ping()
	require.NoError(t, err)
	assert.Equal(t, "keywire", pong.Server)
	assert.Equal(t, "test", pong.Version)
}

func TestAPIServer_DeviceRemovedAfterConnectTimeout(t *testing.T) {
	cfg := api.ServerConfig{DeviceHandlerConnectTimeout: 50 * time.Millisecond}
	addr, srv, done := th.StartAPIServerWithConfig(t, cfg, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
		r.Register("bus/{id}/add", handler.BusKeyboardAdd(s, apiSrv))
		r.RegisterStream("bus/{busId}/{deviceid}", handler.KeyboardStream())
	})
	defer done()

	bus, err := virtualbus.NewWithBusId(70003)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(bus))

	resp := th.ExecCmd(t, addr, fmt.Sprintf("bus/%d/add", bus.BusID()))
	var kb apitypes.Keyboard
	require.NoError(t, json.Unmarshal([]byte(resp), &kb))

	// No stream client ever connects, so the keyboard is reaped.
	assert.Eventually(t, func() bool {
		return len(bus.Devices()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAPIServer_StreamConnectStopsCleanup(t *testing.T) {
	cfg := api.ServerConfig{DeviceHandlerConnectTimeout: 100 * time.Millisecond}
	addr, srv, done := th.StartAPIServerWithConfig(t, cfg, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
		r.Register("bus/{id}/add", handler.BusKeyboardAdd(s, apiSrv))
		r.RegisterStream("bus/{busId}/{deviceid}", handler.KeyboardStream())
	})
	defer done()

	bus, err := virtualbus.NewWithBusId(70004)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(bus))

	resp := th.ExecCmd(t, addr, fmt.Sprintf("bus/%d/add", bus.BusID()))
	var kb apitypes.Keyboard
	require.NoError(t, json.Unmarshal([]byte(resp), &kb))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	stream, err := apiclient.New(addr).OpenStream(ctx, bus.BusID(), kb.DevId)
	require.NoError(t, err)

	// An attached stream keeps the keyboard alive past the connect timeout.
	time.Sleep(300 * time.Millisecond)
	require.Len(t, bus.Devices(), 1)

	// Disconnecting re-arms the timer; the keyboard is reaped afterwards.
	require.NoError(t, stream.Close())
	assert.Eventually(t, func() bool {
		return len(bus.Devices()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
