package proxy

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywire/keywire/class/keyboard"
	"github.com/keywire/keywire/internal/log"
	"github.com/keywire/keywire/internal/server/usb"
	pusb "github.com/keywire/keywire/usb"
	"github.com/keywire/keywire/usbip"
	"github.com/keywire/keywire/virtualbus"
)

func startUpstream(t *testing.T, busID uint32) (addr string, srv *usb.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv = usb.New(usb.ServerConfig{Addr: "127.0.0.1:0", ConnectionTimeout: time.Second}, logger, log.NewRaw(nil))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		t.Fatalf("usb server failed to start: %v", err)
	case <-srv.Ready():
	}
	t.Cleanup(func() { _ = srv.Close() })

	bus, err := virtualbus.NewWithBusId(busID)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(bus))

	kbBus := pusb.NewBus(pusb.DeviceConfig{VendorID: 0x1209, ProductID: 0x6B62})
	kb := keyboard.New(kbBus, keyboard.NopLeds{})
	dev := pusb.NewDevice(kbBus, kb)
	_, err = bus.Add(dev, kb)
	require.NoError(t, err)

	return fmt.Sprintf("127.0.0.1:%d", srv.GetListenPort()), srv
}

func TestProxyPassesDevlistThrough(t *testing.T) {
	upstream, _ := startUpstream(t, 71001)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(ServerConfig{
		ListenAddr:        "127.0.0.1:0",
		UpstreamAddr:      upstream,
		ConnectionTimeout: time.Second,
	}, logger, log.NewRaw(nil))

	proxyErr := make(chan error, 1)
	go func() { proxyErr <- p.ListenAndServe() }()
	t.Cleanup(func() { _ = p.Close() })

	require.Eventually(t, func() bool { return p.Addr() != nil }, time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	req := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}
	require.NoError(t, req.Write(conn))

	rep, err := usbip.ReadMgmtHeader(conn)
	require.NoError(t, err)
	assert.Equal(t, uint16(usbip.OpRepDevlist), rep.Command)
	assert.Equal(t, uint32(0), rep.Status)

	var nDevices uint32
	require.NoError(t, binary.Read(conn, binary.BigEndian, &nDevices))
	require.Equal(t, uint32(1), nDevices)

	dev, err := usbip.ReadExportedDevice(conn)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1209), dev.IDVendor)
	assert.Equal(t, uint16(0x6B62), dev.IDProduct)

	for i := 0; i < int(dev.BNumInterfaces); i++ {
		iface, err := usbip.ReadInterfaceDesc(conn)
		require.NoError(t, err)
		assert.Equal(t, uint8(3), iface.Class)
	}
}

func TestProxyUpstreamUnreachable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(ServerConfig{
		ListenAddr:        "127.0.0.1:0",
		UpstreamAddr:      "127.0.0.1:1", // nothing listens here
		ConnectionTimeout: 200 * time.Millisecond,
	}, logger, log.NewRaw(nil))

	go func() { _ = p.ListenAndServe() }()
	t.Cleanup(func() { _ = p.Close() })

	require.Eventually(t, func() bool { return p.Addr() != nil }, time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	// The proxy closes the client connection when it cannot reach upstream.
	buf := make([]byte, 1)
	_, readErr := conn.Read(buf)
	require.Error(t, readErr)
}
