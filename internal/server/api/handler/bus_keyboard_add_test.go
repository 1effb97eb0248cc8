package handler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywire/keywire/apiclient"
	"github.com/keywire/keywire/apitypes"
	"github.com/keywire/keywire/internal/server/api"
	"github.com/keywire/keywire/internal/server/api/handler"
	"github.com/keywire/keywire/internal/server/usb"
	handlerTest "github.com/keywire/keywire/internal/testing"
	"github.com/keywire/keywire/virtualbus"
)

func u16(v uint16) *uint16 { return &v }

func TestBusKeyboardAdd(t *testing.T) {
	tests := []struct {
		name       string
		busID      uint32
		payload    *apitypes.KeyboardCreateRequest
		wantVid    string
		wantPid    string
		wantSerial string
	}{
		{
			name:    "defaults",
			busID:   65001,
			payload: nil,
			wantVid: "0x1209",
			wantPid: "0x6b62",
		},
		{
			name:    "custom identity",
			busID:   65002,
			payload: &apitypes.KeyboardCreateRequest{IdVendor: u16(0x046D), IdProduct: u16(0xC31C)},
			wantVid: "0x046d",
			wantPid: "0xc31c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, srv, done := handlerTest.StartAPIServer(t, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
				r.Register("bus/{id}/add", handler.BusKeyboardAdd(s, apiSrv))
			})
			defer done()

			b, err := virtualbus.NewWithBusId(tt.busID)
			require.NoError(t, err)
			require.NoError(t, srv.AddBus(b))

			resp, err := apiclient.New(addr).KeyboardAdd(tt.busID, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.busID, resp.BusID)
			assert.Equal(t, "1", resp.DevId)
			assert.Equal(t, tt.wantVid, resp.Vid)
			assert.Equal(t, tt.wantPid, resp.Pid)

			require.Len(t, b.Devices(), 1)
		})
	}
}

func TestBusKeyboardAddErrors(t *testing.T) {
	tests := []struct {
		name         string
		busID        string
		createBus    bool
		payload      any
		wantStatus   string
		wantContains string
	}{
		{
			name:         "unknown bus",
			busID:        "65003",
			payload:      nil,
			wantStatus:   `"status":404`,
			wantContains: "bus 65003 not found",
		},
		{
			name:         "invalid json payload",
			busID:        "65004",
			createBus:    true,
			payload:      "{not json",
			wantStatus:   `"status":400`,
			wantContains: "invalid JSON payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, srv, done := handlerTest.StartAPIServer(t, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
				r.Register("bus/{id}/add", handler.BusKeyboardAdd(s, apiSrv))
			})
			defer done()

			if tt.createBus {
				b, err := virtualbus.NewWithBusId(65004)
				require.NoError(t, err)
				require.NoError(t, srv.AddBus(b))
			}

			line, err := apiclient.NewTransport(addr).Do("bus/{id}/add", tt.payload, map[string]string{"id": tt.busID})
			assert.NoError(t, err)
			assert.Contains(t, line, tt.wantStatus)
			assert.Contains(t, line, tt.wantContains)
		})
	}
}

func TestBusKeyboardAddHexStringIdentity(t *testing.T) {
	addr, srv, done := handlerTest.StartAPIServer(t, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
		r.Register("bus/{id}/add", handler.BusKeyboardAdd(s, apiSrv))
	})
	defer done()

	b, err := virtualbus.NewWithBusId(65005)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(b))

	// Hex string VID/PID in the raw JSON payload, as scripting clients send it.
	line, err := apiclient.NewTransport(addr).Do(
		"bus/{id}/add",
		`{"idVendor":"0x16c0","idProduct":"0x27db","serial":"kw-42"}`,
		map[string]string{"id": "65005"},
	)
	require.NoError(t, err)
	assert.Contains(t, line, `"vid":"0x16c0"`)
	assert.Contains(t, line, `"pid":"0x27db"`)

	require.Len(t, b.Devices(), 1)
	info := b.Devices()[0].Dev.Info()
	assert.Equal(t, uint16(0x16C0), info.IDVendor)
	assert.Equal(t, uint16(0x27DB), info.IDProduct)
}

func TestBusKeyboardAddReapedWithoutStream(t *testing.T) {
	cfg := api.ServerConfig{DeviceHandlerConnectTimeout: 50 * time.Millisecond}
	addr, srv, done := handlerTest.StartAPIServerWithConfig(t, cfg, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
		r.Register("bus/{id}/add", handler.BusKeyboardAdd(s, apiSrv))
	})
	defer done()

	b, err := virtualbus.NewWithBusId(65006)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(b))

	_, err = apiclient.New(addr).KeyboardAdd(65006, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(b.Devices()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
