package handler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywire/keywire/apiclient"
	"github.com/keywire/keywire/internal/server/api"
	"github.com/keywire/keywire/internal/server/api/handler"
	"github.com/keywire/keywire/internal/server/usb"
	handlerTest "github.com/keywire/keywire/internal/testing"
	"github.com/keywire/keywire/virtualbus"
)

func TestBusKeyboardRemove(t *testing.T) {
	tests := []struct {
		name             string
		setup            func(t *testing.T, s *usb.Server)
		busID            string
		payload          any
		expectedResponse string
	}{
		{
			name: "valid remove",
			setup: func(t *testing.T, s *usb.Server) {
				b, err := virtualbus.NewWithBusId(64001)
				require.NoError(t, err)
				require.NoError(t, s.AddBus(b))
				attachKeyboard(t, b, 0x1209, 0x6B62)
			},
			busID:            "64001",
			payload:          "1",
			expectedResponse: `{"busId":64001,"devId":"1"}`,
		},
		{
			name: "unknown device",
			setup: func(t *testing.T, s *usb.Server) {
				b, err := virtualbus.NewWithBusId(64002)
				require.NoError(t, err)
				require.NoError(t, s.AddBus(b))
			},
			busID:            "64002",
			payload:          "7",
			expectedResponse: `{"status":404,"title":"Not Found","detail":"device 7 not found on bus 64002"}`,
		},
		{
			name:             "unknown bus",
			busID:            "64003",
			payload:          "1",
			expectedResponse: `{"status":404,"title":"Not Found","detail":"bus 64003 not found"}`,
		},
		{
			name: "missing device number",
			setup: func(t *testing.T, s *usb.Server) {
				b, err := virtualbus.NewWithBusId(64004)
				require.NoError(t, err)
				require.NoError(t, s.AddBus(b))
			},
			busID:            "64004",
			payload:          nil,
			expectedResponse: `{"status":400,"title":"Bad Request","detail":"missing device number"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, srv, done := handlerTest.StartAPIServer(t, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
				r.Register("bus/{id}/remove", handler.BusKeyboardRemove(s))
			})
			defer done()
			if tt.setup != nil {
				tt.setup(t, srv)
			}

			line, err := apiclient.NewTransport(addr).Do("bus/{id}/remove", tt.payload, map[string]string{"id": tt.busID})
			assert.NoError(t, err)
			assert.JSONEq(t, tt.expectedResponse, line)
		})
	}
}

func TestBusKeyboardRemoveCancelsAttachment(t *testing.T) {
	addr, srv, done := handlerTest.StartAPIServer(t, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
		r.Register("bus/{id}/remove", handler.BusKeyboardRemove(s))
	})
	defer done()

	b, err := virtualbus.NewWithBusId(64005)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(b))
	att := attachKeyboard(t, b, 0x1209, 0x6B62)

	_, err = apiclient.New(addr).KeyboardRemove(64005, "1")
	require.NoError(t, err)

	select {
	case <-att.Context().Done():
	default:
		t.Fatal("attachment context should be canceled after removal")
	}
	assert.Empty(t, b.Devices())
}
