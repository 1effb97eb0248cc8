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

func TestBusRemove(t *testing.T) {
	tests := []struct {
		name             string
		setup            func(t *testing.T, s *usb.Server)
		payload          any
		expectedResponse string
	}{
		{
			name: "valid remove",
			setup: func(t *testing.T, s *usb.Server) {
				b, err := virtualbus.NewWithBusId(62001)
				require.NoError(t, err)
				require.NoError(t, s.AddBus(b))
			},
			payload:          "62001",
			expectedResponse: `{"busId":62001}`,
		},
		{
			name:             "missing bus",
			payload:          "62002",
			expectedResponse: `{"status":404,"title":"Not Found","detail":"bus 62002 not found"}`,
		},
		{
			name:             "missing payload",
			payload:          nil,
			expectedResponse: `{"status":400,"title":"Bad Request","detail":"missing busId"}`,
		},
		{
			name:             "invalid bus number",
			payload:          "nope",
			expectedResponse: `{"status":400,"title":"Bad Request","detail":"invalid busId: strconv.ParseUint: parsing \"nope\": invalid syntax"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, srv, done := handlerTest.StartAPIServer(t, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
				r.Register("bus/remove", handler.BusRemove(s))
			})
			defer done()
			if tt.setup != nil {
				tt.setup(t, srv)
			}

			line, err := apiclient.NewTransport(addr).Do("bus/remove", tt.payload, nil)
			assert.NoError(t, err)
			assert.JSONEq(t, tt.expectedResponse, line)
		})
	}
}

func TestBusRemoveFreesBusNumber(t *testing.T) {
	addr, srv, done := handlerTest.StartAPIServer(t, func(r *api.Router, s *usb.Server, apiSrv *api.Server) {
		r.Register("bus/remove", handler.BusRemove(s))
	})
	defer done()

	b, err := virtualbus.NewWithBusId(62003)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(b))

	_, err = apiclient.New(addr).BusRemove(62003)
	require.NoError(t, err)
	assert.Empty(t, srv.ListBuses())

	// The bus number is free for reuse after removal.
	b2, err := virtualbus.NewWithBusId(62003)
	require.NoError(t, err)
	require.NoError(t, b2.Close())
}
