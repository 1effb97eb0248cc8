package apitypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyboardCreateRequestUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantVid *uint16
		wantPid *uint16
		wantErr bool
	}{
		{name: "empty", json: `{}`},
		{name: "numeric ids", json: `{"idVendor": 4617, "idProduct": 27490}`, wantVid: u16(4617), wantPid: u16(27490)},
		{name: "hex strings", json: `{"idVendor": "0x1209", "idProduct": "0x6b62"}`, wantVid: u16(0x1209), wantPid: u16(0x6b62)},
		{name: "bare hex string", json: `{"idVendor": "12ac"}`, wantVid: u16(0x12ac)},
		{name: "out of range", json: `{"idVendor": 70000}`, wantErr: true},
		{name: "bad type", json: `{"idVendor": true}`, wantErr: true},
		{name: "garbage string", json: `{"idProduct": "zz"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req KeyboardCreateRequest
			err := json.Unmarshal([]byte(tt.json), &req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVid, req.IdVendor)
			assert.Equal(t, tt.wantPid, req.IdProduct)
		})
	}
}

func u16(v uint16) *uint16 { return &v }

func TestApiErrorMessage(t *testing.T) {
	assert.Equal(t, "unknown error", ApiError{}.Error())
	assert.Equal(t, "Conflict: bus exists", ApiError{Title: "Conflict", Detail: "bus exists"}.Error())
	assert.Equal(t, "404 Not Found: bus 3 not found", ApiError{Status: 404, Title: "Not Found", Detail: "bus 3 not found"}.Error())
}
