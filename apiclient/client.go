package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apitypes "github.com/keywire/keywire/apitypes"
)

// Client provides a high-level interface to the keywire API, handling request
// formatting, response parsing, and error handling.
type Client struct{ transport *Transport }

// New constructs a high-level API client using the internal low-level Transport.
// The addr parameter specifies the TCP address (host:port) of the keywire API server.
func New(addr string) *Client { return &Client{transport: NewTransport(addr)} }

// NewWithPassword constructs a client that authenticates with the given password.
func NewWithPassword(addr, password string) *Client {
	return &Client{transport: NewTransportWithPassword(addr, password)}
}

// NewWithConfig constructs a client with custom transport timeouts.
func NewWithConfig(addr string, cfg *Config) *Client {
	return &Client{transport: NewTransportWithConfig(addr, cfg)}
}

// WithTransport constructs a Client using a custom Transport implementation.
// This is primarily useful for testing or when advanced transport configuration is needed.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Ping returns the version and identity of the keywire server.
func (c *Client) Ping() (*apitypes.PingResponse, error) {
	return c.PingCtx(context.Background())
}

// PingCtx is the context-aware version of Ping.
func (c *Client) PingCtx(ctx context.Context) (*apitypes.PingResponse, error) {
	const path = "ping"
	raw, err := c.transport.DoCtx(ctx, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.PingResponse](raw)
}

// BusCreate creates a new virtual USB bus with the specified bus number.
// Returns the created bus ID or an error if the bus number is already allocated.
func (c *Client) BusCreate(busID uint32) (*apitypes.BusCreateResponse, error) {
	return c.BusCreateCtx(context.Background(), busID)
}

func (c *Client) BusCreateCtx(ctx context.Context, busID uint32) (*apitypes.BusCreateResponse, error) {
	const path = "bus/create"
	raw, err := c.transport.DoCtx(ctx, path, fmt.Sprintf("%d", busID), nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.BusCreateResponse](raw)
}

// BusRemove removes an existing virtual USB bus and all keyboards attached to it.
// Returns the removed bus ID or an error if the bus does not exist.
func (c *Client) BusRemove(busID uint32) (*apitypes.BusRemoveResponse, error) {
	return c.BusRemoveCtx(context.Background(), busID)
}

func (c *Client) BusRemoveCtx(ctx context.Context, busID uint32) (*apitypes.BusRemoveResponse, error) {
	const path = "bus/remove"
	raw, err := c.transport.DoCtx(ctx, path, fmt.Sprintf("%d", busID), nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.BusRemoveResponse](raw)
}

// BusList retrieves a list of all active virtual USB bus numbers.
func (c *Client) BusList() (*apitypes.BusListResponse, error) {
	return c.BusListCtx(context.Background())
}

func (c *Client) BusListCtx(ctx context.Context) (*apitypes.BusListResponse, error) {
	const path = "bus/list"
	raw, err := c.transport.DoCtx(ctx, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.BusListResponse](raw)
}

// KeyboardAdd attaches a new virtual keyboard to the given bus. The options
// may override the default vendor/product IDs and serial; pass nil to use
// the server defaults. Returns the assigned bus/device identity or an error
// if the bus does not exist.
func (c *Client) KeyboardAdd(busID uint32, o *apitypes.KeyboardCreateRequest) (*apitypes.Keyboard, error) {
	return c.KeyboardAddCtx(context.Background(), busID, o)
}

func (c *Client) KeyboardAddCtx(ctx context.Context, busID uint32, o *apitypes.KeyboardCreateRequest) (*apitypes.Keyboard, error) {
	pathParams := map[string]string{"id": fmt.Sprintf("%d", busID)}
	const path = "bus/{id}/add"

	var payload any
	if o != nil {
		payloadBytes, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("marshal keyboard create request: %w", err)
		}
		payload = string(payloadBytes)
	}
	raw, err := c.transport.DoCtx(ctx, path, payload, pathParams)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.Keyboard](raw)
}

// KeyboardRemove detaches a keyboard from the specified bus by its device ID.
// The devID parameter is the device number (e.g., "1") on the given bus.
// Active USB-IP connections to the device will be closed.
// Returns the removed keyboard's bus and device ID or an error if not found.
func (c *Client) KeyboardRemove(busID uint32, devID string) (*apitypes.DeviceRemoveResponse, error) {
	return c.KeyboardRemoveCtx(context.Background(), busID, devID)
}

func (c *Client) KeyboardRemoveCtx(ctx context.Context, busID uint32, devID string) (*apitypes.DeviceRemoveResponse, error) {
	pathParams := map[string]string{"id": fmt.Sprintf("%d", busID)}
	const path = "bus/{id}/remove"
	raw, err := c.transport.DoCtx(ctx, path, devID, pathParams)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.DeviceRemoveResponse](raw)
}

// KeyboardsList retrieves a list of all keyboards attached to the specified bus.
// Each entry includes bus ID, device ID, VID and PID.
func (c *Client) KeyboardsList(busID uint32) (*apitypes.KeyboardsListResponse, error) {
	return c.KeyboardsListCtx(context.Background(), busID)
}

func (c *Client) KeyboardsListCtx(ctx context.Context, busID uint32) (*apitypes.KeyboardsListResponse, error) {
	pathParams := map[string]string{"id": fmt.Sprintf("%d", busID)}
	const path = "bus/{id}/list"
	raw, err := c.transport.DoCtx(ctx, path, nil, pathParams)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.KeyboardsListResponse](raw)
}

func parse[T any](data string) (*T, error) {
	if data == "" {
		return nil, errors.New("empty response")
	}
	var problem apitypes.ApiError
	if err := json.Unmarshal([]byte(data), &problem); err == nil && (problem.Status != 0 || problem.Title != "") {
		return nil, &problem
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
