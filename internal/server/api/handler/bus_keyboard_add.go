package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/keywire/keywire/apitypes"
	"github.com/keywire/keywire/class/keyboard"
	"github.com/keywire/keywire/internal/server/api"
	apierror "github.com/keywire/keywire/internal/server/api/error"
	usbs "github.com/keywire/keywire/internal/server/usb"
	pusb "github.com/keywire/keywire/usb"
)

// Default USB identity for created keyboards. The VID/PID pair is from the
// pid.codes open-source allocation space.
const (
	defaultVendorID  uint16 = 0x1209
	defaultProductID uint16 = 0x6B62
	defaultSerial           = "0001"
)

// BusKeyboardAdd returns a handler that creates a boot keyboard on a bus.
func BusKeyboardAdd(s *usbs.Server, apiSrv *api.Server) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		idStr, ok := req.Params["id"]
		if !ok {
			return apierror.ErrBadRequest("missing id parameter")
		}
		busID, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return apierror.ErrBadRequest(fmt.Sprintf("invalid busId: %v", err))
		}
		b := s.GetBus(uint32(busID))
		if b == nil {
			return apierror.ErrNotFound(fmt.Sprintf("bus %d not found", busID))
		}

		var createReq apitypes.KeyboardCreateRequest
		if req.Payload != "" {
			if err := json.Unmarshal([]byte(req.Payload), &createReq); err != nil {
				return apierror.ErrBadRequest(fmt.Sprintf("invalid JSON payload: %v", err))
			}
		}

		cfg := pusb.DeviceConfig{
			VendorID:     defaultVendorID,
			ProductID:    defaultProductID,
			Manufacturer: "keywire",
			Product:      "keywire Boot Keyboard",
			SerialNumber: defaultSerial,
		}
		if createReq.IdVendor != nil {
			cfg.VendorID = *createReq.IdVendor
		}
		if createReq.IdProduct != nil {
			cfg.ProductID = *createReq.IdProduct
		}
		if createReq.Serial != nil {
			cfg.SerialNumber = *createReq.Serial
		}

		usbBus := pusb.NewBus(cfg)
		relay := NewLedRelay(logger)
		kb := keyboard.New(usbBus, relay)
		dev := pusb.NewDevice(usbBus, kb)

		att, err := b.Add(dev, kb)
		if err != nil {
			return apierror.ErrInternal(fmt.Sprintf("failed to add device to bus: %v", err))
		}

		// The device is reaped if no stream connects in time.
		connTimer := att.ConnTimer()
		connTimer.Reset(apiSrv.Config().DeviceHandlerConnectTimeout)
		deviceIDStr := fmt.Sprintf("%d", att.Meta.DevId)
		go func() {
			select {
			case <-att.Context().Done():
				connTimer.Stop()
			case <-connTimer.C:
				if err := s.RemoveDeviceByID(uint32(busID), deviceIDStr); err != nil {
					logger.Error("timeout: failed to remove device", "busID", busID, "deviceID", deviceIDStr, "error", err)
				} else {
					logger.Info("timeout: removed device (no connection)", "busID", busID, "deviceID", deviceIDStr)
				}
			}
		}()

		if apiSrv.Config().AutoAttachLocalClient {
			if err := api.AttachLocalhostClient(req.Ctx, &att.Meta, s.GetListenPort(), logger); err != nil {
				logger.Error("failed to auto-attach localhost client", "error", err)
				return apierror.ErrConflict(fmt.Sprintf("Failed to auto-attach device: %v", err))
			}
		}

		payload, err := json.Marshal(apitypes.Keyboard{
			BusID: uint32(busID),
			DevId: deviceIDStr,
			Vid:   fmt.Sprintf("0x%04x", cfg.VendorID),
			Pid:   fmt.Sprintf("0x%04x", cfg.ProductID),
		})
		if err != nil {
			return apierror.ErrInternal(fmt.Sprintf("failed to marshal response: %v", err))
		}

		res.JSON = string(payload)
		return nil
	}
}
