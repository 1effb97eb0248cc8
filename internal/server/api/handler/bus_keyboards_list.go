package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/keywire/keywire/apitypes"
	"github.com/keywire/keywire/internal/server/api"
	apierror "github.com/keywire/keywire/internal/server/api/error"
	"github.com/keywire/keywire/internal/server/usb"
)

// BusKeyboardsList returns a handler that lists the keyboards on a bus.
func BusKeyboardsList(s *usb.Server) api.HandlerFunc {
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
		atts := b.Devices()
		out := make([]apitypes.Keyboard, 0, len(atts))
		for _, att := range atts {
			info := att.Dev.Info()
			out = append(out, apitypes.Keyboard{
				BusID: att.Meta.BusId,
				DevId: fmt.Sprintf("%d", att.Meta.DevId),
				Vid:   fmt.Sprintf("0x%04x", info.IDVendor),
				Pid:   fmt.Sprintf("0x%04x", info.IDProduct),
			})
		}
		payload, err := json.Marshal(apitypes.KeyboardsListResponse{Keyboards: out})
		if err != nil {
			return apierror.ErrInternal(fmt.Sprintf("failed to marshal response: %v", err))
		}
		res.JSON = string(payload)
		return nil
	}
}
