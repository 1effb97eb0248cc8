// Package handler contains the API command handlers and the keyboard
// stream handler.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/keywire/keywire/apitypes"
	"github.com/keywire/keywire/internal/server/api"
)

// Ping returns a handler that reports server identity and version.
func Ping(version string) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		out, err := json.Marshal(apitypes.PingResponse{Server: "keywire", Version: version})
		if err != nil {
			return api.ErrInternal(fmt.Sprintf("failed to marshal response: %v", err))
		}
		res.JSON = string(out)
		return nil
	}
}
