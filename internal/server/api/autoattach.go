package api

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/keywire/keywire/usbip"
)

// AttachLocalhostClient runs the local usbip client to attach a freshly
// exported device to this machine's vhci controller.
func AttachLocalhostClient(ctx context.Context, meta *usbip.ExportMeta, usbipServerPort uint16, logger *slog.Logger) error {
	logger.Info("Auto-attaching localhost client", "busID", meta.BusId, "deviceID", meta.DevId)

	cmd := exec.CommandContext(
		ctx,
		"usbip",
		"--tcp-port",
		strconv.FormatUint(uint64(usbipServerPort), 10),
		"attach",
		"-r", "localhost",
		"-b", fmt.Sprintf("%d-%d", meta.BusId, meta.DevId),
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("Failed to attach device",
			"error", err,
			"port", usbipServerPort,
			"output", string(output))
		return err
	}
	logger.Debug("usbip attach output", "output", string(output))

	return nil
}
