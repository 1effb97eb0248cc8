//go:build !linux

package api

import "log/slog"

// CheckAutoAttachPrerequisites reports whether the local usbip client can be
// used. Non-Linux platforms only need the usbip binary; the platform client
// manages its own attach state.
func CheckAutoAttachPrerequisites(logger *slog.Logger) bool {
	logger.Debug("auto-attach prerequisite check skipped on this platform")
	return true
}
