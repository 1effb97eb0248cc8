package usb

import "errors"

// Sentinel errors shared by the bus, endpoint, and class layers. Callers
// match them with errors.Is after unwrapping whatever context the higher
// layers added.
var (
	// ErrWouldBlock is returned when an endpoint queue cannot accept or
	// produce a packet right now. It is transient, not fatal.
	ErrWouldBlock = errors.New("usb: operation would block")

	// ErrBufferOverflow is returned when a payload does not fit the
	// endpoint's max packet size and was (or would be) truncated.
	ErrBufferOverflow = errors.New("usb: buffer overflow")

	// ErrNotConfigured is returned when data transfer is attempted before
	// the host selected a configuration.
	ErrNotConfigured = errors.New("usb: device not configured")

	// ErrInvalidEndpoint is returned for transfers addressed to an
	// endpoint the device never allocated.
	ErrInvalidEndpoint = errors.New("usb: invalid endpoint")

	// ErrInvalidSetup is returned when a SETUP stage carries fewer than
	// eight bytes.
	ErrInvalidSetup = errors.New("usb: malformed setup packet")

	// ErrTransferComplete is returned when Accept or Reject is called on
	// a control transfer that was already completed.
	ErrTransferComplete = errors.New("usb: control transfer already completed")
)
