package usb

// ControlOut is a host-to-device control transfer offered to each class in
// turn. A class that recognizes the request calls Accept or Reject; a
// transfer nobody claims is answered with a protocol stall by the device.
type ControlOut struct {
	setup    SetupPacket
	data     []byte
	accepted bool
	done     bool
}

// NewControlOut wraps a SETUP stage and its OUT data stage.
func NewControlOut(setup SetupPacket, data []byte) *ControlOut {
	return &ControlOut{setup: setup, data: data}
}

// Setup returns the SETUP stage of the transfer.
func (x *ControlOut) Setup() SetupPacket { return x.setup }

// Data returns the OUT data stage payload. It may be empty for
// zero-length requests.
func (x *ControlOut) Data() []byte { return x.data }

// Accept acknowledges the transfer.
func (x *ControlOut) Accept() error {
	if x.done {
		return ErrTransferComplete
	}
	x.done = true
	x.accepted = true
	return nil
}

// Reject answers the transfer with a stall.
func (x *ControlOut) Reject() error {
	if x.done {
		return ErrTransferComplete
	}
	x.done = true
	return nil
}

// Completed reports whether some class already claimed the transfer.
func (x *ControlOut) Completed() bool { return x.done }

// Accepted reports whether the transfer was acknowledged.
func (x *ControlOut) Accepted() bool { return x.accepted }

// ControlIn is a device-to-host control transfer. The accepting class
// supplies the reply payload, which the device truncates to the host's
// wLength before transmission.
type ControlIn struct {
	setup    SetupPacket
	reply    []byte
	accepted bool
	done     bool
}

// NewControlIn wraps a SETUP stage requesting data from the device.
func NewControlIn(setup SetupPacket) *ControlIn {
	return &ControlIn{setup: setup}
}

// Setup returns the SETUP stage of the transfer.
func (x *ControlIn) Setup() SetupPacket { return x.setup }

// Accept supplies the reply payload. Payloads longer than the host's
// wLength are truncated; that is the normal control-read short-circuit,
// not an error.
func (x *ControlIn) Accept(data []byte) error {
	if x.done {
		return ErrTransferComplete
	}
	x.done = true
	x.accepted = true
	if len(data) > int(x.setup.Length) {
		data = data[:x.setup.Length]
	}
	x.reply = append([]byte(nil), data...)
	return nil
}

// Reject answers the transfer with a stall.
func (x *ControlIn) Reject() error {
	if x.done {
		return ErrTransferComplete
	}
	x.done = true
	return nil
}

// Completed reports whether some class already claimed the transfer.
func (x *ControlIn) Completed() bool { return x.done }

// Accepted reports whether a reply was supplied.
func (x *ControlIn) Accepted() bool { return x.accepted }

// Reply returns the accepted payload, already clamped to wLength.
func (x *ControlIn) Reply() []byte { return x.reply }
