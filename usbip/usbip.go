// Package usbip implements the USB/IP wire protocol (Linux
// Documentation/usb/usbip_protocol.rst): the management handshake
// (OP_REQ_DEVLIST / OP_REQ_IMPORT) and the URB command stream
// (CMD_SUBMIT / CMD_UNLINK). All multi-byte fields are big-endian.
package usbip

import (
	"encoding/binary"
	"io"
)

// Protocol version carried by management headers.
const Version = 0x0111

// Management command codes.
const (
	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003
)

// URB command codes.
const (
	CmdSubmitCode = 0x00000001
	CmdUnlinkCode = 0x00000002
	RetSubmitCode = 0x00000003
	RetUnlinkCode = 0x00000004
)

// Transfer directions in usbip_header_basic.direction.
const (
	DirOut = 0x00000000
	DirIn  = 0x00000001
)

// URB status values reported in RET_SUBMIT/RET_UNLINK (negative errno).
const (
	StatusOK        = 0
	StatusStalled   = -32  // -EPIPE
	StatusUnlinked  = -104 // -ECONNRESET
	StatusNoDevice  = -19  // -ENODEV
	StatusSubmitted = -115 // -EINPROGRESS
)

// fieldWriter accumulates big-endian fields and flushes them in a single
// Write, so a header hits the socket as one packet.
type fieldWriter struct {
	buf []byte
}

func (f *fieldWriter) u16(v uint16) { f.buf = binary.BigEndian.AppendUint16(f.buf, v) }
func (f *fieldWriter) u32(v uint32) { f.buf = binary.BigEndian.AppendUint32(f.buf, v) }
func (f *fieldWriter) i32(v int32)  { f.u32(uint32(v)) }
func (f *fieldWriter) raw(b []byte) { f.buf = append(f.buf, b...) }

func (f *fieldWriter) flush(w io.Writer) error {
	_, err := w.Write(f.buf)
	return err
}

// MgmtHeader is the 8-byte header of every management op.
type MgmtHeader struct {
	Version uint16
	Command uint16
	Status  uint32
}

func (h *MgmtHeader) Write(w io.Writer) error {
	f := &fieldWriter{}
	f.u16(h.Version)
	f.u16(h.Command)
	f.u32(h.Status)
	return f.flush(w)
}

// ReadMgmtHeader decodes the management header from the stream.
func ReadMgmtHeader(r io.Reader) (MgmtHeader, error) {
	var buf [8]byte
	if err := ReadExactly(r, buf[:]); err != nil {
		return MgmtHeader{}, err
	}
	return MgmtHeader{
		Version: binary.BigEndian.Uint16(buf[0:2]),
		Command: binary.BigEndian.Uint16(buf[2:4]),
		Status:  binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

// DevListReplyHeader carries the exported device count that follows the
// OP_REP_DEVLIST management header.
type DevListReplyHeader struct {
	NDevices uint32
}

func (h *DevListReplyHeader) Write(w io.Writer) error {
	f := &fieldWriter{}
	f.u32(h.NDevices)
	return f.flush(w)
}

// ExportMeta is the bus identity of one exported device: the sysfs-style
// path and busid strings plus the numeric bus and device IDs.
type ExportMeta struct {
	Path     [256]byte
	USBBusId [32]byte
	BusId    uint32
	DevId    uint32
}

// SetPath fills the fixed-size path field from a string.
func (m *ExportMeta) SetPath(s string) { putFixedString(m.Path[:], s) }

// SetBusId fills the fixed-size busid field from a string.
func (m *ExportMeta) SetBusId(s string) { putFixedString(m.USBBusId[:], s) }

// BusIdString returns the busid without trailing NULs.
func (m *ExportMeta) BusIdString() string { return fixedString(m.USBBusId[:]) }

// PathString returns the path without trailing NULs.
func (m *ExportMeta) PathString() string { return fixedString(m.Path[:]) }

func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func fixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// InterfaceDesc is one interface triple in a devlist entry.
type InterfaceDesc struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

// ExportedDevice is one device entry in OP_REP_DEVLIST / OP_REP_IMPORT.
type ExportedDevice struct {
	ExportMeta
	Speed uint32

	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8

	Interfaces []InterfaceDesc
}

func (d *ExportedDevice) writeCommon(f *fieldWriter) {
	f.raw(d.Path[:])
	f.raw(d.USBBusId[:])
	f.u32(d.BusId)
	f.u32(d.DevId)
	f.u32(d.Speed)
	f.u16(d.IDVendor)
	f.u16(d.IDProduct)
	f.u16(d.BcdDevice)
	f.raw([]byte{
		d.BDeviceClass,
		d.BDeviceSubClass,
		d.BDeviceProtocol,
		d.BConfigurationValue,
		d.BNumConfigurations,
		d.BNumInterfaces,
	})
}

// WriteDevlist writes the OP_REP_DEVLIST form, which appends one padded
// interface triple per interface.
func (d *ExportedDevice) WriteDevlist(w io.Writer) error {
	f := &fieldWriter{}
	d.writeCommon(f)
	for _, iface := range d.Interfaces {
		f.raw([]byte{iface.Class, iface.SubClass, iface.Protocol, 0})
	}
	return f.flush(w)
}

// WriteImport writes the OP_REP_IMPORT form, which stops after
// bNumInterfaces.
func (d *ExportedDevice) WriteImport(w io.Writer) error {
	f := &fieldWriter{}
	d.writeCommon(f)
	return f.flush(w)
}

// ReadExportedDevice decodes the 312-byte device block shared by
// OP_REP_DEVLIST and OP_REP_IMPORT. Devlist entries are followed by
// bNumInterfaces padded interface triples; the caller reads those with
// ReadInterfaceDesc.
func ReadExportedDevice(r io.Reader) (ExportedDevice, error) {
	var buf [312]byte
	if err := ReadExactly(r, buf[:]); err != nil {
		return ExportedDevice{}, err
	}
	var d ExportedDevice
	copy(d.Path[:], buf[0:256])
	copy(d.USBBusId[:], buf[256:288])
	d.BusId = binary.BigEndian.Uint32(buf[288:292])
	d.DevId = binary.BigEndian.Uint32(buf[292:296])
	d.Speed = binary.BigEndian.Uint32(buf[296:300])
	d.IDVendor = binary.BigEndian.Uint16(buf[300:302])
	d.IDProduct = binary.BigEndian.Uint16(buf[302:304])
	d.BcdDevice = binary.BigEndian.Uint16(buf[304:306])
	d.BDeviceClass = buf[306]
	d.BDeviceSubClass = buf[307]
	d.BDeviceProtocol = buf[308]
	d.BConfigurationValue = buf[309]
	d.BNumConfigurations = buf[310]
	d.BNumInterfaces = buf[311]
	return d, nil
}

// ReadInterfaceDesc decodes one padded interface triple of a devlist
// entry.
func ReadInterfaceDesc(r io.Reader) (InterfaceDesc, error) {
	var buf [4]byte
	if err := ReadExactly(r, buf[:]); err != nil {
		return InterfaceDesc{}, err
	}
	return InterfaceDesc{Class: buf[0], SubClass: buf[1], Protocol: buf[2]}, nil
}

// HeaderBasic is the 20-byte prefix shared by every URB command and
// reply.
type HeaderBasic struct {
	Command uint32
	Seqnum  uint32
	Devid   uint32
	Dir     uint32
	Ep      uint32
}

func (h HeaderBasic) write(f *fieldWriter) {
	f.u32(h.Command)
	f.u32(h.Seqnum)
	f.u32(h.Devid)
	f.u32(h.Dir)
	f.u32(h.Ep)
}

// ReadHeaderBasic decodes the shared URB header from the stream.
func ReadHeaderBasic(r io.Reader) (HeaderBasic, error) {
	var buf [20]byte
	if err := ReadExactly(r, buf[:]); err != nil {
		return HeaderBasic{}, err
	}
	return HeaderBasic{
		Command: binary.BigEndian.Uint32(buf[0:4]),
		Seqnum:  binary.BigEndian.Uint32(buf[4:8]),
		Devid:   binary.BigEndian.Uint32(buf[8:12]),
		Dir:     binary.BigEndian.Uint32(buf[12:16]),
		Ep:      binary.BigEndian.Uint32(buf[16:20]),
	}, nil
}

// CmdSubmit is the 48-byte CMD_SUBMIT header. OUT transfers are followed
// by TransferBufferLen payload bytes.
type CmdSubmit struct {
	Basic             HeaderBasic
	TransferFlags     uint32
	TransferBufferLen uint32
	StartFrame        uint32
	NumberOfPackets   uint32
	Interval          uint32
	Setup             [8]byte
}

func (c *CmdSubmit) Write(w io.Writer) error {
	f := &fieldWriter{}
	c.Basic.write(f)
	f.u32(c.TransferFlags)
	f.u32(c.TransferBufferLen)
	f.u32(c.StartFrame)
	f.u32(c.NumberOfPackets)
	f.u32(c.Interval)
	f.raw(c.Setup[:])
	return f.flush(w)
}

// ReadCmdSubmitBody decodes the 28 bytes of a CMD_SUBMIT after the basic
// header.
func ReadCmdSubmitBody(r io.Reader, basic HeaderBasic) (CmdSubmit, error) {
	var buf [28]byte
	if err := ReadExactly(r, buf[:]); err != nil {
		return CmdSubmit{}, err
	}
	cmd := CmdSubmit{
		Basic:             basic,
		TransferFlags:     binary.BigEndian.Uint32(buf[0:4]),
		TransferBufferLen: binary.BigEndian.Uint32(buf[4:8]),
		StartFrame:        binary.BigEndian.Uint32(buf[8:12]),
		NumberOfPackets:   binary.BigEndian.Uint32(buf[12:16]),
		Interval:          binary.BigEndian.Uint32(buf[16:20]),
	}
	copy(cmd.Setup[:], buf[20:28])
	return cmd, nil
}

// RetSubmit is the 48-byte RET_SUBMIT header. IN transfers are followed
// by ActualLength payload bytes.
type RetSubmit struct {
	Basic           HeaderBasic
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
	Padding         [8]byte
}

func (r *RetSubmit) Write(w io.Writer) error {
	f := &fieldWriter{}
	r.Basic.write(f)
	f.i32(r.Status)
	f.u32(r.ActualLength)
	f.u32(r.StartFrame)
	f.u32(r.NumberOfPackets)
	f.u32(r.ErrorCount)
	f.raw(r.Padding[:])
	return f.flush(w)
}

// ReadRetSubmitBody decodes the 28 bytes of a RET_SUBMIT after the basic
// header.
func ReadRetSubmitBody(r io.Reader, basic HeaderBasic) (RetSubmit, error) {
	var buf [28]byte
	if err := ReadExactly(r, buf[:]); err != nil {
		return RetSubmit{}, err
	}
	ret := RetSubmit{
		Basic:           basic,
		Status:          int32(binary.BigEndian.Uint32(buf[0:4])),
		ActualLength:    binary.BigEndian.Uint32(buf[4:8]),
		StartFrame:      binary.BigEndian.Uint32(buf[8:12]),
		NumberOfPackets: binary.BigEndian.Uint32(buf[12:16]),
		ErrorCount:      binary.BigEndian.Uint32(buf[16:20]),
	}
	copy(ret.Padding[:], buf[20:28])
	return ret, nil
}

// CmdUnlink is the 48-byte CMD_UNLINK header.
type CmdUnlink struct {
	Basic        HeaderBasic
	UnlinkSeqnum uint32
	Padding      [24]byte
}

func (c *CmdUnlink) Write(w io.Writer) error {
	f := &fieldWriter{}
	c.Basic.write(f)
	f.u32(c.UnlinkSeqnum)
	f.raw(c.Padding[:])
	return f.flush(w)
}

// ReadCmdUnlinkBody decodes the 28 bytes of a CMD_UNLINK after the basic
// header.
func ReadCmdUnlinkBody(r io.Reader, basic HeaderBasic) (CmdUnlink, error) {
	var buf [28]byte
	if err := ReadExactly(r, buf[:]); err != nil {
		return CmdUnlink{}, err
	}
	cmd := CmdUnlink{
		Basic:        basic,
		UnlinkSeqnum: binary.BigEndian.Uint32(buf[0:4]),
	}
	copy(cmd.Padding[:], buf[4:28])
	return cmd, nil
}

// RetUnlink is the 48-byte RET_UNLINK header.
type RetUnlink struct {
	Basic   HeaderBasic
	Status  int32
	Padding [24]byte
}

func (r *RetUnlink) Write(w io.Writer) error {
	f := &fieldWriter{}
	r.Basic.write(f)
	f.i32(r.Status)
	f.raw(r.Padding[:])
	return f.flush(w)
}

// ReadExactly fills buf completely or returns the underlying read error.
func ReadExactly(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
