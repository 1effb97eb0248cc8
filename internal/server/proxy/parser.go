package proxy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/keywire/keywire/usbip"
)

// Parser reassembles the USB/IP byte stream flowing through the proxy and
// logs one structured line per protocol message. It never blocks the data
// path: incomplete messages stay buffered until the next chunk arrives.
type Parser struct {
	logger *slog.Logger
	buf    bytes.Buffer
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse consumes a raw chunk and logs every complete message found.
func (p *Parser) Parse(data []byte, clientToServer bool) {
	p.buf.Write(data)

	for p.buf.Len() >= 8 {
		peek := p.buf.Bytes()

		if binary.BigEndian.Uint16(peek[0:2]) == usbip.Version {
			if !p.parseMgmt(peek, clientToServer) {
				return
			}
			continue
		}

		if p.buf.Len() >= 48 {
			if !p.parseURB(peek, clientToServer) {
				return
			}
			continue
		}

		p.guardOverflow()
		return
	}
}

// parseMgmt handles the management ops (devlist/import). Returns false when
// the buffered data does not yet hold a complete message.
func (p *Parser) parseMgmt(peek []byte, clientToServer bool) bool {
	switch binary.BigEndian.Uint16(peek[2:4]) {
	case usbip.OpReqDevlist:
		p.log(clientToServer, "op", "OP_REQ_DEVLIST")
		p.buf.Next(8)
		return true

	case usbip.OpRepDevlist:
		consumed := p.parseDevlistReply(peek, clientToServer)
		if consumed == 0 {
			p.guardOverflow()
			return false
		}
		p.buf.Next(consumed)
		return true

	case usbip.OpReqImport:
		if len(peek) < 40 { // header + 32-byte busid
			p.guardOverflow()
			return false
		}
		var meta usbip.ExportMeta
		copy(meta.USBBusId[:], peek[8:40])
		p.log(clientToServer, "op", "OP_REQ_IMPORT", "busid", meta.BusIdString())
		p.buf.Next(40)
		return true

	case usbip.OpRepImport:
		consumed := p.parseImportReply(peek, clientToServer)
		if consumed == 0 {
			p.guardOverflow()
			return false
		}
		p.buf.Next(consumed)
		return true
	}

	p.guardOverflow()
	return false
}

// parseURB handles the four 48-byte URB messages plus any trailing
// payload. Returns false when more data is needed.
func (p *Parser) parseURB(peek []byte, clientToServer bool) bool {
	r := bytes.NewReader(peek)
	basic, err := usbip.ReadHeaderBasic(r)
	if err != nil {
		return false
	}

	switch basic.Command {
	case usbip.CmdSubmitCode:
		cmd, err := usbip.ReadCmdSubmitBody(r, basic)
		if err != nil {
			return false
		}
		args := []any{
			"op", "CMD_SUBMIT",
			"seq", basic.Seqnum,
			"devid", basic.Devid,
			"ep", basic.Ep,
			"urb_dir", urbDirString(basic.Dir),
			"len", cmd.TransferBufferLen,
		}
		if basic.Ep == 0 {
			args = append(args, "setup", fmt.Sprintf("% 02x", cmd.Setup[:]))
		}
		p.log(clientToServer, args...)
		p.buf.Next(48)
		if basic.Dir == usbip.DirOut && cmd.TransferBufferLen > 0 && uint32(p.buf.Len()) >= cmd.TransferBufferLen {
			p.buf.Next(int(cmd.TransferBufferLen))
		}
		return true

	case usbip.RetSubmitCode:
		ret, err := usbip.ReadRetSubmitBody(r, basic)
		if err != nil {
			return false
		}
		p.log(clientToServer,
			"op", "RET_SUBMIT",
			"seq", basic.Seqnum,
			"status", ret.Status,
			"actual_len", ret.ActualLength)
		p.buf.Next(48)
		if ret.ActualLength > 0 && uint32(p.buf.Len()) >= ret.ActualLength {
			p.buf.Next(int(ret.ActualLength))
		}
		return true

	case usbip.CmdUnlinkCode:
		unlink, err := usbip.ReadCmdUnlinkBody(r, basic)
		if err != nil {
			return false
		}
		p.log(clientToServer,
			"op", "CMD_UNLINK",
			"seq", basic.Seqnum,
			"unlink_seq", unlink.UnlinkSeqnum)
		p.buf.Next(48)
		return true

	case usbip.RetUnlinkCode:
		// RET_UNLINK carries only a status after the basic header.
		status := int32(binary.BigEndian.Uint32(peek[20:24]))
		p.log(clientToServer,
			"op", "RET_UNLINK",
			"seq", basic.Seqnum,
			"status", status)
		p.buf.Next(48)
		return true
	}

	p.guardOverflow()
	return false
}

func (p *Parser) parseDevlistReply(data []byte, clientToServer bool) int {
	if len(data) < 12 {
		return 0
	}

	nDevices := binary.BigEndian.Uint32(data[8:12])

	// Decode everything before logging so a partial reply is not logged
	// twice when the rest of it arrives.
	r := bytes.NewReader(data[12:])
	devices := make([]usbip.ExportedDevice, 0, nDevices)
	for i := uint32(0); i < nDevices; i++ {
		dev, err := usbip.ReadExportedDevice(r)
		if err != nil {
			return 0 // need more data
		}
		for j := uint8(0); j < dev.BNumInterfaces; j++ {
			iface, err := usbip.ReadInterfaceDesc(r)
			if err != nil {
				return 0
			}
			dev.Interfaces = append(dev.Interfaces, iface)
		}
		devices = append(devices, dev)
	}

	p.log(clientToServer, "op", "OP_REP_DEVLIST", "nDevices", nDevices)
	for _, dev := range devices {
		p.logDevice("  Device", dev)
		for j, iface := range dev.Interfaces {
			p.logger.Info("    Interface",
				"num", j,
				"class", fmt.Sprintf("%02x", iface.Class),
				"subclass", fmt.Sprintf("%02x", iface.SubClass),
				"protocol", fmt.Sprintf("%02x", iface.Protocol))
		}
	}

	return len(data) - r.Len()
}

func (p *Parser) parseImportReply(data []byte, clientToServer bool) int {
	// 8-byte header + device block without interface triples.
	if len(data) < 320 {
		return 0
	}

	status := binary.BigEndian.Uint32(data[4:8])
	dev, err := usbip.ReadExportedDevice(bytes.NewReader(data[8:]))
	if err != nil {
		return 0
	}

	p.log(clientToServer, "op", "OP_REP_IMPORT", "status", status)
	p.logDevice("  Device", dev)
	return 320
}

func (p *Parser) logDevice(msg string, dev usbip.ExportedDevice) {
	p.logger.Info(msg,
		"path", dev.PathString(),
		"busid", dev.BusIdString(),
		"bus", dev.BusId,
		"dev", dev.DevId,
		"speed", dev.Speed,
		"vid", fmt.Sprintf("%04x", dev.IDVendor),
		"pid", fmt.Sprintf("%04x", dev.IDProduct),
		"bcd", fmt.Sprintf("%04x", dev.BcdDevice),
		"class", fmt.Sprintf("%02x", dev.BDeviceClass),
		"subclass", fmt.Sprintf("%02x", dev.BDeviceSubClass),
		"protocol", fmt.Sprintf("%02x", dev.BDeviceProtocol),
		"config", dev.BConfigurationValue,
		"nConfigs", dev.BNumConfigurations,
		"nInterfaces", dev.BNumInterfaces)
}

func (p *Parser) log(clientToServer bool, args ...any) {
	p.logger.Info("USBIP packet", append([]any{"dir", dirString(clientToServer)}, args...)...)
}

// guardOverflow drops the buffer if unrecognized data keeps accumulating,
// so a non-USB/IP stream cannot grow it without bound.
func (p *Parser) guardOverflow() {
	if p.buf.Len() > 64*1024 {
		p.logger.Warn("Parser buffer overflow, resetting")
		p.buf.Reset()
	}
}

func dirString(clientToServer bool) string {
	if clientToServer {
		return "C→S"
	}
	return "S→C"
}

func urbDirString(dir uint32) string {
	if dir == usbip.DirOut {
		return "OUT"
	}
	return "IN"
}
