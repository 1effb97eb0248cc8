// Package usb implements the USB/IP side of the server: device listing,
// import, and the URB command stream that drives attached devices.
package usb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/keywire/keywire/internal/log"
	"github.com/keywire/keywire/usb"
	"github.com/keywire/keywire/usbip"
	"github.com/keywire/keywire/virtualbus"
)

const busIDSize = 32

type Server struct {
	config    *ServerConfig
	logger    *slog.Logger
	rawLogger log.RawLogger
	busses    map[uint32]*virtualbus.VirtualBus
	busesMu   sync.Mutex
	ready     chan struct{}
	readyOnce sync.Once
	ln        net.Listener
}

func New(config ServerConfig, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	return &Server{
		config:    &config,
		logger:    logger,
		rawLogger: rawLogger,
		busses:    make(map[uint32]*virtualbus.VirtualBus),
		ready:     make(chan struct{}),
	}
}

// AddBus registers a bus with the server. If the bus number is already present,
// an error is returned.
func (s *Server) AddBus(bus *virtualbus.VirtualBus) error {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	if bus == nil {
		return fmt.Errorf("bus is nil")
	}
	if _, ok := s.busses[bus.BusID()]; ok {
		return fmt.Errorf("bus %d already registered", bus.BusID())
	}
	s.busses[bus.BusID()] = bus
	return nil
}

// RemoveBus unregisters a bus from the server.
func (s *Server) RemoveBus(busID uint32) error {
	s.busesMu.Lock()
	bus, ok := s.busses[busID]
	if !ok {
		s.busesMu.Unlock()
		return fmt.Errorf("bus %d not found", busID)
	}

	devices := bus.Devices()
	s.busesMu.Unlock()

	if len(devices) > 0 {
		s.logger.Warn(fmt.Sprintf("Removing non-empty bus %d with %d device(s) attached; removing devices", busID, len(devices)))
		for _, att := range devices {
			_ = bus.Remove(att.Dev)
		}
	}

	s.busesMu.Lock()
	delete(s.busses, busID)
	s.busesMu.Unlock()

	return bus.Close()
}

// RemoveDeviceByID removes a device by busId and cancels its connections.
func (s *Server) RemoveDeviceByID(busID uint32, deviceID string) error {
	s.busesMu.Lock()
	bus, ok := s.busses[busID]
	s.busesMu.Unlock()

	if !ok {
		return fmt.Errorf("bus %d not found", busID)
	}

	return bus.RemoveDeviceByID(deviceID)
}

// ListBuses returns a snapshot of active bus numbers.
func (s *Server) ListBuses() []uint32 {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	out := make([]uint32, 0, len(s.busses))
	for k := range s.busses {
		out = append(out, k)
	}
	return out
}

// GetBus returns a bus by ID or nil if not present.
func (s *Server) GetBus(busID uint32) *virtualbus.VirtualBus {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	return s.busses[busID]
}

// ListenAndServe starts the USB-IP server and handles incoming connections.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("USBIP server listening", "addr", s.config.Addr)
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				s.logger.Info("USBIP server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", c.RemoteAddr())
		go func() {
			if err := s.handleConn(c); err != nil {
				if isClientDisconnect(err) {
					s.logger.Info("Client disconnected", "error", err)
				} else {
					s.logger.Error("Connection handler error", "error", err)
				}
			}
		}()
	}
}

// Ready returns a channel that is closed once the server has successfully bound
// to its listen address and is ready to accept connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Close stops the USB server by closing its listener.
func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// GetListenPort extracts and returns the port number from the server's listen address.
// With a ":0" listen address the bound listener is the source of truth.
func (s *Server) GetListenPort() uint16 {
	if s.ln != nil {
		if tcp, ok := s.ln.Addr().(*net.TCPAddr); ok {
			return uint16(tcp.Port)
		}
	}
	_, portStr, err := net.SplitHostPort(s.config.Addr)
	if err != nil {
		return 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port)
}

// --

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	conn = &logConn{Conn: conn, s: s}
	if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
		s.logger.Warn("Failed to set deadline", "error", err)
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	if hdr.Version == usbip.Version {
		switch hdr.Command {
		case usbip.OpReqDevlist:
			s.logger.Info("OP_REQ_DEVLIST")
			return s.handleDevList(conn)
		case usbip.OpReqImport:
			s.logger.Info("OP_REQ_IMPORT")
			att, err := s.handleImport(conn)
			if err != nil {
				return fmt.Errorf("handle import: %w", err)
			}
			return s.handleUrbStream(conn, att)
		}
	}

	return fmt.Errorf("protocol violation: client sent URB data without OP_REQ_IMPORT")
}

// exportedDevice builds the wire representation of one attachment from the
// device's self-description.
func exportedDevice(att *virtualbus.Attachment) usbip.ExportedDevice {
	info := att.Dev.Info()
	exp := usbip.ExportedDevice{
		ExportMeta:          att.Meta,
		Speed:               info.Speed,
		IDVendor:            info.IDVendor,
		IDProduct:           info.IDProduct,
		BcdDevice:           info.BcdDevice,
		BDeviceClass:        info.BDeviceClass,
		BDeviceSubClass:     info.BDeviceSubClass,
		BDeviceProtocol:     info.BDeviceProtocol,
		BConfigurationValue: info.BConfigurationVal,
		BNumConfigurations:  info.BNumConfigs,
		BNumInterfaces:      uint8(len(info.Interfaces)),
	}
	for _, iface := range info.Interfaces {
		exp.Interfaces = append(exp.Interfaces, usbip.InterfaceDesc{
			Class:    iface.Class,
			SubClass: iface.SubClass,
			Protocol: iface.Protocol,
		})
	}
	return exp
}

func (s *Server) handleDevList(conn net.Conn) error {
	_ = conn.SetDeadline(time.Time{})
	var buf bytes.Buffer
	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepDevlist, Status: 0}
	_ = rep.Write(&buf)
	atts := s.allAttachments()
	dlh := usbip.DevListReplyHeader{NDevices: uint32(len(atts))}
	_ = dlh.Write(&buf)
	for _, att := range atts {
		exp := exportedDevice(att)
		_ = exp.WriteDevlist(&buf)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write devlist: %w", err)
	}
	return nil
}

func (s *Server) handleImport(conn net.Conn) (*virtualbus.Attachment, error) {
	var rest [busIDSize]byte
	if err := usbip.ReadExactly(conn, rest[:]); err != nil {
		return nil, fmt.Errorf("read import busid: %w", err)
	}
	reqBus := string(rest[:bytes.IndexByte(rest[:], 0)])
	s.logger.Info("Import request", "busid", reqBus)

	var chosen *virtualbus.Attachment
	for _, att := range s.allAttachments() {
		if att.Meta.BusIdString() == reqBus {
			chosen = att
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("no device matches busid %s", reqBus)
	}
	var buf bytes.Buffer
	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport, Status: 0}
	_ = rep.Write(&buf)
	exp := exportedDevice(chosen)
	if err := exp.WriteImport(&buf); err != nil {
		return nil, fmt.Errorf("build import reply: %w", err)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write import reply failed: %w", err)
	}
	return chosen, nil
}

// allAttachments aggregates device attachments from all registered busses.
func (s *Server) allAttachments() []*virtualbus.Attachment {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	out := []*virtualbus.Attachment{}
	for _, b := range s.busses {
		out = append(out, b.Devices()...)
	}
	return out
}

type logConn struct {
	net.Conn
	s *Server
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(false, p[:n])
	}
	return n, err
}

func (s *Server) handleUrbStream(conn net.Conn, att *virtualbus.Attachment) error {
	_ = conn.SetDeadline(time.Time{})
	ctx := att.Context()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("device removed, closing URB stream")
			return nil
		default:
		}

		basic, err := usbip.ReadHeaderBasic(conn)
		if err != nil {
			return fmt.Errorf("read URB header: %w", err)
		}

		switch basic.Command {
		case usbip.CmdUnlinkCode:
			cmd, err := usbip.ReadCmdUnlinkBody(conn, basic)
			if err != nil {
				return fmt.Errorf("read CMD_UNLINK: %w", err)
			}
			s.logger.Debug("USBIP_CMD_UNLINK", "seq", basic.Seqnum, "unlink", cmd.UnlinkSeqnum)
			ret := usbip.RetUnlink{
				Basic:  usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: basic.Seqnum},
				Status: usbip.StatusUnlinked,
			}
			if err := ret.Write(conn); err != nil {
				return fmt.Errorf("write RET_UNLINK: %w", err)
			}
			continue
		case usbip.CmdSubmitCode:
		default:
			return fmt.Errorf("unsupported cmd %d (seq=%d, devid=%d)", basic.Command, basic.Seqnum, basic.Devid)
		}

		cmd, err := usbip.ReadCmdSubmitBody(conn, basic)
		if err != nil {
			return fmt.Errorf("read CMD_SUBMIT: %w", err)
		}

		var outPayload []byte
		if basic.Dir == usbip.DirOut && cmd.TransferBufferLen > 0 {
			outPayload = make([]byte, cmd.TransferBufferLen)
			if err := usbip.ReadExactly(conn, outPayload); err != nil {
				return fmt.Errorf("read OUT payload: %w", err)
			}
		}

		respData, status := s.processSubmit(att.Dev, cmd, outPayload)

		ret := usbip.RetSubmit{
			Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: basic.Seqnum},
			Status:       status,
			ActualLength: uint32(len(respData)),
		}
		var out bytes.Buffer
		if err := ret.Write(&out); err != nil {
			return fmt.Errorf("build RET_SUBMIT header: %w", err)
		}
		if len(respData) > 0 {
			out.Write(respData)
		}
		if _, err := conn.Write(out.Bytes()); err != nil {
			return fmt.Errorf("write RET_SUBMIT: %w", err)
		}
	}
}

// processSubmit routes one CMD_SUBMIT to the device: control transfers on
// endpoint zero, interrupt polls and deliveries on everything else.
func (s *Server) processSubmit(dev *usb.Device, cmd usbip.CmdSubmit, out []byte) ([]byte, int32) {
	ep := uint8(cmd.Basic.Ep & 0x0f)
	if cmd.Basic.Ep == 0 {
		reply, err := dev.HandleSetup(cmd.Setup[:], out)
		if err != nil {
			s.logger.Debug("control transfer failed", "error", err)
			return nil, usbip.StatusStalled
		}
		return reply, usbip.StatusOK
	}
	if cmd.Basic.Dir == usbip.DirIn {
		pkt, err := dev.HandleIn(ep)
		if err != nil {
			return nil, usbip.StatusStalled
		}
		// A nil packet means nothing was ever queued on this endpoint;
		// reply with an empty payload so the host keeps polling.
		return pkt, usbip.StatusOK
	}
	if err := dev.HandleOut(ep, out); err != nil {
		return nil, usbip.StatusStalled
	}
	return nil, usbip.StatusOK
}

// isClientDisconnect tests whether an error represents a normal client
// disconnect (EOF, ECONNRESET, broken pipe, or the Windows WSAECONNRESET
// translated error). We treat those as normal client disconnects and log
// them at Info level instead of Error.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// On many platforms the underlying error will be a syscall.Errno
		switch t := opErr.Err.(type) {
		case syscall.Errno:
			if t == syscall.ECONNRESET || t == syscall.EPIPE {
				return true
			}
		}
	}
	// Fallback to checking the message for platform-specific strings.
	e := strings.ToLower(err.Error())
	if strings.Contains(e, "connection reset by peer") || strings.Contains(e, "forcibly closed") || strings.Contains(e, "an existing connection was forcibly closed") || strings.Contains(e, "aborted") {
		return true
	}
	return false
}
