// Package testing provides a minimal USB/IP client for exercising the
// server end to end the way a real usbip attach would.
package testing

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keywire/keywire/usbip"
)

type TestUsbIpClient struct {
	address string
	seq     uint32
}

// ImportResult holds the attached connection. The connection carries the
// URB stream until closed.
type ImportResult struct {
	Conn     net.Conn
	Exported usbip.ExportedDevice
}

func NewUsbIpClient(t *testing.T, addr string) *TestUsbIpClient {
	t.Helper()
	return &TestUsbIpClient{address: addr}
}

func (c *TestUsbIpClient) nextSeq() uint32 {
	// Seqnum only needs to be unique within the session; the server does
	// not require a specific starting value.
	return atomic.AddUint32(&c.seq, 1) - 1
}

func (c *TestUsbIpClient) ListDevices() ([]usbip.ExportedDevice, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}).Write(conn); err != nil {
		return nil, err
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		return nil, err
	}
	if hdr.Version != usbip.Version {
		return nil, fmt.Errorf("unexpected usbip version %x", hdr.Version)
	}
	if hdr.Command != usbip.OpRepDevlist {
		return nil, fmt.Errorf("unexpected reply command %x", hdr.Command)
	}

	var count [4]byte
	if err := usbip.ReadExactly(conn, count[:]); err != nil {
		return nil, err
	}
	n := uint32(count[0])<<24 | uint32(count[1])<<16 | uint32(count[2])<<8 | uint32(count[3])

	devices := make([]usbip.ExportedDevice, 0, n)
	for i := uint32(0); i < n; i++ {
		dev, err := usbip.ReadExportedDevice(conn)
		if err != nil {
			return nil, err
		}
		for j := uint8(0); j < dev.BNumInterfaces; j++ {
			iface, err := usbip.ReadInterfaceDesc(conn)
			if err != nil {
				return nil, err
			}
			dev.Interfaces = append(dev.Interfaces, iface)
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func (c *TestUsbIpClient) AttachDevice(busID string) (*ImportResult, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}

	if err := (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqImport}).Write(conn); err != nil {
		conn.Close()
		return nil, err
	}
	var bus [32]byte
	copy(bus[:], busID)
	if _, err := conn.Write(bus[:]); err != nil {
		conn.Close()
		return nil, err
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if hdr.Version != usbip.Version {
		conn.Close()
		return nil, fmt.Errorf("unexpected usbip version %x", hdr.Version)
	}
	if hdr.Command != usbip.OpRepImport {
		conn.Close()
		return nil, fmt.Errorf("unexpected reply command %x", hdr.Command)
	}
	if hdr.Status != usbip.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("import rejected: status %d", int32(hdr.Status))
	}

	// OP_REP_IMPORT carries the device block without interface triples.
	dev, err := usbip.ReadExportedDevice(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &ImportResult{Conn: conn, Exported: dev}, nil
}

// ControlTransfer submits a control URB on endpoint 0 and returns the IN
// payload, if any.
func (c *TestUsbIpClient) ControlTransfer(conn net.Conn, setup [8]byte, outPayload []byte, inLen uint32) ([]byte, error) {
	dir := uint32(usbip.DirOut)
	bufLen := uint32(len(outPayload))
	if setup[0]&0x80 != 0 {
		dir = usbip.DirIn
		bufLen = inLen
	}
	return c.submit(conn, dir, 0, bufLen, outPayload, setup, 750*time.Millisecond)
}

// InterruptIn polls endpoint 1 for one input report.
func (c *TestUsbIpClient) InterruptIn(conn net.Conn, bufLen uint32, timeout time.Duration) ([]byte, error) {
	return c.submit(conn, usbip.DirIn, 1, bufLen, nil, [8]byte{}, timeout)
}

func (c *TestUsbIpClient) submit(conn net.Conn, dir, ep, bufLen uint32, outPayload []byte, setup [8]byte, timeout time.Duration) ([]byte, error) {
	if conn == nil {
		return nil, io.ErrUnexpectedEOF
	}
	cur := c.nextSeq()

	cmd := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: cur, Devid: 0, Dir: dir, Ep: ep},
		TransferBufferLen: bufLen,
		Setup:             setup,
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if err := cmd.Write(conn); err != nil {
		return nil, err
	}
	if dir == usbip.DirOut && len(outPayload) > 0 {
		if _, err := conn.Write(outPayload); err != nil {
			return nil, err
		}
	}

	basic, err := usbip.ReadHeaderBasic(conn)
	if err != nil {
		return nil, err
	}
	if basic.Command != usbip.RetSubmitCode {
		return nil, fmt.Errorf("unexpected ret cmd %x", basic.Command)
	}
	ret, err := usbip.ReadRetSubmitBody(conn, basic)
	if err != nil {
		return nil, err
	}
	if ret.Status != usbip.StatusOK {
		return nil, fmt.Errorf("ret status %d", ret.Status)
	}

	var data []byte
	if dir == usbip.DirIn && ret.ActualLength > 0 {
		data = make([]byte, int(ret.ActualLength))
		if err := usbip.ReadExactly(conn, data); err != nil {
			return nil, err
		}
	}
	_ = conn.SetDeadline(time.Time{})
	return data, nil
}

// PollInputReport reads endpoint 1 until the wanted report arrives or the
// timeout expires; it returns the last report seen either way.
func (c *TestUsbIpClient) PollInputReport(conn net.Conn, want []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	var last []byte
	for {
		got, err := c.InterruptIn(conn, uint32(len(want)), 250*time.Millisecond)
		if err != nil {
			return nil, err
		}
		last = got
		if string(got) == string(want) {
			return got, nil
		}
		if time.Now().After(deadline) {
			return last, nil
		}
		time.Sleep(time.Millisecond)
	}
}
