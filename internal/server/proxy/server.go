// Package proxy implements a protocol-aware TCP proxy for USB/IP
// traffic. It splices client and upstream streams while decoding the
// protocol for structured logging, which makes it useful for debugging
// attach problems between a vhci host and a keywire server.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/keywire/keywire/internal/log"
)

type ServerConfig struct {
	ListenAddr        string        `help:"Proxy listen address" default:":3241" env:"KEYWIRE_PROXY_ADDR"`
	UpstreamAddr      string        `help:"Upstream USB-IP server address" required:"" env:"KEYWIRE_PROXY_UPSTREAM"`
	ConnectionTimeout time.Duration `kong:"-"`
}

type Server struct {
	config    ServerConfig
	logger    *slog.Logger
	rawLogger log.RawLogger
	ln        net.Listener
}

func New(config ServerConfig, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	return &Server{
		config:    config,
		logger:    logger,
		rawLogger: rawLogger,
	}
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}
	s.ln = ln
	s.logger.Info("USB-IP proxy listening", "addr", s.config.ListenAddr, "upstream", s.config.UpstreamAddr)

	for {
		clientConn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				s.logger.Info("Proxy server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", clientConn.RemoteAddr())
		go s.handleProxy(clientConn)
	}
}

// Addr returns the bound listen address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) handleProxy(clientConn net.Conn) {
	defer clientConn.Close()

	upstreamConn, err := net.DialTimeout("tcp", s.config.UpstreamAddr, s.config.ConnectionTimeout)
	if err != nil {
		s.logger.Error("Failed to connect to upstream", "upstream", s.config.UpstreamAddr, "error", err)
		return
	}
	defer upstreamConn.Close()

	s.logger.Info("Proxying connection", "client", clientConn.RemoteAddr(), "upstream", upstreamConn.RemoteAddr())

	// The initial deadline bounds idle handshakes; it is cleared once real
	// traffic flows because URB streams stay open for the device lifetime.
	if err := clientConn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
		s.logger.Error("Failed to set client deadline", "error", err)
		return
	}
	if err := upstreamConn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
		s.logger.Error("Failed to set upstream deadline", "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)

	splice := func(dst, src net.Conn, clientToServer bool) {
		defer wg.Done()
		bytes, err := s.copyWithLogging(dst, src, clientToServer)
		if err != nil && !isExpectedDisconnect(err) {
			s.logger.Debug("copy error", "dir", dirString(clientToServer), "error", err)
		}
		s.logger.Debug("stream ended", "dir", dirString(clientToServer), "bytes", bytes)
		halfClose(dst, true)
		halfClose(src, false)
	}

	go splice(upstreamConn, clientConn, true)
	go splice(clientConn, upstreamConn, false)

	wg.Wait()
	s.logger.Info("Connection closed", "client", clientConn.RemoteAddr())
}

func (s *Server) copyWithLogging(dst net.Conn, src net.Conn, clientToServer bool) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	parser := NewParser(s.logger)
	firstPacket := true

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			s.rawLogger.Log(clientToServer, buf[:n])
			parser.Parse(buf[:n], clientToServer)

			if firstPacket {
				if err := src.SetDeadline(time.Time{}); err != nil {
					s.logger.Error("Failed to clear source deadline", "error", err)
					return total, err
				}
				if err := dst.SetDeadline(time.Time{}); err != nil {
					s.logger.Error("Failed to clear destination deadline", "error", err)
					return total, err
				}
				firstPacket = false
			}

			wn, werr := dst.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
			if wn != n {
				return total, fmt.Errorf("short write: wrote %d of %d", wn, n)
			}
		}

		if rerr != nil {
			if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				continue
			}
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

func halfClose(conn net.Conn, write bool) {
	if tc, ok := conn.(*net.TCPConn); ok {
		if write {
			_ = tc.CloseWrite()
		} else {
			_ = tc.CloseRead()
		}
	}
}

func isExpectedDisconnect(err error) bool {
	if err == nil || err == io.EOF {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset") ||
		strings.Contains(e, "broken pipe") ||
		strings.Contains(e, "forcibly closed")
}
