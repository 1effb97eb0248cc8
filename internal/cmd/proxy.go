package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keywire/keywire/internal/log"
	"github.com/keywire/keywire/internal/server/proxy"
)

type Proxy struct {
	ProxyServerConfig proxy.ServerConfig `embed:""`
	ConnectionTimeout time.Duration      `help:"Per-connection read/write timeout" default:"30s" env:"KEYWIRE_PROXY_TIMEOUT"`
}

// Run is called by Kong when the proxy command is executed.
func (p *Proxy) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if p.ProxyServerConfig.UpstreamAddr == "" {
		return errors.New("upstream address is empty")
	}
	p.ProxyServerConfig.ConnectionTimeout = p.ConnectionTimeout

	logger.Info("Starting keywire USB-IP proxy",
		"listen", p.ProxyServerConfig.ListenAddr, "upstream", p.ProxyServerConfig.UpstreamAddr)
	proxySrv := proxy.New(p.ProxyServerConfig, logger, rawLogger)

	proxyErrCh := make(chan error, 1)
	go func() {
		proxyErrCh <- proxySrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down proxy server")
		_ = proxySrv.Close()
		<-proxyErrCh
		return nil
	case err := <-proxyErrCh:
		return err
	}
}
