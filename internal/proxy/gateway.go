// File: internal/proxy/gateway.go
// Description: Local forward proxy that rotates each request across the
// upstream pool. The browser points at one stable address while every
// connection behind it goes out through a different upstream.

package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// Gateway is the rotating forward proxy server.
type Gateway struct {
	pool        *Pool
	proxy       *goproxy.ProxyHttpServer
	server      *http.Server
	serverMutex sync.Mutex
	logger      *zap.Logger
}

// NewGateway wires a goproxy server to the pool. Plain HTTP requests rotate
// through the transport's Proxy function; CONNECT tunnels rotate through a
// per-request upstream dialer.
func NewGateway(pool *Pool, logger *zap.Logger) *Gateway {
	g := &Gateway{
		pool:   pool,
		proxy:  goproxy.NewProxyHttpServer(),
		logger: logger.Named("gateway"),
	}

	g.proxy.Tr = &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			upstream, err := g.pool.Next()
			if err != nil {
				return nil, err
			}
			g.logger.Debug("Routing request",
				zap.String("host", req.Host), zap.String("upstream", upstream.Host))
			return upstream, nil
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
	}

	g.proxy.ConnectDialWithReq = func(req *http.Request, network, addr string) (net.Conn, error) {
		upstream, err := g.pool.Next()
		if err != nil {
			return nil, err
		}
		dial := g.proxy.NewConnectDialToProxy(upstream.String())
		if dial == nil {
			g.pool.Report(upstream, false)
			return nil, fmt.Errorf("unsupported upstream scheme %q", upstream.Scheme)
		}
		conn, err := dial(network, addr)
		g.pool.Report(upstream, err == nil)
		if err != nil {
			g.logger.Warn("Tunnel dial failed",
				zap.String("addr", addr), zap.String("upstream", upstream.Host), zap.Error(err))
			return nil, err
		}
		return conn, nil
	}

	g.proxy.OnResponse().DoFunc(func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
		if resp == nil && ctx.Error != nil {
			g.logger.Warn("Upstream request failed", zap.Error(ctx.Error))
		}
		return resp
	})

	return g
}

// Start runs the gateway and blocks until the context is canceled or the
// listener fails.
func (g *Gateway) Start(ctx context.Context, addr string) error {
	g.serverMutex.Lock()
	if g.server != nil {
		g.serverMutex.Unlock()
		return errors.New("gateway already started")
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      g.proxy,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     zap.NewStdLog(g.logger.Named("http_server")),
	}
	g.server = server
	g.serverMutex.Unlock()

	shutdownErr := make(chan error)
	go func() {
		<-ctx.Done()
		g.logger.Info("Shutdown signal received, stopping gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	g.logger.Info("Starting rotating proxy gateway",
		zap.String("address", addr), zap.Int("endpoints", g.pool.Active()))
	err := server.ListenAndServe()

	if errors.Is(err, http.ErrServerClosed) {
		err = <-shutdownErr
	}

	g.serverMutex.Lock()
	if g.server == server {
		g.server = nil
	}
	g.serverMutex.Unlock()

	if err != nil {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	g.logger.Info("Gateway stopped gracefully")
	return nil
}
