// Package mcpfacade exposes the daemon's IPC ops to external agents as
// a Model Context Protocol tool server (spec §6.3). It is a thin
// adapter: every tool forwards to exactly one internal/ipc op, with no
// speculative retries or hidden fan-out.
package mcpfacade

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/mark3labs/mcp-go/server"

	"github.com/cccc-dev/cccc/internal/ipc"
	"github.com/cccc-dev/cccc/internal/logging"
)

// Config controls the façade's HTTP listener.
type Config struct {
	Port int
}

// Facade wraps an MCP server whose tool handlers forward into the
// daemon's existing ipc.Dispatcher, the same dispatch table the Unix
// socket transport uses — grounded on the teacher's
// internal/mcpserver.Server, which wraps SSE + Streamable HTTP
// transports around one *server.MCPServer the same way.
type Facade struct {
	cfg        Config
	dispatcher *ipc.Dispatcher
	log        *logging.Logger

	mcpServer  *server.MCPServer
	sseServer  *server.SSEServer
	httpServer *server.StreamableHTTPServer
	listener   *http.Server

	mu      sync.Mutex
	running bool
}

// New builds a façade over dispatcher. Call Start to begin serving.
func New(dispatcher *ipc.Dispatcher, cfg Config, log *logging.Logger) *Facade {
	f := &Facade{cfg: cfg, dispatcher: dispatcher, log: log}

	f.mcpServer = server.NewMCPServer("cccc", "1.0.0", server.WithToolCapabilities(true))
	registerTools(f.mcpServer, dispatcher)
	f.sseServer = server.NewSSEServer(f.mcpServer)
	f.httpServer = server.NewStreamableHTTPServer(f.mcpServer, server.WithEndpointPath("/mcp"))

	return f
}

// Start begins serving on cfg.Port (127.0.0.1 only — the façade is
// loopback-only regardless of the daemon's own remote-access settings,
// since it hands out daemon-op authority keyed only by env-supplied
// actor_id). It returns once the listener is accepting connections.
func (f *Facade) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("mcp facade already running")
	}
	f.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle("/sse", f.sseServer.SSEHandler())
	mux.Handle("/message", f.sseServer.MessageHandler())
	mux.Handle("/mcp", f.httpServer)

	addr := fmt.Sprintf("127.0.0.1:%d", f.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		f.cfg.Port = tcpAddr.Port
	}

	httpSrv := &http.Server{Handler: mux}
	f.listener = httpSrv

	ready := make(chan struct{})
	go func() {
		f.mu.Lock()
		f.running = true
		f.mu.Unlock()
		close(ready)

		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			if f.log != nil {
				f.log.Error("mcp facade server error", zap.Error(err))
			}
		}

		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Port returns the bound listener port (useful after Start when
// cfg.Port was 0).
func (f *Facade) Port() int { return f.cfg.Port }

// Stop shuts the façade's HTTP listener down.
func (f *Facade) Stop(ctx context.Context) error {
	f.mu.Lock()
	running := f.running
	f.running = false
	f.mu.Unlock()
	if !running || f.listener == nil {
		return nil
	}
	if err := f.listener.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown mcp facade: %w", err)
	}
	if f.sseServer != nil {
		_ = f.sseServer.Shutdown(ctx)
	}
	return nil
}
