package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/config"
	"github.com/cccc-dev/cccc/internal/logging"
	"github.com/cccc-dev/cccc/internal/storage"
)

// maxLineBytes caps a single request/response line, matching the
// ledger scanner's defensive limit against a runaway client.
const maxLineBytes = 8 * 1024 * 1024

// Server accepts connections and serves the line-delimited JSON
// protocol over them (spec §4.H).
type Server struct {
	listener     net.Listener
	dispatcher   *Dispatcher
	log          *logging.Logger
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// Listen opens the configured transport. UNIX sockets are removed and
// recreated with mode 0700 (spec §6.1); TCP refuses a non-loopback bind
// unless allowRemote is set (spec §4.H).
func Listen(paths storage.Paths, cfg config.DaemonConfig) (net.Listener, error) {
	switch cfg.Transport {
	case "tcp":
		host := cfg.Host
		if host == "" {
			host = "127.0.0.1"
		}
		if !cfg.AllowRemote && host != "127.0.0.1" && host != "localhost" && host != "::1" {
			return nil, apperr.Invalid("non-loopback bind refused: set CCCC_DAEMON_ALLOW_REMOTE=1")
		}
		return net.Listen("tcp", fmt.Sprintf("%s:%d", host, cfg.Port))
	default:
		if err := os.MkdirAll(paths.DaemonDir(), 0o755); err != nil {
			return nil, err
		}
		sockPath := paths.SockFile()
		_ = os.Remove(sockPath)
		ln, err := net.Listen("unix", sockPath)
		if err != nil {
			return nil, err
		}
		if err := os.Chmod(sockPath, 0o700); err != nil {
			_ = ln.Close()
			return nil, err
		}
		return ln, nil
	}
}

func NewServer(ln net.Listener, dispatcher *Dispatcher, log *logging.Logger) *Server {
	return &Server{listener: ln, dispatcher: dispatcher, log: log, shutdownCh: make(chan struct{})}
}

// Serve accepts connections until the listener is closed or shutdown is
// triggered by a client's shutdown op.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return nil
			default:
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Shutdown closes the listener, unblocking Serve. Safe to call more
// than once (a client's "shutdown" op and the daemon's own teardown
// path can both reach it).
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		_ = s.listener.Close()
	})
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = writeLine(writer, errResponse("", apperr.Invalid("invalid json request")))
			_ = writer.Flush()
			continue
		}

		by, _ := req.Args["by"].(string)
		ctx := &OpContext{By: by, ID: req.ID, Args: req.Args, Conn: conn}

		resp, hijacked := s.dispatcher.Dispatch(req, ctx)
		if hijacked {
			// The hijack handler owns conn from here: it has already
			// written its own ack frame and will read/write directly
			// until the peer disconnects.
			return
		}

		if err := writeLine(writer, resp); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}

		if req.Op == "shutdown" {
			go s.Shutdown()
			return
		}
	}

	if err := scanner.Err(); err != nil && s.log != nil {
		s.log.Debug("ipc connection read error", zap.Error(err))
	}
}
