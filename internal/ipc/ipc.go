// Package ipc is a local control socket used to poke a running binary:
// stop the current recording or reset the conversation.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	CmdStop  = "stop"
	CmdReset = "reset"
)

// SocketPath is where the server listens by default.
var SocketPath = filepath.Join(os.TempDir(), "chatty.sock")

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

// Server accepts one JSON ControlMessage per connection.
type Server struct {
	ln     net.Listener
	path   string
	logger *slog.Logger
}

// Listen removes a stale socket at path and starts serving. handler runs
// on the connection goroutine and must not block for long.
func Listen(path string, handler func(ControlMessage), logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{ln: ln, path: path, logger: logger}
	go s.serve(handler)
	return s, nil
}

func (s *Server) serve(handler func(ControlMessage)) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("control socket accept failed", "error", err)
			continue
		}
		go s.handleConn(conn, handler)
	}
}

func (s *Server) handleConn(conn net.Conn, handler func(ControlMessage)) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		s.logger.Debug("bad control message", "error", err)
		return
	}
	s.logger.Debug("control message", "cmd", msg.Cmd)
	handler(msg)
}

// Close stops accepting and removes the socket file. A nil Server is a
// no-op.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	err := s.ln.Close()
	_ = os.Remove(s.path)
	return err
}

// SendCommand delivers cmd to the server at path.
func SendCommand(ctx context.Context, path, cmd string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()

	return json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd})
}
